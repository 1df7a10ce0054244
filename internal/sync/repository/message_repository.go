package repository

import (
	"context"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MessageRepository definition direct message persistence
// 成功時為權威來源：伺服器 id 與時間戳優先於樂觀值
type MessageRepository interface {
	// Create 寫入一則訊息，回傳帶伺服器 id 與時間戳的確認結果
	Create(ctx context.Context, draft domain.DirectMessage) (domain.DirectMessage, error)
	// ListBetween 拉取兩人之間的完整歷史，created_at 升序
	ListBetween(ctx context.Context, userA, userB string) ([]domain.DirectMessage, error)
	// UpdateReadFlags 批次將 ids 標為已讀
	UpdateReadFlags(ctx context.Context, ids []string) error
}

type directMessageRepository struct {
	coll *mongo.Collection
	feed PushFeed
}

// NewMongoMessageRepository create a MessageRepository
// feed 可為 nil；非 nil 時每次成功寫入會發布對應的推送事件給雙方
func NewMongoMessageRepository(db *mongo.Database, feed PushFeed) MessageRepository {
	return &directMessageRepository{
		coll: db.Collection("direct_messages"),
		feed: feed,
	}
}

func (r *directMessageRepository) Create(ctx context.Context, draft domain.DirectMessage) (domain.DirectMessage, error) {
	confirmed := draft
	// 伺服器指定 id 與時間戳，樂觀值不落地
	confirmed.ID = uuid.New().String()
	confirmed.CreatedAt = time.Now()
	confirmed.IsRead = false

	if _, err := r.coll.InsertOne(ctx, confirmed); err != nil {
		return domain.DirectMessage{}, err
	}

	r.publish(ctx, domain.FeedEvent{Type: domain.FeedEventCreated, Payload: confirmed},
		confirmed.SenderID, confirmed.RecipientID)

	return confirmed, nil
}

func (r *directMessageRepository) ListBetween(ctx context.Context, userA, userB string) ([]domain.DirectMessage, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "recipient_id": userB},
		bson.M{"sender_id": userB, "recipient_id": userA},
	}}
	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var messages []domain.DirectMessage
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *directMessageRepository) UpdateReadFlags(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	filter := bson.M{"id": bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{"is_read": true}}
	if _, err := r.coll.UpdateMany(ctx, filter, update); err != nil {
		return err
	}

	// 已讀回執走同一條推送通道，以 updated 事件通知原發送方
	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		// 更新已成功，回執發布失敗僅記錄
		logger.Log.Warn("read receipt lookup failed", zap.Error(err))
		return nil
	}
	var updated []domain.DirectMessage
	if err := cur.All(ctx, &updated); err != nil {
		logger.Log.Warn("read receipt decode failed", zap.Error(err))
		return nil
	}
	for _, m := range updated {
		r.publish(ctx, domain.FeedEvent{Type: domain.FeedEventUpdated, Payload: m}, m.SenderID)
	}

	return nil
}

func (r *directMessageRepository) publish(ctx context.Context, ev domain.FeedEvent, userIDs ...string) {
	if r.feed == nil {
		return
	}
	for _, id := range userIDs {
		if err := r.feed.Publish(ctx, id, ev); err != nil {
			logger.Log.Warn("feed publish failed",
				zap.String("user_id", id),
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}
