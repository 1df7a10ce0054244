package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"dm_sync_service/internal/sync/domain"
	errprocess "dm_sync_service/pkg/err"
	"dm_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FeedSubscription 一次訂閱的 handle，Close 後不再投遞事件
type FeedSubscription interface {
	Close() error
}

// PushFeed definition push feed provider
// 上游依 channel 過濾：每位使用者只收到與自己相關的寫入事件
type PushFeed interface {
	// Subscribe 訂閱 userID 的事件流；onError 僅在傳輸層失效時觸發
	Subscribe(ctx context.Context, userID string, onEvent func(domain.FeedEvent), onError func(error)) (FeedSubscription, error)
	// Publish 發布事件到 userID 的 channel
	Publish(ctx context.Context, userID string, ev domain.FeedEvent) error
}

// RedisPushFeed definition redis pub/sub push feed
type RedisPushFeed struct {
	client *redis.Client
}

// NewRedisPushFeed create RedisPushFeed
func NewRedisPushFeed(client *redis.Client) *RedisPushFeed {
	return &RedisPushFeed{client: client}
}

func feedChannel(userID string) string {
	return "dm:user:" + userID
}

type redisFeedSubscription struct {
	sub    *redis.PubSub
	closed chan struct{}
	once   sync.Once
}

// Close 停止投遞並釋放底層訂閱
func (s *redisFeedSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.sub.Close()
}

// Publish 將 event 序列化後，發布到指定使用者的 channel
func (f *RedisPushFeed) Publish(ctx context.Context, userID string, ev domain.FeedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, feedChannel(userID), data).Err()
}

// Subscribe 訂閱 userID 的事件流，收到訊息後呼叫 onEvent 處理
// 訂閱確認後才回傳 handle；事件依到達順序逐一投遞，不重排不合批
func (f *RedisPushFeed) Subscribe(ctx context.Context, userID string, onEvent func(domain.FeedEvent), onError func(error)) (FeedSubscription, error) {
	channel := feedChannel(userID)
	sub := f.client.Subscribe(ctx, channel)

	// 等待 provider 確認訂閱
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, errprocess.Wrap(errprocess.KindSubscription, fmt.Sprintf("subscribe %s failed", channel), err)
	}

	handle := &redisFeedSubscription{sub: sub, closed: make(chan struct{})}

	go func() {
		ch := sub.Channel()
		for m := range ch {
			var ev domain.FeedEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				logger.Log.Error("feed event unmarshal err :", zap.String("channel", channel), zap.Error(err))
				continue
			}
			onEvent(ev)
		}

		// channel 關閉：主動退訂不回報，傳輸失效才交給監管重連
		select {
		case <-handle.closed:
			logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
		default:
			onError(errprocess.SetKind(errprocess.KindSubscription, fmt.Sprintf("push feed lost: %s", channel)))
		}
	}()

	return handle, nil
}
