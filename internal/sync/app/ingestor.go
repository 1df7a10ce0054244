package app

import (
	"context"
	"sync"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/pkg"
	"dm_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// 通知預覽長度上限
const notifyPreviewLen = 50

// Notification 新訊息抵達且會話未開啟時發出的提示
type Notification struct {
	PartnerID string `json:"partner_id"`
	Preview   string `json:"preview"`
}

// NotifyFunc 通知投遞回調
type NotifyFunc func(Notification)

// RealtimeIngestor 把推送事件轉成本地狀態變更與通知
// 事件處理為冪等：同一事件重放不得造成第二次變更或通知
type RealtimeIngestor struct {
	localID       string
	messages      *MessageStore
	conversations *ConversationStore

	mu          sync.Mutex
	openPartner string
	notify      NotifyFunc
}

// NewRealtimeIngestor create a RealtimeIngestor
func NewRealtimeIngestor(localID string, messages *MessageStore, conversations *ConversationStore) *RealtimeIngestor {
	return &RealtimeIngestor{
		localID:       localID,
		messages:      messages,
		conversations: conversations,
	}
}

// SetNotify 設定通知回調
func (g *RealtimeIngestor) SetNotify(fn NotifyFunc) {
	g.mu.Lock()
	g.notify = fn
	g.mu.Unlock()
}

// SetOpenConversation 設定目前開啟中的會話（空字串表示無）
// 開啟中的會話收到新訊息直接視為已讀，不累積未讀也不通知
func (g *RealtimeIngestor) SetOpenConversation(partnerID string) {
	g.mu.Lock()
	g.openPartner = partnerID
	g.mu.Unlock()
}

// OpenConversation 回傳目前開啟中的會話
func (g *RealtimeIngestor) OpenConversation() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openPartner
}

// HandleEvent 處理一則推送事件
func (g *RealtimeIngestor) HandleEvent(ctx context.Context, ev domain.FeedEvent) {
	switch ev.Type {
	case domain.FeedEventCreated:
		g.handleCreated(ctx, ev.Payload)
	case domain.FeedEventUpdated:
		g.handleUpdated(ev.Payload)
	default:
		logger.Log.Warn("unknown feed event type", zap.String("type", string(ev.Type)))
	}
}

func (g *RealtimeIngestor) handleCreated(ctx context.Context, m domain.DirectMessage) {
	if !m.InboundFor(g.localID) {
		// 自己送出的回聲，Send 已寫入快取
		return
	}

	partnerID := m.PartnerOf(g.localID)

	g.mu.Lock()
	open := g.openPartner == partnerID
	notify := g.notify
	g.mu.Unlock()

	if open {
		// 會話開啟中：寫入時即已讀，並回寫持久層讓對方收到回執
		m.IsRead = true
	}

	if inserted := g.messages.Ingest(m); !inserted {
		// 重複事件，不重複計數與通知
		return
	}

	if open {
		if err := g.messages.MarkRead(ctx, []string{m.ID}); err != nil {
			logger.Log.Warn("read update for open conversation failed",
				zap.String("message_id", m.ID), zap.Error(err))
		}
	}

	g.conversations.ApplyNewMessage(ctx, m)

	if !open && notify != nil {
		notify(Notification{
			PartnerID: partnerID,
			Preview:   pkg.Preview(m.Content, notifyPreviewLen),
		})
	}
}

func (g *RealtimeIngestor) handleUpdated(m domain.DirectMessage) {
	// 目前唯一的 update 來源是已讀回執：本人送出的訊息被對方讀了
	if m.SenderID != g.localID || !m.IsRead {
		return
	}
	g.messages.ApplyReadReceipt(m.ID)
}
