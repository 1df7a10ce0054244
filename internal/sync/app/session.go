package app

import (
	"context"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	"dm_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// SessionDeps Session 的外部依賴
// Journal 可為 nil（日誌功能停用）
type SessionDeps struct {
	Messages       repository.MessageRepository
	Profiles       repository.ProfileRepository
	Feed           repository.PushFeed
	Journal        repository.MessageJournal
	ReconnectDelay time.Duration
}

// Session 單一使用者的同步會話
// 組合訊息快取、會話摘要、事件處理與訂閱監督
type Session struct {
	localID       string
	messages      *MessageStore
	conversations *ConversationStore
	ingestor      *RealtimeIngestor
	supervisor    *ConnectionSupervisor
	journal       repository.MessageJournal
}

// NewSession create a Session for localID
func NewSession(localID string, deps SessionDeps) *Session {
	messages := NewMessageStore(localID, deps.Messages)
	conversations := NewConversationStore(localID, deps.Profiles)
	ingestor := NewRealtimeIngestor(localID, messages, conversations)

	s := &Session{
		localID:       localID,
		messages:      messages,
		conversations: conversations,
		ingestor:      ingestor,
		journal:       deps.Journal,
	}
	s.supervisor = NewConnectionSupervisor(localID, deps.Feed, deps.ReconnectDelay, ingestor.HandleEvent)
	return s
}

// Start 建立推送訂閱
func (s *Session) Start(ctx context.Context) error {
	return s.supervisor.Start(ctx)
}

// Stop 關閉訂閱並停止重連
func (s *Session) Stop() {
	s.supervisor.Stop()
}

// ConnState 回傳目前訂閱狀態
func (s *Session) ConnState() ConnState {
	return s.supervisor.State()
}

// SetNotify 設定通知回調
func (s *Session) SetNotify(fn NotifyFunc) {
	s.ingestor.SetNotify(fn)
}

// SetOnState 設定連線狀態回調
func (s *Session) SetOnState(fn StateFunc) {
	s.supervisor.SetOnState(fn)
}

// OpenConversation 標記會話開啟並把現有未讀批次標已讀
func (s *Session) OpenConversation(ctx context.Context, partnerID string) error {
	s.ingestor.SetOpenConversation(partnerID)
	return s.MarkConversationRead(ctx, partnerID)
}

// CloseConversation 取消開啟中標記
func (s *Session) CloseConversation() {
	s.ingestor.SetOpenConversation("")
}

// LoadHistory 載入與 partnerID 的歷史並刷新會話摘要
func (s *Session) LoadHistory(ctx context.Context, partnerID string, force bool) ([]domain.DirectMessage, error) {
	msgs, err := s.messages.Load(ctx, partnerID, force)
	if err != nil {
		return nil, err
	}
	if err := s.conversations.Rebuild(ctx, s.messages.AllMessages()); err != nil {
		// 摘要缺顯示名稱不影響歷史回傳
		logger.Log.Warn("conversation rebuild degraded",
			zap.String("partner_id", partnerID), zap.Error(err))
	}
	return msgs, nil
}

// Send 送出文字訊息
func (s *Session) Send(ctx context.Context, recipientID, content string) (domain.DirectMessage, error) {
	return s.send(ctx, recipientID, content, domain.MessageTypeText, nil)
}

// SendMedia 送出帶已上傳附件的圖片/檔案訊息
// 附件先經 AttachmentHandler 上傳取得 URL
func (s *Session) SendMedia(ctx context.Context, recipientID, content string, msgType domain.MessageType, attach *domain.Attachment) (domain.DirectMessage, error) {
	return s.send(ctx, recipientID, content, msgType, attach)
}

func (s *Session) send(ctx context.Context, recipientID, content string, msgType domain.MessageType, attach *domain.Attachment) (domain.DirectMessage, error) {
	confirmed, err := s.messages.Send(ctx, recipientID, content, msgType, attach)
	if err != nil {
		return domain.DirectMessage{}, err
	}

	s.conversations.ApplyNewMessage(ctx, confirmed)

	if s.journal != nil {
		if err := s.journal.Append(ctx, confirmed); err != nil {
			// 日誌落盤失敗不影響送出結果
			logger.Log.Warn("journal append failed",
				zap.String("message_id", confirmed.ID), zap.Error(err))
		}
	}

	return confirmed, nil
}

// MarkConversationRead 把 partnerID 會話的所有收件未讀標已讀
func (s *Session) MarkConversationRead(ctx context.Context, partnerID string) error {
	ids := s.messages.UnreadInboundIDs(partnerID)
	if err := s.messages.MarkRead(ctx, ids); err != nil {
		return err
	}
	s.conversations.MarkConversationRead(partnerID)
	return nil
}

// MarkReadIDs 把指定訊息標已讀，並同步重算受影響會話的未讀數
func (s *Session) MarkReadIDs(ctx context.Context, ids []string) error {
	partners := s.messages.PartnersWithAny(ids)
	if err := s.messages.MarkRead(ctx, ids); err != nil {
		return err
	}
	for _, partnerID := range partners {
		s.conversations.SetUnreadCount(partnerID, len(s.messages.UnreadInboundIDs(partnerID)))
	}
	return nil
}

// Messages 回傳與 partnerID 會話的訊息快照
func (s *Session) Messages(partnerID string) []domain.DirectMessage {
	return s.messages.Messages(partnerID)
}

// Conversations 回傳排序後的會話摘要
func (s *Session) Conversations() []domain.Conversation {
	return s.conversations.Conversations()
}
