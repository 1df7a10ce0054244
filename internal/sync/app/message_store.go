package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	errprocess "dm_sync_service/pkg/err"
	"dm_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// conversationCache 單一會話的訊息快取
// messages 依 created_at 非遞減排序，ids 供去重查找
type conversationCache struct {
	messages []domain.DirectMessage
	ids      map[string]struct{}
}

func newConversationCache() *conversationCache {
	return &conversationCache{ids: make(map[string]struct{})}
}

// insertOrdered 依時間戳定位插入（推送與歷史可能交錯，不能只 append）
func (c *conversationCache) insertOrdered(m domain.DirectMessage) {
	idx := len(c.messages)
	for idx > 0 && c.messages[idx-1].CreatedAt.After(m.CreatedAt) {
		idx--
	}
	c.messages = append(c.messages, domain.DirectMessage{})
	copy(c.messages[idx+1:], c.messages[idx:])
	c.messages[idx] = m
	c.ids[m.ID] = struct{}{}
}

// removeByID 移除指定 id 的訊息，回傳是否存在
func (c *conversationCache) removeByID(id string) bool {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			delete(c.ids, id)
			return true
		}
	}
	return false
}

// loadCall 合併同一會話的併發 load，後到者等待首個完成
type loadCall struct {
	done chan struct{}
	err  error
}

// MessageStore 以對方 id 為索引的訊息權威快取，具樂觀寫入語義
// 持久層回調與推送投遞來自不同 goroutine，以 mutex 序列化所有變更
type MessageStore struct {
	localID string
	repo    repository.MessageRepository

	mu       sync.Mutex
	convs    map[string]*conversationCache
	inflight map[string]*loadCall
}

// NewMessageStore create a MessageStore for localID
func NewMessageStore(localID string, repo repository.MessageRepository) *MessageStore {
	return &MessageStore{
		localID:  localID,
		repo:     repo,
		convs:    make(map[string]*conversationCache),
		inflight: make(map[string]*loadCall),
	}
}

// Load 拉取與 partnerID 的完整歷史
// 快取優先：非空快取直接回傳（force 可強制重拉）；同會話併發呼叫合併為一次查詢。
// 成功後把所有收件未讀標為已讀，並以單次批次呼叫回寫持久層。
func (s *MessageStore) Load(ctx context.Context, partnerID string, force bool) ([]domain.DirectMessage, error) {
	s.mu.Lock()
	if !force {
		if cc, ok := s.convs[partnerID]; ok && len(cc.messages) > 0 {
			snapshot := snapshotMessages(cc.messages)
			s.mu.Unlock()
			return snapshot, nil
		}
	}
	if call, ok := s.inflight[partnerID]; ok {
		// 已有同會話的拉取在途，等待其完成即可
		s.mu.Unlock()
		<-call.done
		if call.err != nil {
			return nil, call.err
		}
		return s.Messages(partnerID), nil
	}
	call := &loadCall{done: make(chan struct{})}
	s.inflight[partnerID] = call
	s.mu.Unlock()

	msgs, err := s.repo.ListBetween(ctx, s.localID, partnerID)
	if err != nil {
		err = errprocess.Wrap(errprocess.KindNetwork, "load history failed", err)
		s.mu.Lock()
		delete(s.inflight, partnerID)
		s.mu.Unlock()
		call.err = err
		close(call.done)
		return nil, err
	}

	// 本人收件且未讀的訊息：本地直接標已讀，稍後一次批次回寫
	var readIDs []string
	readSet := make(map[string]struct{})
	for i := range msgs {
		if msgs[i].InboundFor(s.localID) && !msgs[i].IsRead {
			msgs[i].IsRead = true
			readIDs = append(readIDs, msgs[i].ID)
			readSet[msgs[i].ID] = struct{}{}
		}
	}

	// 拉取期間快取可能已有樂觀送出或推送寫入的訊息，逐筆合併而非整批覆蓋
	s.mu.Lock()
	cc := s.ensureLocked(partnerID)
	for _, m := range msgs {
		if _, ok := cc.ids[m.ID]; ok {
			continue
		}
		cc.insertOrdered(m)
	}
	for i := range cc.messages {
		if _, ok := readSet[cc.messages[i].ID]; ok {
			cc.messages[i].IsRead = true
		}
	}
	delete(s.inflight, partnerID)
	snapshot := snapshotMessages(cc.messages)
	s.mu.Unlock()
	close(call.done)

	if len(readIDs) > 0 {
		if err := s.repo.UpdateReadFlags(ctx, readIDs); err != nil {
			// 快取已一致，回寫失敗僅記錄，下次 load 會重試
			logger.Log.Warn("batch read update failed",
				zap.String("partner_id", partnerID), zap.Error(err))
		}
	}

	return snapshot, nil
}

// Send 樂觀送出一則訊息給 recipientID
// 先以暫時 id 插入快取，持久層確認後原位置換成確認條目；失敗則移除暫時條目並回傳錯誤。
func (s *MessageStore) Send(ctx context.Context, recipientID, content string, msgType domain.MessageType, attach *domain.Attachment) (domain.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if msgType == domain.MessageTypeText && content == "" {
		// 驗證失敗發生在任何狀態變更之前
		return domain.DirectMessage{}, errprocess.SetKind(errprocess.KindValidation, "message content is empty")
	}

	temp := domain.DirectMessage{
		ID:          domain.NewTempID(),
		SenderID:    s.localID,
		RecipientID: recipientID,
		Content:     content,
		Type:        msgType,
		IsRead:      false,
		CreatedAt:   time.Now(),
	}
	if attach != nil {
		temp.FileURL = attach.URL
		temp.FileName = attach.Name
		temp.FileSize = attach.Size
	}

	s.mu.Lock()
	cc := s.ensureLocked(recipientID)
	cc.messages = append(cc.messages, temp)
	cc.ids[temp.ID] = struct{}{}
	s.mu.Unlock()

	confirmed, err := s.repo.Create(ctx, temp)
	if err != nil {
		// 回滾：不保留任何部分狀態
		s.mu.Lock()
		if cc, ok := s.convs[recipientID]; ok {
			cc.removeByID(temp.ID)
		}
		s.mu.Unlock()
		return domain.DirectMessage{}, errprocess.Wrap(errprocess.KindNetwork, "send failed", err)
	}

	s.mu.Lock()
	cc = s.ensureLocked(recipientID)
	if _, dup := cc.ids[confirmed.ID]; dup {
		// 推送回聲已先一步寫入確認條目，移除暫時條目即可
		cc.removeByID(temp.ID)
	} else {
		for i := range cc.messages {
			if cc.messages[i].ID == temp.ID {
				// 原位置換，保持列表位置不變
				cc.messages[i] = confirmed
				break
			}
		}
		delete(cc.ids, temp.ID)
		cc.ids[confirmed.ID] = struct{}{}
	}
	s.mu.Unlock()

	return confirmed, nil
}

// Ingest 寫入一則由推送而來的訊息，以 id 冪等
// 回傳是否實際插入（重複事件為 no-op）
func (s *MessageStore) Ingest(m domain.DirectMessage) bool {
	partnerID := m.PartnerOf(s.localID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cc := s.ensureLocked(partnerID)
	if _, ok := cc.ids[m.ID]; ok {
		return false
	}
	cc.insertOrdered(m)
	return true
}

// MarkRead 將 ids 標為已讀（本地翻轉 + 單次批次持久層回寫）
func (s *MessageStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	for _, cc := range s.convs {
		for i := range cc.messages {
			if _, ok := want[cc.messages[i].ID]; ok {
				cc.messages[i].IsRead = true
			}
		}
	}
	s.mu.Unlock()

	if err := s.repo.UpdateReadFlags(ctx, ids); err != nil {
		return errprocess.Wrap(errprocess.KindNetwork, "batch read update failed", err)
	}
	return nil
}

// ApplyReadReceipt 依推送的 updated 事件翻轉本地已讀，不觸發持久層
// 回傳是否實際發生 false→true 轉換
func (s *MessageStore) ApplyReadReceipt(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cc := range s.convs {
		for i := range cc.messages {
			if cc.messages[i].ID == messageID {
				if cc.messages[i].IsRead {
					return false
				}
				cc.messages[i].IsRead = true
				return true
			}
		}
	}
	return false
}

// Messages 回傳與 partnerID 會話的訊息快照
func (s *MessageStore) Messages(partnerID string) []domain.DirectMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, ok := s.convs[partnerID]
	if !ok {
		return []domain.DirectMessage{}
	}
	return snapshotMessages(cc.messages)
}

// AllMessages 回傳所有會話的訊息快照（供會話摘要重建）
func (s *MessageStore) AllMessages() []domain.DirectMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.DirectMessage
	for _, cc := range s.convs {
		all = append(all, cc.messages...)
	}
	return all
}

// UnreadInboundIDs 回傳 partnerID 會話中本人收件且未讀的訊息 id
func (s *MessageStore) UnreadInboundIDs(partnerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, ok := s.convs[partnerID]
	if !ok {
		return nil
	}
	var ids []string
	for i := range cc.messages {
		if cc.messages[i].InboundFor(s.localID) && !cc.messages[i].IsRead {
			ids = append(ids, cc.messages[i].ID)
		}
	}
	return ids
}

// PartnersWithAny 回傳持有任一指定訊息 id 的會話對象
func (s *MessageStore) PartnersWithAny(ids []string) []string {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var partners []string
	for partnerID, cc := range s.convs {
		for id := range want {
			if _, ok := cc.ids[id]; ok {
				partners = append(partners, partnerID)
				break
			}
		}
	}
	return partners
}

func (s *MessageStore) ensureLocked(partnerID string) *conversationCache {
	cc, ok := s.convs[partnerID]
	if !ok {
		cc = newConversationCache()
		s.convs[partnerID] = cc
	}
	return cc
}

func snapshotMessages(src []domain.DirectMessage) []domain.DirectMessage {
	out := make([]domain.DirectMessage, len(src))
	copy(out, src)
	return out
}
