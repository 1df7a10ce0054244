package app

import (
	"context"
	"sort"
	"sync"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	errprocess "dm_sync_service/pkg/err"
	"dm_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ConversationStore 維護依最後訊息時間排序的會話摘要列表
// 純衍生狀態：內容完全由訊息集合 + 會員資料決定
type ConversationStore struct {
	localID  string
	profiles repository.ProfileRepository

	mu    sync.Mutex
	list  []*domain.Conversation
	index map[string]*domain.Conversation
}

// NewConversationStore create a ConversationStore for localID
func NewConversationStore(localID string, profiles repository.ProfileRepository) *ConversationStore {
	return &ConversationStore{
		localID:  localID,
		profiles: profiles,
		index:    make(map[string]*domain.Conversation),
	}
}

// Rebuild 由完整訊息集合重建所有會話摘要
// 會員資料以單次批次查詢取得，查詢失敗不中斷重建（名稱退回對方 id）
func (s *ConversationStore) Rebuild(ctx context.Context, msgs []domain.DirectMessage) error {
	grouped := make(map[string][]domain.DirectMessage)
	for _, m := range msgs {
		partnerID := m.PartnerOf(s.localID)
		grouped[partnerID] = append(grouped[partnerID], m)
	}

	partnerIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		partnerIDs = append(partnerIDs, id)
	}

	profiles, err := s.profiles.GetProfiles(ctx, partnerIDs)
	if err != nil {
		// 摘要仍可產出，僅缺顯示名稱
		logger.Log.Warn("profile lookup failed, fallback to partner id", zap.Error(err))
		profiles = map[string]domain.Profile{}
		err = errprocess.Wrap(errprocess.KindProfile, "profile lookup failed", err)
	}

	list := make([]*domain.Conversation, 0, len(grouped))
	index := make(map[string]*domain.Conversation, len(grouped))
	for partnerID, partnerMsgs := range grouped {
		conv := s.summarize(partnerID, partnerMsgs, profiles)
		list = append(list, conv)
		index[partnerID] = conv
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastMessageAt.After(list[j].LastMessageAt)
	})

	s.mu.Lock()
	s.list = list
	s.index = index
	s.mu.Unlock()

	return err
}

// ApplyNewMessage 以單則新訊息增量更新摘要，不重建全表
// 未知對象的會話會補查會員資料後插入列表頭
func (s *ConversationStore) ApplyNewMessage(ctx context.Context, m domain.DirectMessage) {
	partnerID := m.PartnerOf(s.localID)

	s.mu.Lock()
	conv, ok := s.index[partnerID]
	if ok {
		s.applyLocked(conv, m)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	profiles, err := s.profiles.GetProfiles(ctx, []string{partnerID})
	if err != nil {
		logger.Log.Warn("profile lookup failed, fallback to partner id",
			zap.String("partner_id", partnerID), zap.Error(err))
		profiles = map[string]domain.Profile{}
	}

	conv = s.summarize(partnerID, []domain.DirectMessage{m}, profiles)

	s.mu.Lock()
	if existing, dup := s.index[partnerID]; dup {
		// 補查期間另一條路徑已建立同會話，改走增量更新
		s.applyLocked(existing, m)
		s.mu.Unlock()
		return
	}
	s.index[partnerID] = conv
	s.list = append([]*domain.Conversation{conv}, s.list...)
	s.mu.Unlock()
}

// applyLocked 把單則新訊息套用到既有摘要
// 遲到的舊事件仍計入未讀，但不回退預覽與排序
func (s *ConversationStore) applyLocked(conv *domain.Conversation, m domain.DirectMessage) {
	if m.InboundFor(s.localID) && !m.IsRead {
		conv.UnreadCount++
	}
	if m.CreatedAt.Before(conv.LastMessageAt) {
		return
	}
	conv.LastMessage = m.Content
	conv.LastMessageAt = m.CreatedAt
	conv.IsRead = m.IsRead || m.SenderID == s.localID
	s.moveToHeadLocked(conv)
}

// MarkConversationRead 會話整體標已讀：未讀歸零
func (s *ConversationStore) MarkConversationRead(partnerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.index[partnerID]; ok {
		conv.UnreadCount = 0
		conv.IsRead = true
	}
}

// SetUnreadCount 以重新計數後的值覆寫會話未讀數
func (s *ConversationStore) SetUnreadCount(partnerID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.index[partnerID]; ok {
		conv.UnreadCount = n
		if n == 0 {
			conv.IsRead = true
		}
	}
}

// Conversations 回傳目前排序後的摘要快照
func (s *ConversationStore) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Conversation, 0, len(s.list))
	for _, conv := range s.list {
		out = append(out, *conv)
	}
	return out
}

// summarize 由單一會話的訊息產生摘要
func (s *ConversationStore) summarize(partnerID string, msgs []domain.DirectMessage, profiles map[string]domain.Profile) *domain.Conversation {
	conv := &domain.Conversation{
		PartnerID:   partnerID,
		PartnerName: partnerID,
		IsRead:      true,
	}
	if p, ok := profiles[partnerID]; ok {
		conv.PartnerName = p.DisplayName
		conv.PartnerAvatar = p.AvatarURL
	}

	for i := range msgs {
		m := &msgs[i]
		if m.CreatedAt.After(conv.LastMessageAt) {
			conv.LastMessage = m.Content
			conv.LastMessageAt = m.CreatedAt
			conv.IsRead = m.IsRead || m.SenderID == s.localID
		}
		if m.InboundFor(s.localID) && !m.IsRead {
			conv.UnreadCount++
		}
	}
	return conv
}

// moveToHeadLocked 把 conv 移到列表頭，其餘順序不變
func (s *ConversationStore) moveToHeadLocked(conv *domain.Conversation) {
	for i, c := range s.list {
		if c == conv {
			copy(s.list[1:i+1], s.list[:i])
			s.list[0] = conv
			return
		}
	}
}
