package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// journal 以介面型別傳入，傳 nil 即停用日誌
func newTestSession(msgRepo *MockMessageRepository, profileRepo *MockProfileRepository, feed *MockPushFeed, journal repository.MessageJournal) *Session {
	return NewSession(testLocalID, SessionDeps{
		Messages: msgRepo,
		Profiles: profileRepo,
		Feed:     feed,
		Journal:  journal,
	})
}

// 測試 Send：確認後更新摘要並寫入日誌
func TestSession_Send(t *testing.T) {
	ctx := context.Background()
	serverID := uuid.New().String()
	confirmed := historyMessage(serverID, testLocalID, testPartnerID, false, time.Now())

	mockRepo := new(MockMessageRepository)
	mockRepo.On("Create", ctx, mock.Anything).Return(confirmed, nil)
	mockProfiles := new(MockProfileRepository)
	mockProfiles.On("GetProfiles", ctx, []string{testPartnerID}).
		Return(map[string]domain.Profile{testPartnerID: {MemberID: testPartnerID, DisplayName: "Partner"}}, nil)
	mockJournal := new(MockMessageJournal)
	mockJournal.On("Append", ctx, confirmed).Return(nil).Once()

	session := newTestSession(mockRepo, mockProfiles, new(MockPushFeed), mockJournal)
	got, err := session.Send(ctx, testPartnerID, "hello")

	assert.NoError(t, err)
	assert.Equal(t, serverID, got.ID)

	convs := session.Conversations()
	assert.Len(t, convs, 1)
	assert.Equal(t, "Partner", convs[0].PartnerName)
	assert.Equal(t, 0, convs[0].UnreadCount)

	mockJournal.AssertExpectations(t)
}

// 測試 Send：日誌落盤失敗不影響送出結果
func TestSession_Send_JournalFailure(t *testing.T) {
	ctx := context.Background()
	confirmed := historyMessage(uuid.New().String(), testLocalID, testPartnerID, false, time.Now())

	mockRepo := new(MockMessageRepository)
	mockRepo.On("Create", ctx, mock.Anything).Return(confirmed, nil)
	mockProfiles := new(MockProfileRepository)
	mockProfiles.On("GetProfiles", ctx, mock.Anything).Return(map[string]domain.Profile{}, nil)
	mockJournal := new(MockMessageJournal)
	mockJournal.On("Append", ctx, confirmed).Return(errors.New("kafka down"))

	session := newTestSession(mockRepo, mockProfiles, new(MockPushFeed), mockJournal)
	_, err := session.Send(ctx, testPartnerID, "hello")

	assert.NoError(t, err)
}

// 測試 LoadHistory：載入後摘要同步重建
func TestSession_LoadHistory(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	mockRepo := new(MockMessageRepository)
	mockRepo.On("ListBetween", ctx, testLocalID, testPartnerID).Return([]domain.DirectMessage{
		historyMessage("m1", testPartnerID, testLocalID, false, base),
		historyMessage("m2", testLocalID, testPartnerID, true, base.Add(time.Minute)),
	}, nil)
	mockRepo.On("UpdateReadFlags", ctx, []string{"m1"}).Return(nil)
	mockProfiles := new(MockProfileRepository)
	mockProfiles.On("GetProfiles", ctx, []string{testPartnerID}).
		Return(map[string]domain.Profile{testPartnerID: {MemberID: testPartnerID, DisplayName: "Partner"}}, nil)

	session := newTestSession(mockRepo, mockProfiles, new(MockPushFeed), nil)
	msgs, err := session.LoadHistory(ctx, testPartnerID, false)

	assert.NoError(t, err)
	assert.Len(t, msgs, 2)

	convs := session.Conversations()
	assert.Len(t, convs, 1)
	// load 時已全部標已讀
	assert.Equal(t, 0, convs[0].UnreadCount)
}

// 測試 OpenConversation：既有未讀批次標已讀且未讀歸零
func TestSession_OpenConversation(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockMessageRepository)
	mockRepo.On("UpdateReadFlags", ctx, []string{"m1"}).Return(nil).Once()
	mockProfiles := new(MockProfileRepository)
	mockProfiles.On("GetProfiles", ctx, mock.Anything).Return(map[string]domain.Profile{}, nil)

	session := newTestSession(mockRepo, mockProfiles, new(MockPushFeed), nil)

	// 透過推送事件放入一則未讀
	m := historyMessage("m1", testPartnerID, testLocalID, false, time.Now())
	session.ingestor.HandleEvent(ctx, domain.FeedEvent{Type: domain.FeedEventCreated, Payload: m})
	assert.Equal(t, 1, session.Conversations()[0].UnreadCount)

	assert.NoError(t, session.OpenConversation(ctx, testPartnerID))

	assert.Equal(t, 0, session.Conversations()[0].UnreadCount)
	assert.Empty(t, session.messages.UnreadInboundIDs(testPartnerID))
	assert.Equal(t, testPartnerID, session.ingestor.OpenConversation())

	session.CloseConversation()
	assert.Equal(t, "", session.ingestor.OpenConversation())

	mockRepo.AssertExpectations(t)
}

// 測試 MarkReadIDs：訊息標已讀且受影響會話的未讀數同步重算
func TestSession_MarkReadIDs(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockMessageRepository)
	mockRepo.On("UpdateReadFlags", ctx, []string{"m1"}).Return(nil).Once()
	mockProfiles := new(MockProfileRepository)
	mockProfiles.On("GetProfiles", ctx, mock.Anything).Return(map[string]domain.Profile{}, nil)

	session := newTestSession(mockRepo, mockProfiles, new(MockPushFeed), nil)

	m := historyMessage("m1", testPartnerID, testLocalID, false, time.Now())
	session.ingestor.HandleEvent(ctx, domain.FeedEvent{Type: domain.FeedEventCreated, Payload: m})
	assert.Equal(t, 1, session.Conversations()[0].UnreadCount)

	assert.NoError(t, session.MarkReadIDs(ctx, []string{"m1"}))

	assert.True(t, session.Messages(testPartnerID)[0].IsRead)
	assert.Equal(t, 0, session.Conversations()[0].UnreadCount)
	assert.True(t, session.Conversations()[0].IsRead)
	mockRepo.AssertExpectations(t)
}

// 測試 SendMedia：附件中繼資料跟著訊息落地
func TestSession_SendMedia(t *testing.T) {
	ctx := context.Background()
	confirmed := historyMessage(uuid.New().String(), testLocalID, testPartnerID, false, time.Now())
	confirmed.Type = domain.MessageTypeImage
	confirmed.FileURL = "http://minio/att/a.png"
	confirmed.FileName = "a.png"
	confirmed.FileSize = 2048

	mockRepo := new(MockMessageRepository)
	mockRepo.On("Create", ctx, mock.MatchedBy(func(draft domain.DirectMessage) bool {
		return draft.Type == domain.MessageTypeImage && draft.FileURL == "http://minio/att/a.png"
	})).Return(confirmed, nil)
	mockProfiles := new(MockProfileRepository)
	mockProfiles.On("GetProfiles", ctx, mock.Anything).Return(map[string]domain.Profile{}, nil)

	session := newTestSession(mockRepo, mockProfiles, new(MockPushFeed), nil)
	got, err := session.SendMedia(ctx, testPartnerID, "look at this", domain.MessageTypeImage,
		&domain.Attachment{URL: "http://minio/att/a.png", Name: "a.png", Size: 2048})

	assert.NoError(t, err)
	assert.Equal(t, "a.png", got.FileName)
	assert.Equal(t, int64(2048), got.FileSize)
}
