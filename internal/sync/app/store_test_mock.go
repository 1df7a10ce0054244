package app

import (
	"context"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	"dm_sync_service/pkg/logger"

	"github.com/stretchr/testify/mock"
)

func init() {
	logger.SetNewNop()
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Create moke create message
func (m *MockMessageRepository) Create(ctx context.Context, draft domain.DirectMessage) (domain.DirectMessage, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(domain.DirectMessage), args.Error(1)
}

// ListBetween moke list messages between two users
func (m *MockMessageRepository) ListBetween(ctx context.Context, userA, userB string) ([]domain.DirectMessage, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.DirectMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateReadFlags moke batch read update
func (m *MockMessageRepository) UpdateReadFlags(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// MockProfileRepository Mock ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

// GetProfiles moke batch profile lookup
func (m *MockProfileRepository) GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPushFeed Mock PushFeed
type MockPushFeed struct {
	mock.Mock

	// 測試可透過這兩個欄位直接驅動事件與斷線
	OnEvent func(domain.FeedEvent)
	OnError func(error)
}

// Subscribe moke subscribe push feed
func (m *MockPushFeed) Subscribe(ctx context.Context, userID string, onEvent func(domain.FeedEvent), onError func(error)) (repository.FeedSubscription, error) {
	m.OnEvent = onEvent
	m.OnError = onError
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(repository.FeedSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// Publish moke publish event
func (m *MockPushFeed) Publish(ctx context.Context, userID string, ev domain.FeedEvent) error {
	args := m.Called(ctx, userID, ev)
	return args.Error(0)
}

// MockFeedSubscription Mock FeedSubscription
type MockFeedSubscription struct {
	mock.Mock
}

// Close moke close subscription
func (m *MockFeedSubscription) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockMessageJournal Mock MessageJournal
type MockMessageJournal struct {
	mock.Mock
}

// Append moke journal append
func (m *MockMessageJournal) Append(ctx context.Context, msg domain.DirectMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
