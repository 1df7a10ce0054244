package app

import (
	"context"
	"sync"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	errprocess "dm_sync_service/pkg/err"
	"dm_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ConnState 訂閱連線狀態
type ConnState string

const (
	// ConnIdle not started yet
	ConnIdle ConnState = "idle"
	// ConnSubscribing subscribe in progress
	ConnSubscribing ConnState = "subscribing"
	// ConnActive subscription established
	ConnActive ConnState = "active"
	// ConnError transport lost, about to reconnect
	ConnError ConnState = "error"
	// ConnReconnecting waiting for the reconnect delay
	ConnReconnecting ConnState = "reconnecting"
	// ConnClosed stopped for good
	ConnClosed ConnState = "closed"
)

// 預設重連延遲，固定間隔不做退避
const defaultReconnectDelay = 3 * time.Second

// StateFunc 狀態變更回調
type StateFunc func(ConnState)

// ConnectionSupervisor 管理推送訂閱的生命週期
// 訂閱失效後以固定延遲自動重連，直到 Stop 為止
type ConnectionSupervisor struct {
	userID  string
	feed    repository.PushFeed
	delay   time.Duration
	onEvent func(context.Context, domain.FeedEvent)

	mu      sync.Mutex
	state   ConnState
	handle  repository.FeedSubscription
	timer   *time.Timer
	onState StateFunc
}

// NewConnectionSupervisor create a ConnectionSupervisor
// delay <= 0 時使用預設 3 秒
func NewConnectionSupervisor(userID string, feed repository.PushFeed, delay time.Duration, onEvent func(context.Context, domain.FeedEvent)) *ConnectionSupervisor {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &ConnectionSupervisor{
		userID:  userID,
		feed:    feed,
		delay:   delay,
		onEvent: onEvent,
		state:   ConnIdle,
	}
}

// SetOnState 設定狀態變更回調
func (s *ConnectionSupervisor) SetOnState(fn StateFunc) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// State 回傳目前連線狀態
func (s *ConnectionSupervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start 建立訂閱並開始監督
func (s *ConnectionSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == ConnClosed {
		s.mu.Unlock()
		return errprocess.SetKind(errprocess.KindSubscription, "supervisor already closed")
	}
	s.mu.Unlock()
	return s.subscribe(ctx)
}

// Stop 關閉訂閱並停止重連，進入 Closed 終態
func (s *ConnectionSupervisor) Stop() {
	s.mu.Lock()
	if s.state == ConnClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(ConnClosed)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			logger.Log.Warn("close subscription failed",
				zap.String("user_id", s.userID), zap.Error(err))
		}
	}
}

func (s *ConnectionSupervisor) subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state == ConnClosed {
		s.mu.Unlock()
		return nil
	}
	// 舊訂閱先關閉，避免事件重複投遞
	old := s.handle
	s.handle = nil
	s.setStateLocked(ConnSubscribing)
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Log.Warn("close stale subscription failed",
				zap.String("user_id", s.userID), zap.Error(err))
		}
	}

	handle, err := s.feed.Subscribe(ctx, s.userID,
		func(ev domain.FeedEvent) {
			s.onEvent(ctx, ev)
		},
		func(err error) {
			s.onFeedError(ctx, err)
		})
	if err != nil {
		s.onFeedError(ctx, err)
		return errprocess.Wrap(errprocess.KindSubscription, "subscribe failed", err)
	}

	s.mu.Lock()
	if s.state == ConnClosed {
		// Stop 搶先發生，把剛建立的訂閱收掉
		s.mu.Unlock()
		_ = handle.Close()
		return nil
	}
	s.handle = handle
	s.setStateLocked(ConnActive)
	s.mu.Unlock()

	logger.Log.Info("push feed subscribed", zap.String("user_id", s.userID))
	return nil
}

// onFeedError 訂閱失效：固定延遲後重建
func (s *ConnectionSupervisor) onFeedError(ctx context.Context, err error) {
	s.mu.Lock()
	if s.state == ConnClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(ConnError)
	logger.Log.Error("push feed lost",
		zap.String("user_id", s.userID), zap.Duration("retry_in", s.delay), zap.Error(err))
	s.setStateLocked(ConnReconnecting)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		if subErr := s.subscribe(ctx); subErr != nil {
			logger.Log.Warn("resubscribe failed",
				zap.String("user_id", s.userID), zap.Error(subErr))
		}
	})
	s.mu.Unlock()
}

func (s *ConnectionSupervisor) setStateLocked(state ConnState) {
	s.state = state
	if s.onState != nil {
		s.onState(state)
	}
}
