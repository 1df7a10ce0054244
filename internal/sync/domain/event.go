package domain

// FeedEventType 推送事件類型
type FeedEventType string

const (
	// FeedEventCreated a message was inserted remotely
	FeedEventCreated FeedEventType = "created"
	// FeedEventUpdated a message was updated remotely (read flag)
	FeedEventUpdated FeedEventType = "updated"
)

// FeedEvent 推送訂閱收到的遠端寫入事件
// 上游已過濾：僅包含本地使用者為發送方或接收方的事件
type FeedEvent struct {
	Type    FeedEventType `json:"type"`
	Payload DirectMessage `json:"payload"`
}
