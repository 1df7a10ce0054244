package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType 訊息類型
type MessageType string

const (
	// MessageTypeText text message
	MessageTypeText MessageType = "text"
	// MessageTypeImage image message
	MessageTypeImage MessageType = "image"
	// MessageTypeFile file message
	MessageTypeFile MessageType = "file"
)

// TempIDPrefix 樂觀訊息的暫時 id 前綴，持久層確認後會被伺服器 id 取代
const TempIDPrefix = "tmp-"

// DirectMessage 表示一則 1對1 訊息
// 確認後不可變，僅 IsRead 可由收件方翻轉
type DirectMessage struct {
	ID          string      `bson:"id" json:"id"`
	SenderID    string      `bson:"sender_id" json:"sender_id"`
	RecipientID string      `bson:"recipient_id" json:"recipient_id"`
	Content     string      `bson:"content" json:"content"`
	Type        MessageType `bson:"type" json:"type"`
	FileURL     string      `bson:"file_url,omitempty" json:"file_url,omitempty"`
	FileName    string      `bson:"file_name,omitempty" json:"file_name,omitempty"`
	FileSize    int64       `bson:"file_size,omitempty" json:"file_size,omitempty"`
	IsRead      bool        `bson:"is_read" json:"is_read"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
}

// Attachment 圖片/檔案訊息的中繼資料
type Attachment struct {
	URL  string
	Name string
	Size int64
}

// NewTempID create a temp id for an optimistic message
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTemp check id is an optimistic temp id
func (m *DirectMessage) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// PartnerOf return the other participant for localID
func (m *DirectMessage) PartnerOf(localID string) string {
	if m.SenderID == localID {
		return m.RecipientID
	}
	return m.SenderID
}

// InboundFor check message was received by localID
func (m *DirectMessage) InboundFor(localID string) bool {
	return m.RecipientID == localID
}
