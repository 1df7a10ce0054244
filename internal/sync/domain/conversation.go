package domain

import "time"

// Conversation 以對方 id 為 key 的會話摘要（派生資料，不可獨立建立）
type Conversation struct {
	PartnerID     string    `json:"partner_id"`
	PartnerName   string    `json:"partner_name"`
	PartnerAvatar string    `json:"partner_avatar"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
	// IsRead 最新一則訊息已讀，或最新一則是本人發出
	IsRead bool `json:"is_read"`
}

// Profile 個人資料查詢結果，僅用於裝飾會話摘要
type Profile struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}
