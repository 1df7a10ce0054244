package domain

// Action websocket request action
type Action string

const (
	// LoadHistory websocket action load_history
	LoadHistory Action = "load_history"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// ReadMessage websocket action read_message
	ReadMessage Action = "read_message"
	// GetConversations websocket action get_conversations
	GetConversations Action = "get_conversations"
	// OpenConversation websocket action open_conversation
	OpenConversation Action = "open_conversation"
	// CloseConversation websocket action close_conversation
	CloseConversation Action = "close_conversation"

	// NotifyMessage websocket action notify_message (server push)
	NotifyMessage Action = "notify_message"
	// SyncState websocket action sync_state (server push)
	SyncState Action = "sync_state"
)

// WSRequest websocket Request
// 圖片/檔案訊息先經 POST /attachments 上傳，再帶回 file_* 欄位
type WSRequest struct {
	Action      string   `json:"action"`
	PartnerID   string   `json:"partner_id"`
	Content     string   `json:"content"`
	ContentType string   `json:"content_type"`
	FileURL     string   `json:"file_url"`
	FileName    string   `json:"file_name"`
	FileSize    int64    `json:"file_size"`
	MessageIDs  []string `json:"message_ids"`
	Force       bool     `json:"force"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
