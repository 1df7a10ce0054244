package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/pkg/logger"
	"dm_sync_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// SessionFactory 依 memberID 建立同步會話
type SessionFactory func(memberID string) *Session

// SyncWebsocketHandler websocket 進入點，一條連線對應一個 Session
type SyncWebsocketHandler struct {
	newSession SessionFactory
}

// NewSyncWebsocketHandler create SyncWebsocketHandler
func NewSyncWebsocketHandler(newSession SessionFactory) *SyncWebsocketHandler {
	return &SyncWebsocketHandler{newSession: newSession}
}

// wsConn 對單一連線的寫入加鎖
// 推送回調與請求回覆來自不同 goroutine，gofiber websocket 不允許併發寫
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) {
	b, _ := json.Marshal(v)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *SyncWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	tokenMember := conn.Locals(middlewares.TokenMemberID)
	memberID, ok := tokenMember.(string)
	if !ok || memberID == "" {
		logger.Log.Error("websocket missing member id in token")
		conn.Close()
		return
	}
	logger.Log.Info("websocket connected", zap.String("memberID", memberID))

	wc := &wsConn{conn: conn}
	session := h.newSession(memberID)

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		session.Stop()
		logger.Log.Info("websocket close", zap.String("memberID", memberID))
		conn.Close()
		cancel()
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Infof("Received PONG:", appData)
		return nil
	})

	// 新訊息抵達且會話未開啟 → 推 notify_message
	session.SetNotify(func(n Notification) {
		wc.writeJSON(domain.WSResponse{
			Action:  string(domain.NotifyMessage),
			Success: true,
			Payload: map[string]interface{}{
				"partner_id": n.PartnerID,
				"preview":    n.Preview,
			},
		})
	})

	// 訂閱狀態變更 → 推 sync_state
	session.SetOnState(func(state ConnState) {
		wc.writeJSON(domain.WSResponse{
			Action:  string(domain.SyncState),
			Success: true,
			Payload: map[string]interface{}{
				"state": string(state),
			},
		})
	})

	if err := session.Start(ctx); err != nil {
		// 監督器會自行重連，這裡僅回報初始狀態
		logger.Log.Error("session start failed", zap.String("memberID", memberID), zap.Error(err))
	}

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				wc.mu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, []byte("ping message"))
				wc.mu.Unlock()
				if err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				logger.Log.Infof("Ping goroutine cancelled for member:", memberID)
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		h.execWebsocketAction(ctx, wc, session, memberID, mt, message)
	}
}

func (h *SyncWebsocketHandler) execWebsocketAction(ctx context.Context, wc *wsConn, session *Session, memberID string, mt int, msg []byte) {
	switch mt {
	case websocket.TextMessage:
		h.textMessageAction(ctx, wc, session, memberID, msg)
	default:
		h.sendError(wc, "unknown message type")
	}
}

func (h *SyncWebsocketHandler) textMessageAction(ctx context.Context, wc *wsConn, session *Session, memberID string, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	switch req.Action {
	//載入與指定對象的完整歷史
	case string(domain.LoadHistory):
		msgs, err := session.LoadHistory(ctx, req.PartnerID, req.Force)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["messages"] = msgs
		}

	//傳送訊息,寫入db並推播給對方
	//圖片/檔案訊息帶先前上傳取得的 file_* 欄位
	case string(domain.SendMessage):
		var confirmed domain.DirectMessage
		var err error
		switch domain.MessageType(req.ContentType) {
		case domain.MessageTypeImage, domain.MessageTypeFile:
			confirmed, err = session.SendMedia(ctx, req.PartnerID, req.Content,
				domain.MessageType(req.ContentType),
				&domain.Attachment{URL: req.FileURL, Name: req.FileName, Size: req.FileSize})
		default:
			confirmed, err = session.Send(ctx, req.PartnerID, req.Content)
		}
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message"] = confirmed
		}

	//將指定訊息改為已讀,會話未讀數同步重算
	case string(domain.ReadMessage):
		err := session.MarkReadIDs(ctx, req.MessageIDs)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	//取得排序後的會話摘要
	case string(domain.GetConversations):
		resp.Success = true
		resp.Payload["conversations"] = session.Conversations()

	//開啟會話,既有未讀一併標已讀
	case string(domain.OpenConversation):
		err := session.OpenConversation(ctx, req.PartnerID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["conversations"] = session.Conversations()
		}

	//關閉會話
	case string(domain.CloseConversation):
		session.CloseConversation()
		resp.Success = true

	default:
		h.sendError(wc, "unknown action")
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket err ", zap.String("MemberID", memberID), zap.String("Action", req.Action), zap.String("err", resp.Error))
	}
	wc.writeJSON(resp)
}

func (h *SyncWebsocketHandler) sendError(wc *wsConn, errorMsg string) {
	wc.writeJSON(domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	})
}
