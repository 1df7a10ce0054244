package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"dm_sync_service/internal/sync/app"
	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	"dm_sync_service/internal/sync/router"
	"dm_sync_service/pkg/database"
	"dm_sync_service/pkg/logger"
	testtool "dm_sync_service/pkg/test_tool"
	"dm_sync_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// **測試用的容器**
var mongoContainer testcontainers.Container
var redisContainer testcontainers.Container
var syncApp *fiber.App
var feed *repository.RedisPushFeed
var msgRepo repository.MessageRepository

// staticProfileRepository 整合測試不起 PostgreSQL，固定回傳查詢到的 id
type staticProfileRepository struct{}

func (staticProfileRepository) GetProfiles(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	result := make(map[string]domain.Profile, len(ids))
	for _, id := range ids {
		result[id] = domain.Profile{MemberID: id, DisplayName: "name-" + id}
	}
	return result, nil
}

// **TestMain 初始化測試環境**
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()
	var err error

	// **啟動 MongoDB**
	mongoContainer, mongoHost, mongoPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:latest",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start MongoDB container: %v", err)
	}
	fmt.Printf("✅ MongoDB running at %s:%s\n", mongoHost, mongoPort)

	// **啟動 Redis**
	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start Redis container: %v", err)
	}
	fmt.Printf("✅ Redis running at %s:%s\n", redisHost, redisPort)

	// **初始化 MongoDB**
	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 5,
	}, "test_sync_db")
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongo.Close(ctx)

	// **初始化 Redis**
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort),
		DB:   0,
	})

	// **初始化 Repository**
	feed = repository.NewRedisPushFeed(redisClient)
	msgRepo = repository.NewMongoMessageRepository(mongo.Database, feed)

	deps := app.SessionDeps{
		Messages:       msgRepo,
		Profiles:       staticProfileRepository{},
		Feed:           feed,
		ReconnectDelay: time.Second,
	}

	// **初始化 Fiber WebSocket Server**
	syncApp = fiber.New()
	router.RegisterRoutes(syncApp, app.NewSyncWebsocketHandler(func(memberID string) *app.Session {
		return app.NewSession(memberID, deps)
	}), nil)

	// **啟動 WebSocket Server**
	go func() {
		if err := syncApp.Listen(":8082"); err != nil {
			log.Fatalf("❌ Failed to start WebSocket server: %v", err)
		}
	}()
	fmt.Println("✅ WebSocket Server started at ws://localhost:8082/ws")

	// **等待 WebSocket Server 啟動**
	time.Sleep(5 * time.Second)

	// **執行測試**
	code := m.Run()

	// **清理測試環境**
	_ = mongoContainer.Terminate(ctx)
	_ = redisContainer.Terminate(ctx)
	syncApp.Shutdown()

	os.Exit(code)
}

func dialWS(t *testing.T, memberID string) *gws.Conn {
	jwt, err := token.GenerateJWT(memberID, "sync_service_test")
	assert.NoError(t, err, "產生 token 失敗")

	wsURL := "ws://127.0.0.1:8082/ws?auth=" + jwt
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err, "WebSocket 連線失敗")
	return conn
}

func readResponse(t *testing.T, conn *gws.Conn, wantAction string) domain.WSResponse {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, raw, err := conn.ReadMessage()
		assert.NoError(t, err, "接收訊息失敗")

		var resp domain.WSResponse
		assert.NoError(t, json.Unmarshal(raw, &resp))
		// sync_state 等伺服器主動推送與回覆交錯，略過不相關的
		if resp.Action == wantAction {
			return resp
		}
	}
	t.Fatalf("等不到 %s 回應", wantAction)
	return domain.WSResponse{}
}

// ✅ 1️⃣ MongoMessageRepository 基本流程
func TestMongoMessageRepository(t *testing.T) {
	ctx := context.Background()

	draft := domain.DirectMessage{
		SenderID:    "it-user-a",
		RecipientID: "it-user-b",
		Content:     "integration hello",
		Type:        domain.MessageTypeText,
	}

	confirmed, err := msgRepo.Create(ctx, draft)
	assert.NoError(t, err)
	assert.NotEmpty(t, confirmed.ID)
	assert.False(t, confirmed.IsRead)

	msgs, err := msgRepo.ListBetween(ctx, "it-user-a", "it-user-b")
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, confirmed.ID, msgs[0].ID)

	// 反向查詢同樣命中
	msgs, err = msgRepo.ListBetween(ctx, "it-user-b", "it-user-a")
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.NoError(t, msgRepo.UpdateReadFlags(ctx, []string{confirmed.ID}))
	msgs, err = msgRepo.ListBetween(ctx, "it-user-a", "it-user-b")
	assert.NoError(t, err)
	assert.True(t, msgs[0].IsRead)
}

// ✅ 2️⃣ RedisPushFeed 發布/訂閱
func TestRedisPushFeed(t *testing.T) {
	ctx := context.Background()

	events := make(chan domain.FeedEvent, 1)
	sub, err := feed.Subscribe(ctx, "it-feed-user",
		func(ev domain.FeedEvent) { events <- ev },
		func(err error) { t.Logf("feed error: %v", err) })
	assert.NoError(t, err)
	defer sub.Close()

	want := domain.FeedEvent{
		Type: domain.FeedEventCreated,
		Payload: domain.DirectMessage{
			ID:          "it-ev-1",
			SenderID:    "it-feed-peer",
			RecipientID: "it-feed-user",
			Content:     "pushed",
			Type:        domain.MessageTypeText,
			CreatedAt:   time.Now().Truncate(time.Millisecond),
		},
	}
	assert.NoError(t, feed.Publish(ctx, "it-feed-user", want))

	select {
	case got := <-events:
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Payload.ID, got.Payload.ID)
		assert.Equal(t, want.Payload.Content, got.Payload.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("等不到推送事件")
	}
}

// ✅ 3️⃣ WebSocket 缺 token 被拒
func TestWebSocketRejectsMissingToken(t *testing.T) {
	_, resp, err := gws.DefaultDialer.Dial("ws://127.0.0.1:8082/ws", nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	}
}

// ✅ 4️⃣ SendMessage 經 websocket 送出並落地
func TestWebSocketSendMessage(t *testing.T) {
	conn := dialWS(t, "it-ws-sender")
	defer conn.Close()

	req := []byte(`{"action": "send_message", "partner_id": "it-ws-recipient", "content": "Hello, World!"}`)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, req), "發送訊息請求失敗")

	resp := readResponse(t, conn, "send_message")
	assert.True(t, resp.Success, "發送訊息回應失敗: %s", resp.Error)
	fmt.Println("✅ 發送訊息回應:", resp.Payload)

	msgs, err := msgRepo.ListBetween(context.Background(), "it-ws-sender", "it-ws-recipient")
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, "Hello, World!", msgs[0].Content)
}

// ✅ 5️⃣ 新訊息推播給線上的收件方
func TestWebSocketNotifyRecipient(t *testing.T) {
	recipient := dialWS(t, "it-live-recipient")
	defer recipient.Close()
	sender := dialWS(t, "it-live-sender")
	defer sender.Close()

	// 等待雙方訂閱就緒
	time.Sleep(time.Second)

	req := []byte(`{"action": "send_message", "partner_id": "it-live-recipient", "content": "ping you"}`)
	assert.NoError(t, sender.WriteMessage(gws.TextMessage, req))

	resp := readResponse(t, recipient, "notify_message")
	assert.True(t, resp.Success)
	assert.Equal(t, "it-live-sender", resp.Payload["partner_id"])
	assert.Equal(t, "ping you", resp.Payload["preview"])
	fmt.Println("✅ 收件方通知:", resp.Payload)
}

// ✅ 6️⃣ LoadHistory + GetConversations
func TestWebSocketLoadHistoryAndConversations(t *testing.T) {
	conn := dialWS(t, "it-hist-user")
	defer conn.Close()

	send := []byte(`{"action": "send_message", "partner_id": "it-hist-peer", "content": "history entry"}`)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, send))
	resp := readResponse(t, conn, "send_message")
	assert.True(t, resp.Success)

	load := []byte(`{"action": "load_history", "partner_id": "it-hist-peer"}`)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, load))
	resp = readResponse(t, conn, "load_history")
	assert.True(t, resp.Success, "載入歷史回應失敗: %s", resp.Error)

	convReq := []byte(`{"action": "get_conversations"}`)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, convReq))
	resp = readResponse(t, conn, "get_conversations")
	assert.True(t, resp.Success)
	fmt.Println("✅ 會話摘要:", resp.Payload)
}
