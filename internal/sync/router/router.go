package router

import (
	"context"

	"dm_sync_service/internal/sync/app"
	"dm_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册同步相关的路由
// attachments 可為 nil（附件上傳停用）
func RegisterRoutes(r *fiber.App, syncWebsocket *app.SyncWebsocketHandler, attachments *app.AttachmentHandler) {
	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		syncWebsocket.HandleConnection(context.Background(), c)
	}))

	if attachments != nil {
		r.Post("/attachments", attachments.Upload)
	}
}
