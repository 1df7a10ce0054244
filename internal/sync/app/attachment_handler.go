package app

import (
	"net/http"

	"dm_sync_service/internal/sync/repository"
	"dm_sync_service/pkg/logger"
	"dm_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AttachmentHandler 附件上傳處理器
// 圖片/檔案訊息先走這裡上傳，取得 URL 後再經 websocket 送出訊息本體
type AttachmentHandler struct {
	attachments repository.AttachmentRepository
}

// NewAttachmentHandler create AttachmentHandler
func NewAttachmentHandler(attachments repository.AttachmentRepository) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload 接收 multipart 上傳並回傳可下載的附件 URL
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	memberID, ok := c.Locals(middlewares.TokenMemberID).(string)
	if !ok || memberID == "" {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "未授權"})
	}

	// 取得上傳檔案
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "未檢測到檔案"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "讀取檔案失敗"})
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	url, err := h.attachments.Store(c.Context(), fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		logger.Log.Error("attachment upload failed",
			zap.String("member_id", memberID),
			zap.String("file_name", fileHeader.Filename),
			zap.Error(err),
		)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "附件上傳失敗"})
	}

	return c.JSON(fiber.Map{
		"url":       url,
		"file_name": fileHeader.Filename,
		"file_size": fileHeader.Size,
	})
}
