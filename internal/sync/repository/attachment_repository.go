package repository

import (
	"context"
	"fmt"
	"io"
	"time"

	"dm_sync_service/pkg/database"

	"github.com/google/uuid"
)

// 附件下載連結有效期
const attachmentURLExpiry = 24 * time.Hour

// AttachmentRepository definition attachment storage
// 圖片/檔案訊息先上傳附件，訊息本體僅帶 URL 與中繼資料
type AttachmentRepository interface {
	// Store 上傳附件並回傳可下載的 URL
	Store(ctx context.Context, fileName string, reader io.Reader, size int64, contentType string) (string, error)
}

type minioAttachmentRepository struct {
	mc *database.MinIOClient
}

// NewMinIOAttachmentRepository create an AttachmentRepository
func NewMinIOAttachmentRepository(mc *database.MinIOClient) AttachmentRepository {
	return &minioAttachmentRepository{mc: mc}
}

func (r *minioAttachmentRepository) Store(ctx context.Context, fileName string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := fmt.Sprintf("%s_%s", uuid.New().String(), fileName)

	if err := r.mc.UploadObject(ctx, objectName, reader, size, contentType); err != nil {
		return "", fmt.Errorf("附件上傳失敗: %w", err)
	}

	url, err := r.mc.PresignGetURL(ctx, objectName, attachmentURLExpiry)
	if err != nil {
		return "", err
	}
	return url, nil
}
