package httptransport

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/attachment"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/storage/filesystem"
)

// AttachmentHandler 处理附件下载请求
//
// 附件下载不依赖会话认证中间件：访问判定走独立的鉴权器，凭证从
// cookie 中读取并与邮件双方当前存储的凭证对比对。
type AttachmentHandler struct {
	gate    *attachment.Gate
	blobs   *filesystem.Store
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(gate *attachment.Gate, blobs *filesystem.Store, metrics *monitoring.Metrics, log *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		gate:    gate,
		blobs:   blobs,
		metrics: metrics,
		log:     log,
	}
}

// Download 下载邮件附件
func (h *AttachmentHandler) Download(c *gin.Context) {
	messageID := c.Param("messageId")
	email, _ := c.Cookie(middleware.CookieEmail)
	token, _ := c.Cookie(middleware.CookieToken)

	allowed, ref, err := h.gate.Authorize(email, token, messageID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMessageNotFound):
			h.record("not_found")
			NotFound(c, MsgMessageNotFound)
		case errors.Is(err, domain.ErrAttachmentNotFound):
			h.record("not_found")
			NotFound(c, MsgAttachmentNotFound)
		default:
			h.log.Error("attachment authorization failed",
				zap.String("message_id", messageID), zap.Error(err))
			h.record("error")
			InternalError(c, MsgInternalError)
		}
		return
	}
	if !allowed {
		h.record("denied")
		Forbidden(c, MsgAttachmentForbidden)
		return
	}

	f, err := h.blobs.Open(ref.StoredName)
	if err != nil {
		// 记录还在但文件已不见，按附件不存在处理
		h.log.Warn("attachment file missing",
			zap.String("message_id", messageID),
			zap.String("stored_name", ref.StoredName),
			zap.Error(err),
		)
		h.record("not_found")
		NotFound(c, MsgAttachmentNotFound)
		return
	}
	defer f.Close()

	downloadName := sanitizeDownloadName(ref.OriginalName)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		h.log.Warn("attachment download interrupted",
			zap.String("message_id", messageID), zap.Error(err))
		return
	}
	h.record("success")
}

func (h *AttachmentHandler) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordAttachmentDownload(result)
	}
}
