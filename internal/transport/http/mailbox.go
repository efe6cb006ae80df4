package httptransport

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/mailbox"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/storage/filesystem"
)

// MailboxHandler 处理收件箱、发件箱与邮件操作的 HTTP 请求
type MailboxHandler struct {
	mailboxes *mailbox.Service
	blobs     *filesystem.Store
	metrics   *monitoring.Metrics
	pageSize  int
	maxUpload int64
	log       *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(mailboxes *mailbox.Service, blobs *filesystem.Store, metrics *monitoring.Metrics, pageSize int, maxUpload int64, log *zap.Logger) *MailboxHandler {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &MailboxHandler{
		mailboxes: mailboxes,
		blobs:     blobs,
		metrics:   metrics,
		pageSize:  pageSize,
		maxUpload: maxUpload,
		log:       log,
	}
}

// messagePage 分页后的邮件列表
type messagePage struct {
	Messages   []domain.Message `json:"messages"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	Total      int              `json:"total"`
}

// paginate 对已按时间倒序的列表切出请求的页。
func (h *MailboxHandler) paginate(c *gin.Context, messages []domain.Message) messagePage {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	total := len(messages)
	totalPages := (total + h.pageSize - 1) / h.pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * h.pageSize
	end := start + h.pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return messagePage{
		Messages:   messages[start:end],
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}
}

// ListInbox 收件箱列表（分页）
func (h *MailboxHandler) ListInbox(c *gin.Context) {
	user := middleware.CurrentUser(c)

	messages, err := h.mailboxes.ListInbox(user.ID)
	if err != nil {
		h.log.Error("failed to list inbox", zap.String("user_id", user.ID), zap.Error(err))
		InternalError(c, MsgMessageListFailed)
		return
	}
	Success(c, h.paginate(c, messages))
}

// ListOutbox 发件箱列表（分页）
func (h *MailboxHandler) ListOutbox(c *gin.Context) {
	user := middleware.CurrentUser(c)

	messages, err := h.mailboxes.ListOutbox(user.ID)
	if err != nil {
		h.log.Error("failed to list outbox", zap.String("user_id", user.ID), zap.Error(err))
		InternalError(c, MsgMessageListFailed)
		return
	}
	Success(c, h.paginate(c, messages))
}

// GetInboxMessage 收件箱单封邮件详情
func (h *MailboxHandler) GetInboxMessage(c *gin.Context) {
	user := middleware.CurrentUser(c)

	message, err := h.mailboxes.GetInboxMessage(c.Param("id"), user.ID)
	if err != nil {
		h.log.Error("failed to get inbox message", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	if message == nil {
		NotFound(c, MsgMessageNotFound)
		return
	}
	Success(c, message)
}

// GetOutboxMessage 发件箱单封邮件详情
func (h *MailboxHandler) GetOutboxMessage(c *gin.Context) {
	user := middleware.CurrentUser(c)

	message, err := h.mailboxes.GetOutboxMessage(c.Param("id"), user.ID)
	if err != nil {
		h.log.Error("failed to get outbox message", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	if message == nil {
		NotFound(c, MsgMessageNotFound)
		return
	}
	Success(c, message)
}

// CreateMessage 发送邮件（multipart 表单，附件可选）
func (h *MailboxHandler) CreateMessage(c *gin.Context) {
	user := middleware.CurrentUser(c)

	recipientID := c.PostForm("recipientId")
	subject := c.PostForm("subject")
	body := c.PostForm("body")
	if recipientID == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	originalName, storedName, err := h.saveAttachment(c)
	if err != nil {
		return // saveAttachment 已写入响应
	}

	message, err := h.mailboxes.CreateMessage(user.ID, recipientID, subject, body, originalName, storedName)
	if err != nil {
		// 入库失败时附件文件已经落盘，清理掉
		if storedName != "" {
			if derr := h.blobs.Delete(storedName); derr != nil {
				h.log.Warn("failed to clean up orphan attachment",
					zap.String("stored_name", storedName), zap.Error(derr))
			}
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			BadRequest(c, MsgRecipientNotFound)
			return
		}
		h.log.Error("failed to create message", zap.Error(err))
		InternalError(c, MsgMessageCreateFailed)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessageCreated()
	}
	Created(c, gin.H{"id": message.ID})
}

// saveAttachment 把上传的附件写入文件存储，返回原始名与存储名。
// 没有附件时两者都为空串。出错时负责写入响应并返回非 nil 错误。
func (h *MailboxHandler) saveAttachment(c *gin.Context) (string, string, error) {
	fileHeader, err := c.FormFile("attachment")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", "", nil
		}
		BadRequest(c, MsgInvalidRequest)
		return "", "", err
	}

	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		BadRequest(c, MsgAttachmentTooLarge)
		return "", "", errors.New("attachment too large")
	}

	storedName := uuid.New().String()
	n, err := h.copyUpload(storedName, fileHeader)
	if err != nil {
		h.log.Error("failed to store attachment", zap.Error(err))
		InternalError(c, MsgInternalError)
		return "", "", err
	}

	if h.metrics != nil {
		h.metrics.RecordAttachmentSize(n)
	}
	return filepath.Base(fileHeader.Filename), storedName, nil
}

func (h *MailboxHandler) copyUpload(storedName string, fileHeader *multipart.FileHeader) (int64, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return h.blobs.Save(storedName, src)
}

type deleteMessagesRequest struct {
	Box string   `json:"box"` // "inbox" 或 "outbox"
	IDs []string `json:"ids"`
}

// DeleteMessages 批量删除邮件（单方软删除，双方都删后物理清除）
//
// 各邮件的删除相互独立并发执行，任意一封失败不会中止其余删除。
func (h *MailboxHandler) DeleteMessages(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req deleteMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if req.Box != "inbox" && req.Box != "outbox" {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if len(req.IDs) == 0 {
		BadRequest(c, MsgRequestBodyEmpty)
		return
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, id := range req.IDs {
		id := id
		g.Go(func() error {
			var err error
			if req.Box == "inbox" {
				err = h.mailboxes.DeleteForRecipient(id, user.ID)
			} else {
				err = h.mailboxes.DeleteForSender(id, user.ID)
			}
			if err != nil {
				return err
			}
			if h.metrics != nil {
				h.metrics.RecordMessageDeleted()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
			return
		}
		h.log.Error("failed to delete messages",
			zap.String("user_id", user.ID),
			zap.String("box", req.Box),
			zap.Error(err),
		)
		InternalError(c, MsgMessageDeleteFailed)
		return
	}
	Success(c, nil)
}

// sanitizeDownloadName 去掉文件名中可能破坏响应头的字符。
func sanitizeDownloadName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\r' || r == '\n' {
			return '_'
		}
		return r
	}, name)
}
