package mailbox

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webmail/backend/internal/domain"
)

// ErrCreateFailed 邮件写入存储后未产生新记录
var ErrCreateFailed = errors.New("message create failed")

// BlobStore 附件物理文件存储接口
type BlobStore interface {
	// Delete 删除附件文件。文件不存在视为成功。
	Delete(storedName string) error
}

// Notifier 新邮件到达通知接口（可选，nil 表示不通知）
type Notifier interface {
	NotifyNewMessage(recipientID string, message *domain.Message)
}

// PurgeRecorder 物理删除计数接口（可选，nil 表示不计数）
type PurgeRecorder interface {
	RecordMessagePurged()
}

// Service 邮箱服务
//
// 封装邮件的创建、双视图读取和双软删除语义。删除路径上，记录的
// 物理删除由存储层原子完成，附件文件的清理由本服务在删除成功后
// 尽力执行：文件清理失败不回滚记录删除，只记录日志。
type Service struct {
	store    domain.Store
	blobs    BlobStore
	notifier Notifier
	purges   PurgeRecorder
	log      *zap.Logger
	now      func() time.Time
}

// NewService 创建邮箱服务
func NewService(store domain.Store, blobs BlobStore, log *zap.Logger) *Service {
	return &Service{
		store: store,
		blobs: blobs,
		log:   log,
		now:   time.Now,
	}
}

// SetNotifier 配置新邮件通知器。
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPurgeRecorder 配置物理删除计数器。
func (s *Service) SetPurgeRecorder(r PurgeRecorder) {
	s.purges = r
}

// CreateMessage 创建一封邮件并返回其 ID。
//
// 附件参数可同时为空（无附件）。收件人必须是已注册用户。
func (s *Service) CreateMessage(senderID, recipientID, subject, body, attachmentOriginalName, attachmentStoredName string) (*domain.Message, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if _, err := s.store.GetUserByID(recipientID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up recipient: %w", err)
	}

	message := &domain.Message{
		ID:                     uuid.New().String(),
		SenderID:               senderID,
		RecipientID:            recipientID,
		Subject:                subject,
		Body:                   body,
		SentAt:                 s.now(),
		AttachmentOriginalName: attachmentOriginalName,
		AttachmentStoredName:   attachmentStoredName,
	}

	if err := s.store.CreateMessage(message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	s.log.Info("message created",
		zap.String("message_id", message.ID),
		zap.String("sender_id", senderID),
		zap.String("recipient_id", recipientID),
		zap.Bool("has_attachment", message.HasAttachment()),
	)

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(recipientID, message)
	}
	return message, nil
}

// ListInbox 返回收件人视角的邮件列表，按发送时间倒序。
//
// 列表中的每封邮件都补充了双方的姓名与邮箱。关联用户缺失时对应
// 字段保持为空，而不是让整个列表失败。
func (s *Service) ListInbox(recipientID string) ([]domain.Message, error) {
	messages, err := s.store.ListInbox(recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	return s.enrich(messages)
}

// ListOutbox 返回发件人视角的邮件列表，按发送时间倒序。
func (s *Service) ListOutbox(senderID string) ([]domain.Message, error) {
	messages, err := s.store.ListOutbox(senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	return s.enrich(messages)
}

// GetInboxMessage 按 (id, 收件人) 读取单封邮件。
// 邮件不存在、不属于该收件人或已被其删除时返回 (nil, nil)。
func (s *Service) GetInboxMessage(id, recipientID string) (*domain.Message, error) {
	message, err := s.store.GetInboxMessage(id, recipientID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inbox message: %w", err)
	}
	return s.enrichOne(message)
}

// GetOutboxMessage 按 (id, 发件人) 读取单封邮件。
// 邮件不存在、不属于该发件人或已被其删除时返回 (nil, nil)。
func (s *Service) GetOutboxMessage(id, senderID string) (*domain.Message, error) {
	message, err := s.store.GetOutboxMessage(id, senderID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outbox message: %w", err)
	}
	return s.enrichOne(message)
}

// DeleteForSender 发件人删除邮件。
//
// 存储层原子地置发件人删除标记，并在收件人标记也已置位时物理删除
// 记录。物理删除发生且记录带附件时，随后清理附件文件。
func (s *Service) DeleteForSender(id, senderID string) error {
	result, err := s.store.DeleteMessageForSender(id, senderID)
	if err != nil {
		return err
	}
	s.cleanupAttachment(id, result)
	return nil
}

// DeleteForRecipient 收件人删除邮件，语义与 DeleteForSender 对称。
func (s *Service) DeleteForRecipient(id, recipientID string) error {
	result, err := s.store.DeleteMessageForRecipient(id, recipientID)
	if err != nil {
		return err
	}
	s.cleanupAttachment(id, result)
	return nil
}

// cleanupAttachment 在物理删除发生后尽力清理附件文件。
func (s *Service) cleanupAttachment(messageID string, result domain.DeleteResult) {
	if !result.Purged {
		return
	}
	if s.purges != nil {
		s.purges.RecordMessagePurged()
	}
	s.log.Info("message purged", zap.String("message_id", messageID))
	if result.AttachmentStoredName == "" {
		return
	}
	if err := s.blobs.Delete(result.AttachmentStoredName); err != nil {
		// 文件清理失败不影响已完成的记录删除
		s.log.Warn("failed to delete attachment file",
			zap.String("message_id", messageID),
			zap.String("stored_name", result.AttachmentStoredName),
			zap.Error(err),
		)
	}
}

// enrich 批量补充列表中每封邮件的双方展示信息。
func (s *Service) enrich(messages []domain.Message) ([]domain.Message, error) {
	if len(messages) == 0 {
		return []domain.Message{}, nil
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(messages)*2)
	for i := range messages {
		for _, id := range []string{messages[i].SenderID, messages[i].RecipientID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	users, err := s.store.GetUsersByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load message participants: %w", err)
	}

	for i := range messages {
		if u, ok := users[messages[i].SenderID]; ok {
			messages[i].SenderFullName = u.FullName
			messages[i].SenderEmail = u.Email
		}
		if u, ok := users[messages[i].RecipientID]; ok {
			messages[i].RecipientFullName = u.FullName
			messages[i].RecipientEmail = u.Email
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.After(messages[j].SentAt)
	})
	return messages, nil
}

// enrichOne 补充单封邮件的双方展示信息。
func (s *Service) enrichOne(message *domain.Message) (*domain.Message, error) {
	enriched, err := s.enrich([]domain.Message{*message})
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}
