package smtp

import (
	"errors"
	"fmt"
	"io"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/mailbox"
)

// UserResolver 把邮件地址解析为注册用户
type UserResolver interface {
	GetUserByEmail(email string) (*domain.User, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收站内邮件的 SMTP 入口：发件人与收件人都必须是系统
// 中的注册用户，任何一方不是注册用户都会被拒绝，因此服务器不可能
// 被用作对外中继。
type Backend struct {
	users     UserResolver
	mailboxes *mailbox.Service
	limiter   *ConnectionLimiter
	log       *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(users UserResolver, mailboxes *mailbox.Service, limiter *ConnectionLimiter, log *zap.Logger) *Backend {
	return &Backend{
		users:     users,
		mailboxes: mailboxes,
		limiter:   limiter,
		log:       log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend    *Backend
	sender     *domain.User
	recipients []*domain.User
	released   bool
}

// Mail 处理 MAIL 命令。发件地址必须属于注册用户。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	addr := normalizeAddress(from)

	user, err := s.backend.users.GetUserByEmail(addr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
				Message:      "sender is not a registered user",
			}
		}
		s.backend.log.Error("smtp sender lookup failed", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary failure",
		}
	}

	s.sender = user
	return nil
}

// Rcpt 处理 RCPT 命令。只接受发给注册用户的邮件。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if !strings.Contains(addr, "@") {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	user, err := s.backend.users.GetUserByEmail(addr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient not found",
			}
		}
		s.backend.log.Error("smtp recipient lookup failed", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary failure",
		}
	}

	s.recipients = append(s.recipients, user)
	return nil
}

// Data 处理邮件内容：解析 MIME 并为每个收件人创建一封站内邮件。
func (s *session) Data(r io.Reader) error {
	if s.sender == nil || len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "bad sequence of commands",
		}
	}

	rawBytes, err := io.ReadAll(io.LimitReader(r, 10<<20))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		return fmt.Errorf("parse email: %w", err)
	}

	body := parsed.Text
	if body == "" {
		body = parsed.HTML
	}

	for _, rcpt := range s.recipients {
		_, err := s.backend.mailboxes.CreateMessage(
			s.sender.ID, rcpt.ID, parsed.Subject, body, "", "")
		if err != nil {
			s.backend.log.Error("smtp message create failed",
				zap.String("sender_id", s.sender.ID),
				zap.String("recipient_id", rcpt.ID),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "failed to store message",
			}
		}
	}

	s.backend.log.Info("smtp message accepted",
		zap.String("sender_id", s.sender.ID),
		zap.Int("recipients", len(s.recipients)),
	)
	return nil
}

// AuthPlain 处理 PLAIN 认证（允许匿名，身份由地址校验约束）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.sender = nil
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil && !s.released {
		s.backend.limiter.Release()
		s.released = true
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
