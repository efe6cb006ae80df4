package attachment

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"webmail/backend/internal/domain"
)

// ParticipantStore 附件鉴权所需的存储接口
type ParticipantStore interface {
	GetMessageParticipants(id string) (*domain.MessageParticipants, error)
}

// Gate 附件访问鉴权
//
// 独立于会话认证的一条路径：请求方出示的 (email, token) 必须与邮件
// 发件人或收件人当前存储的凭证对精确一致才放行。任一侧凭证为空时
// 一律拒绝，避免从未登录过的账号（存储令牌为空串）被空令牌命中。
type Gate struct {
	store ParticipantStore
	log   *zap.Logger
}

// NewGate 创建附件鉴权器
func NewGate(store ParticipantStore, log *zap.Logger) *Gate {
	return &Gate{store: store, log: log}
}

// AttachmentRef 鉴权通过后用于定位附件文件的引用
type AttachmentRef struct {
	OriginalName string // 下载时呈现给用户的文件名
	StoredName   string // 磁盘上的不透明文件名
}

// Authorize 判断请求方是否有权下载某邮件的附件。
//
// 邮件不存在时返回 domain.ErrMessageNotFound，邮件存在但无附件时
// 返回 domain.ErrAttachmentNotFound。凭证不匹配返回 (false, nil)，
// 由调用方决定对外响应。
func (g *Gate) Authorize(requesterEmail, requesterToken, messageID string) (bool, *AttachmentRef, error) {
	participants, err := g.store.GetMessageParticipants(messageID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return false, nil, domain.ErrMessageNotFound
		}
		return false, nil, fmt.Errorf("failed to load message participants: %w", err)
	}

	if participants.AttachmentStoredName == "" {
		return false, nil, domain.ErrAttachmentNotFound
	}

	email := strings.ToLower(strings.TrimSpace(requesterEmail))
	if email == "" || requesterToken == "" {
		return false, nil, nil
	}

	matchesSender := email == participants.SenderEmail &&
		participants.SenderToken != "" &&
		requesterToken == participants.SenderToken
	matchesRecipient := email == participants.RecipientEmail &&
		participants.RecipientToken != "" &&
		requesterToken == participants.RecipientToken

	if !matchesSender && !matchesRecipient {
		g.log.Warn("attachment access denied",
			zap.String("message_id", messageID),
			zap.String("requester_email", email),
		)
		return false, nil, nil
	}

	return true, &AttachmentRef{
		OriginalName: participants.AttachmentOriginalName,
		StoredName:   participants.AttachmentStoredName,
	}, nil
}
