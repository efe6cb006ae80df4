package memory

import (
	"sort"
	"sync"
	"time"

	"webmail/backend/internal/domain"
)

// Store 使用内存保存用户与邮件数据，主要用于开发验证与测试。
//
// 所有写操作都在同一把互斥锁下完成，因此"置软删除标记 + 双标记物理
// 删除"天然是原子的：并发的发件人删除与收件人删除会被串行化，物理
// 删除至多发生一次。
type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.User    // userID -> user
	byEmail  map[string]string          // email -> userID
	messages map[string]*domain.Message // messageID -> message
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		byEmail:  make(map[string]string),
		messages: make(map[string]*domain.Message),
	}
}

// ========== User Repository ==========

// CreateUser 创建新用户，邮箱重复时返回 ErrEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return domain.ErrEmailExists
	}

	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[user.Email] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetUserByEmail 根据邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// GetUsersByIDs 批量获取用户，返回 ID 到用户的映射；缺失的 ID 被跳过。
func (s *Store) GetUsersByIDs(ids []string) (map[string]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			clone := *user
			out[id] = &clone
		}
	}
	return out, nil
}

// ListUsers 返回全部用户，按邮箱排序。
func (s *Store) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, *user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// UpdateUserToken 覆盖用户的会话令牌与过期时间。
func (s *Store) UpdateUserToken(userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Token = token
	user.TokenExpiresAt = &expiresAt
	user.UpdatedAt = time.Now()
	return nil
}

// GetUserWithLiveToken 按邮箱查找令牌未过期的用户行。
// 不存在与已过期统一返回 ErrUserNotFound。
func (s *Store) GetUserWithLiveToken(email string, now time.Time) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := s.users[id]
	if user.TokenExpiresAt == nil || !user.TokenExpiresAt.After(now) {
		return nil, domain.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// TokenInUse 检查令牌字符串是否已被任意用户行持有（含过期行）。
func (s *Store) TokenInUse(token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Token == token {
			return true, nil
		}
	}
	return false, nil
}

// ========== Message Repository ==========

// CreateMessage 保存新邮件。
func (s *Store) CreateMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *message
	s.messages[message.ID] = &clone
	return nil
}

// ListInbox 返回收件人未软删除的全部邮件。
func (s *Store) ListInbox(recipientID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, m := range s.messages {
		if m.RecipientID == recipientID && !m.DeletedByRecipient {
			out = append(out, *m)
		}
	}
	return out, nil
}

// ListOutbox 返回发件人未软删除的全部邮件。
func (s *Store) ListOutbox(senderID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, m := range s.messages {
		if m.SenderID == senderID && !m.DeletedBySender {
			out = append(out, *m)
		}
	}
	return out, nil
}

// GetInboxMessage 按 (id, recipientID) 获取邮件，无匹配时返回 ErrMessageNotFound。
func (s *Store) GetInboxMessage(id, recipientID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok || m.RecipientID != recipientID || m.DeletedByRecipient {
		return nil, domain.ErrMessageNotFound
	}
	clone := *m
	return &clone, nil
}

// GetOutboxMessage 按 (id, senderID) 获取邮件，无匹配时返回 ErrMessageNotFound。
func (s *Store) GetOutboxMessage(id, senderID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok || m.SenderID != senderID || m.DeletedBySender {
		return nil, domain.ErrMessageNotFound
	}
	clone := *m
	return &clone, nil
}

// GetMessage 按 ID 获取邮件（不限定归属方）。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	clone := *m
	return &clone, nil
}

// DeleteMessageForSender 将邮件标记为发件人已删除；若收件人也已删除
// 则物理移除记录。整个转移在一次加锁内完成。
func (s *Store) DeleteMessageForSender(id, senderID string) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.SenderID != senderID {
		return domain.DeleteResult{}, domain.ErrMessageNotFound
	}

	m.DeletedBySender = true
	if m.DeletedByRecipient {
		delete(s.messages, id)
		return domain.DeleteResult{Purged: true, AttachmentStoredName: m.AttachmentStoredName}, nil
	}
	return domain.DeleteResult{}, nil
}

// DeleteMessageForRecipient 将邮件标记为收件人已删除；若发件人也已删除
// 则物理移除记录。与 DeleteMessageForSender 对称。
func (s *Store) DeleteMessageForRecipient(id, recipientID string) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.RecipientID != recipientID {
		return domain.DeleteResult{}, domain.ErrMessageNotFound
	}

	m.DeletedByRecipient = true
	if m.DeletedBySender {
		delete(s.messages, id)
		return domain.DeleteResult{Purged: true, AttachmentStoredName: m.AttachmentStoredName}, nil
	}
	return domain.DeleteResult{}, nil
}

// GetMessageParticipants 返回附件鉴权所需的单次读取视图。
func (s *Store) GetMessageParticipants(id string) (*domain.MessageParticipants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}

	info := &domain.MessageParticipants{
		MessageID:              m.ID,
		AttachmentOriginalName: m.AttachmentOriginalName,
		AttachmentStoredName:   m.AttachmentStoredName,
	}
	if sender, ok := s.users[m.SenderID]; ok {
		info.SenderEmail = sender.Email
		info.SenderToken = sender.Token
	}
	if recipient, ok := s.users[m.RecipientID]; ok {
		info.RecipientEmail = recipient.Email
		info.RecipientToken = recipient.Token
	}
	return info, nil
}

// Health 内存存储恒为健康。
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
