package domain

import "time"

// Store 聚合用户与邮件的存储接口。
//
// 所有实现必须保证 DeleteMessageForSender / DeleteMessageForRecipient
// 的"置标记 + 条件物理删除"在存储层是原子的：两个独立请求并发删除
// 同一封邮件时，物理删除至多发生一次，且不会出现标记已提交而清理
// 未执行的中间状态。
type Store interface {
	// ========== User Repository ==========
	CreateUser(user *User) error
	GetUserByID(id string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUsersByIDs(ids []string) (map[string]*User, error)
	ListUsers() ([]User, error)
	// UpdateUserToken 覆盖用户的会话令牌与过期时间。
	UpdateUserToken(userID, token string, expiresAt time.Time) error
	// GetUserWithLiveToken 按邮箱查找令牌尚未过期的用户行。
	// 过期与不存在合并为 ErrUserNotFound，由调用方决定对外措辞。
	GetUserWithLiveToken(email string, now time.Time) (*User, error)
	// TokenInUse 检查令牌字符串是否已被任意用户行持有（含过期行）。
	TokenInUse(token string) (bool, error)

	// ========== Message Repository ==========
	CreateMessage(message *Message) error
	ListInbox(recipientID string) ([]Message, error)
	ListOutbox(senderID string) ([]Message, error)
	GetInboxMessage(id, recipientID string) (*Message, error)
	GetOutboxMessage(id, senderID string) (*Message, error)
	GetMessage(id string) (*Message, error)
	DeleteMessageForSender(id, senderID string) (DeleteResult, error)
	DeleteMessageForRecipient(id, recipientID string) (DeleteResult, error)
	GetMessageParticipants(id string) (*MessageParticipants, error)

	Health() error
	Close() error
}
