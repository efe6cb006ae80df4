package domain

import "time"

// User 表示注册用户的业务实体。
//
// Token 与 TokenExpiresAt 保存当前会话令牌：每次成功登录都会整体覆盖
// 旧值，覆盖本身即为撤销机制，系统中不存在单独的令牌吊销表。
type User struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FullName       string     `json:"fullName" gorm:"type:varchar(255);not null"`
	Email          string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash   string     `json:"-" gorm:"type:varchar(255);not null"` // 不返回给前端
	Token          string     `json:"-" gorm:"type:varchar(64);index"`     // 会话令牌，空串表示从未登录
	TokenExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HasLiveToken 判断用户在给定时刻是否持有未过期的会话令牌。
func (u *User) HasLiveToken(now time.Time) bool {
	return u.Token != "" && u.TokenExpiresAt != nil && u.TokenExpiresAt.After(now)
}

// Profile 是可以安全返回给前端的用户视图（不含哈希与令牌）。
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Profile 返回用户的公开视图。
func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
	}
}
