package sql

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"webmail/backend/internal/domain"
)

// ========== User Repository ==========

const userColumns = `id, full_name, email, password_hash, token, token_expires_at, created_at, updated_at`

// scanUser 从单行结果扫描用户，处理可空的令牌字段。
func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var user domain.User
	var token sql.NullString
	var tokenExpiresAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&token,
		&tokenExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if token.Valid {
		user.Token = token.String
	}
	if tokenExpiresAt.Valid {
		user.TokenExpiresAt = &tokenExpiresAt.Time
	}
	return &user, nil
}

// CreateUser 创建新用户，违反邮箱唯一约束时返回 ErrEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	query := s.rebind(`
		INSERT INTO users (id, full_name, email, password_hash, token, token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	var token any
	if user.Token != "" {
		token = user.Token
	}
	_, err := s.db.Exec(query,
		user.ID,
		user.FullName,
		user.Email,
		user.PasswordHash,
		token,
		user.TokenExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrEmailExists
	}
	return err
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	user, err := scanUser(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	user, err := scanUser(s.db.QueryRow(query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// GetUsersByIDs 批量获取用户，返回 ID 到用户的映射；缺失的 ID 被跳过。
func (s *Store) GetUsersByIDs(ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders + `)`)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[user.ID] = user
	}
	return out, rows.Err()
}

// ListUsers 返回全部用户，按邮箱排序。
func (s *Store) ListUsers() ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY email`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateUserToken 覆盖用户的会话令牌与过期时间
func (s *Store) UpdateUserToken(userID, token string, expiresAt time.Time) error {
	query := s.rebind(`UPDATE users SET token = ?, token_expires_at = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.Exec(query, token, expiresAt, time.Now(), userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetUserWithLiveToken 按邮箱查找令牌未过期的用户行。
// 行查找与过期判断在同一条语句中完成，过期行永远不会被返回。
func (s *Store) GetUserWithLiveToken(email string, now time.Time) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ? AND token_expires_at > ?`)
	user, err := scanUser(s.db.QueryRow(query, email, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// TokenInUse 检查令牌字符串是否已被任意用户行持有（含过期行）
func (s *Store) TokenInUse(token string) (bool, error) {
	query := s.rebind(`SELECT COUNT(*) FROM users WHERE token = ?`)
	var count int
	if err := s.db.QueryRow(query, token).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// isUniqueViolation 判断是否为唯一约束冲突（MySQL 1062 / PostgreSQL 23505）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint")
}
