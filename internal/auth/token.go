package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// tokenBytes 令牌随机字节数（256 位熵，十六进制后 64 字符）
	tokenBytes = 32
	// maxTokenAttempts 碰撞重试上限
	maxTokenAttempts = 5
)

// generateToken 生成全局唯一的会话令牌。
//
// 令牌接受前会检查是否已有任意用户行（含过期行）持有相同字符串，
// 碰撞时重新生成。
func (s *Service) generateToken() (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		buf := make([]byte, tokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		token := hex.EncodeToString(buf)

		inUse, err := s.users.TokenInUse(token)
		if err != nil {
			return "", fmt.Errorf("failed to check token uniqueness: %w", err)
		}
		if !inUse {
			return token, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique token after %d attempts", maxTokenAttempts)
}
