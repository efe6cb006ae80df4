package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"webmail/backend/internal/domain"
)

// UserRepository 会话认证所需的用户存储接口
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByEmail(email string) (*domain.User, error)
	UpdateUserToken(userID, token string, expiresAt time.Time) error
	GetUserWithLiveToken(email string, now time.Time) (*domain.User, error)
	TokenInUse(token string) (bool, error)
}

// Service 会话认证服务
//
// 负责注册、登录（签发会话令牌）和按 (email, token) 校验会话。
// 每个用户至多持有一个有效令牌：登录时整体覆盖旧值，覆盖即撤销。
type Service struct {
	users    UserRepository
	throttle *Throttle // 可选的登录限流器，nil 表示不限流
	tokenTTL time.Duration
	log      *zap.Logger
	now      func() time.Time // 可注入的时钟，测试时替换
}

// NewService 创建认证服务
func NewService(users UserRepository, tokenTTL time.Duration, log *zap.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		users:    users,
		tokenTTL: tokenTTL,
		log:      log,
		now:      time.Now,
	}
}

// SetThrottle 配置登录限流器。
func (s *Service) SetThrottle(t *Throttle) {
	s.throttle = t
}

// Signup 用户注册。
//
// 所有字段校验一次性完成，返回的 ValidationErrors 包含每一条违规规则，
// 不在第一条失败时短路。成功时返回不含密码哈希的用户记录。
func (s *Service) Signup(fullName, email, password, passwordConfirmation string) (*domain.User, error) {
	email = normalizeEmail(email)

	var errs ValidationErrors
	if strings.TrimSpace(fullName) == "" {
		errs = append(errs, "full name is required")
	}
	if email == "" {
		errs = append(errs, "email is required")
	}
	if password == "" {
		errs = append(errs, "password is required")
	}
	if passwordConfirmation == "" {
		errs = append(errs, "password confirmation is required")
	}
	if password != "" && len(password) < 6 {
		errs = append(errs, "password must be at least 6 characters")
	}
	if password != "" && passwordConfirmation != "" && password != passwordConfirmation {
		errs = append(errs, "passwords do not match")
	}
	if email != "" {
		if _, err := s.users.GetUserByEmail(email); err == nil {
			errs = append(errs, "email is already registered")
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New().String(),
		FullName:     strings.TrimSpace(fullName),
		Email:        email,
		PasswordHash: string(passwordHash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			// 并发注册竞争同一邮箱时走到这里
			return nil, ValidationErrors{"email is already registered"}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user signed up",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
	)

	user.PasswordHash = ""
	return user, nil
}

// Signin 用户登录。
//
// 成功时签发新的会话令牌并持久化，返回的用户记录中 Token 与
// TokenExpiresAt 已填充。未知邮箱与密码错误统一返回
// ErrInvalidCredentials，避免探测已注册邮箱。
func (s *Service) Signin(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)

	var errs ValidationErrors
	if email == "" {
		errs = append(errs, "email is required")
	}
	if password == "" {
		errs = append(errs, "password is required")
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, email)
		if err != nil {
			// 限流器故障不阻断登录，只记录
			s.log.Warn("signin throttle unavailable", zap.Error(err))
		} else if !ok {
			return nil, ErrTooManyAttempts
		}
	}

	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken()
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.tokenTTL)
	if err := s.users.UpdateUserToken(user.ID, token, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.log.Debug("failed to reset signin counter", zap.Error(err))
		}
	}

	s.log.Info("user signed in",
		zap.String("user_id", user.ID),
		zap.Time("token_expires_at", expiresAt),
	)

	user.Token = token
	user.TokenExpiresAt = &expiresAt
	user.PasswordHash = ""
	return user, nil
}

// Authenticate 按 (email, token) 校验会话。
//
// 行查找与过期判断在存储层的同一次读取中完成：过期行即使令牌字符串
// 仍然相等也绝不会通过校验。"用户不存在"与"令牌过期"合并为同一个
// 错误，令牌不匹配单独返回 ErrInvalidToken。
func (s *Service) Authenticate(email, token string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || token == "" {
		return nil, ErrUserNotFoundOrTokenExpired
	}

	user, err := s.users.GetUserWithLiveToken(email, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFoundOrTokenExpired
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if user.Token != token {
		return nil, ErrInvalidToken
	}

	user.PasswordHash = ""
	return user, nil
}

// normalizeEmail 统一邮箱大小写并去除首尾空白。
// 存储的始终是规范化形式，因此数据库比较可以保持精确匹配。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
