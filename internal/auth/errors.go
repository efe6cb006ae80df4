package auth

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials 凭证无效（未知邮箱与密码错误对外不作区分）
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFoundOrTokenExpired 用户不存在或令牌已过期（合并表述，不泄露具体原因）
	ErrUserNotFoundOrTokenExpired = errors.New("user not found or token expired")
	// ErrInvalidToken 令牌与存储值不匹配
	ErrInvalidToken = errors.New("invalid token")
	// ErrTooManyAttempts 登录尝试过于频繁
	ErrTooManyAttempts = errors.New("too many signin attempts, try again later")
)

// ValidationErrors 聚合一次请求中所有未通过的校验规则。
//
// 注册与登录的字段校验不会在第一条失败时短路，调用方必须能够一次性
// 展示全部违规项。
type ValidationErrors []string

// Error 实现 error 接口。
func (e ValidationErrors) Error() string {
	return strings.Join(e, "; ")
}

// Messages 返回各条校验消息，供调用方逐条渲染。
func (e ValidationErrors) Messages() []string {
	return []string(e)
}
