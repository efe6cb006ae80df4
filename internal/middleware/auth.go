package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/domain"
)

// 会话凭证的 cookie 名
const (
	CookieEmail = "email"
	CookieToken = "token"
)

// userKey 认证通过后存入 gin.Context 的键
const userKey = "user"

// SessionAuth 会话认证中间件
//
// 从 cookie 中取出 (email, token) 交给认证服务校验，通过后把用户
// 记录写入请求上下文。校验失败统一返回 401，不区分用户不存在、
// 令牌过期和令牌不匹配。
func SessionAuth(authService *auth.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, _ := c.Cookie(CookieEmail)
		token, _ := c.Cookie(CookieToken)

		user, err := authService.Authenticate(email, token)
		if err != nil {
			log.Debug("session rejected",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser 取出 SessionAuth 写入的用户记录。
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}
