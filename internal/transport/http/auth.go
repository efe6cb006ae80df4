package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/monitoring"
)

// AuthHandler 处理注册、登录和会话相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service
	metrics     *monitoring.Metrics
	tokenTTL    time.Duration
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, metrics *monitoring.Metrics, tokenTTL time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     metrics,
		tokenTTL:    tokenTTL,
		log:         log,
	}
}

type signupRequest struct {
	FullName             string `json:"fullName"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup 用户注册
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Signup(req.FullName, req.Email, req.Password, req.PasswordConfirmation)
	if err != nil {
		var verrs auth.ValidationErrors
		if errors.As(err, &verrs) {
			BadRequestWithDetails(c, MsgSignupFailed, verrs.Messages())
			return
		}
		h.log.Error("failed to sign up user", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignup()
	}
	Created(c, user.Profile())
}

// Signin 用户登录
//
// 成功时把 (email, token) 写入 HttpOnly cookie，cookie 生命周期与
// 令牌一致。
func (h *AuthHandler) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Signin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var verrs auth.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			BadRequestWithDetails(c, MsgInvalidRequest, verrs.Messages())
		case errors.Is(err, auth.ErrInvalidCredentials):
			if h.metrics != nil {
				h.metrics.RecordSignin("failure")
			}
			Unauthorized(c, MsgInvalidCredentials)
		case errors.Is(err, auth.ErrTooManyAttempts):
			TooManyRequests(c, MsgTooManyAttempts)
		default:
			h.log.Error("failed to sign in user", zap.Error(err))
			InternalError(c, MsgInternalError)
		}
		return
	}

	maxAge := int(h.tokenTTL.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieEmail, user.Email, maxAge, "/", "", false, true)
	c.SetCookie(middleware.CookieToken, user.Token, maxAge, "/", "", false, true)

	if h.metrics != nil {
		h.metrics.RecordSignin("success")
	}
	Success(c, user.Profile())
}

// Signout 清除会话 cookie。
//
// 服务端存储的令牌不主动作废，会在过期或被下次登录覆盖时失效。
func (h *AuthHandler) Signout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieEmail, "", -1, "/", "", false, true)
	c.SetCookie(middleware.CookieToken, "", -1, "/", "", false, true)
	Success(c, nil)
}

// Me 返回当前会话对应的用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}
	Success(c, user.Profile())
}
