package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/attachment"
	"webmail/backend/internal/auth"
	"webmail/backend/internal/config"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/health"
	"webmail/backend/internal/mailbox"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/storage/filesystem"
	"webmail/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AuthService    *auth.Service
	MailboxService *mailbox.Service
	AttachmentGate *attachment.Gate
	Blobs          *filesystem.Store
	Store          domain.Store
	Metrics        *monitoring.Metrics
	Health         *health.Checker
	WebSocketHub   *websocket.Hub
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// 请求体上限比附件上限略高，容纳 multipart 自身的开销
	router.Use(middleware.RequestSizeLimit(deps.Config.Uploads.MaxSize + 1024*1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时不能同时携带凭证
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, deps.Config.Auth.TokenTTL, deps.Logger)
	mailboxHandler := NewMailboxHandler(deps.MailboxService, deps.Blobs, deps.Metrics,
		deps.Config.Server.PageSize, deps.Config.Uploads.MaxSize, deps.Logger)
	attachmentHandler := NewAttachmentHandler(deps.AttachmentGate, deps.Blobs, deps.Metrics, deps.Logger)
	userHandler := NewUserHandler(deps.Store, deps.Logger)

	sessionAuth := middleware.SessionAuth(deps.AuthService, deps.Logger)

	// 运维端点
	if deps.Health != nil {
		router.GET("/live", gin.WrapH(deps.Health.Handler()))
		router.GET("/ready", gin.WrapH(deps.Health.Handler()))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/signup", authHandler.Signup)
			authRoutes.POST("/signin", authHandler.Signin)
			authRoutes.POST("/signout", authHandler.Signout)
			authRoutes.GET("/me", sessionAuth, authHandler.Me)
		}

		// ========== User Routes ==========
		v1.GET("/users", sessionAuth, userHandler.List)

		// ========== Mailbox Routes ==========
		v1.GET("/inbox", sessionAuth, mailboxHandler.ListInbox)
		v1.GET("/inbox/:id", sessionAuth, mailboxHandler.GetInboxMessage)
		v1.GET("/outbox", sessionAuth, mailboxHandler.ListOutbox)
		v1.GET("/outbox/:id", sessionAuth, mailboxHandler.GetOutboxMessage)
		v1.POST("/messages", sessionAuth, mailboxHandler.CreateMessage)
		v1.DELETE("/messages", sessionAuth, mailboxHandler.DeleteMessages)

		// ========== Attachment Routes ==========
		// 附件走独立鉴权，不挂会话认证中间件
		v1.GET("/attachments/:messageId", attachmentHandler.Download)

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", sessionAuth, websocket.Handler(deps.WebSocketHub))
		}
	}

	return router
}
