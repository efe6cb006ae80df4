package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webmail/backend/internal/attachment"
	"webmail/backend/internal/auth"
	"webmail/backend/internal/config"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/health"
	"webmail/backend/internal/logger"
	"webmail/backend/internal/mailbox"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/smtp"
	"webmail/backend/internal/storage/filesystem"
	"webmail/backend/internal/storage/memory"
	"webmail/backend/internal/storage/redis"
	sqlstore "webmail/backend/internal/storage/sql"
	httptransport "webmail/backend/internal/transport/http"
	"webmail/backend/internal/websocket"
)

// main 启动包含 HTTP API 与可选 SMTP 入口的邮件服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.LogFile,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting webmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储层：配置了数据库则用 SQL 存储，否则用内存存储（开发环境）
	var store domain.Store
	if cfg.Database.Type != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			log.Fatal("failed to initialize database storage", zap.Error(err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 附件文件存储
	blobs, err := filesystem.NewStore(cfg.Uploads.Path)
	if err != nil {
		log.Fatal("failed to initialize attachment storage", zap.Error(err))
	}
	log.Info("attachment storage initialized", zap.String("path", cfg.Uploads.Path))

	// Redis（仅用于登录限流，未配置则禁用）
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb, err = redis.New(&cfg.Redis, log)
		if err != nil {
			log.Warn("failed to connect to Redis, signin throttling disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	// 监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, rdb, log)

	// 服务层
	authService := auth.NewService(store, cfg.Auth.TokenTTL, log)
	if rdb != nil {
		authService.SetThrottle(auth.NewThrottle(rdb, cfg.Auth.SigninMaxAttempts, cfg.Auth.SigninWindow))
	}
	mailboxService := mailbox.NewService(store, blobs, log)
	mailboxService.SetPurgeRecorder(metrics)
	attachmentGate := attachment.NewGate(store, log)

	// WebSocket Hub：新邮件实时通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, metrics, log)
	mailboxService.SetNotifier(wsHub)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AuthService:    authService,
		MailboxService: mailboxService,
		AttachmentGate: attachmentGate,
		Blobs:          blobs,
		Store:          store,
		Metrics:        metrics,
		Health:         healthChecker,
		WebSocketHub:   wsHub,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SMTP 服务器（可选）
	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		limiter := smtp.NewConnectionLimiter(50, 10)
		smtpBackend := smtp.NewBackend(store, mailboxService, limiter, log)
		smtpServer = gosmtp.NewServer(smtpBackend)
		smtpServer.Addr = cfg.SMTP.BindAddr
		smtpServer.Domain = cfg.SMTP.Domain
		smtpServer.AllowInsecureAuth = cfg.Log.Development
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = 10 * 1024 * 1024
		smtpServer.MaxRecipients = 50
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
