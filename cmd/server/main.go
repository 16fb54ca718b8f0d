// Package main runs the wind-tunnel rig recorder HTTP server with WebSocket
// monitoring and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/windrig/backend/config"
	"github.com/windrig/backend/internal/auth"
	"github.com/windrig/backend/internal/capture"
	"github.com/windrig/backend/internal/catalog"
	"github.com/windrig/backend/internal/middleware"
	"github.com/windrig/backend/internal/models"
	"github.com/windrig/backend/internal/realtime"
	"github.com/windrig/backend/internal/session"
	"github.com/windrig/backend/internal/worker"
	"github.com/windrig/backend/pkg/database"
	"github.com/windrig/backend/pkg/queue"
	"github.com/windrig/backend/pkg/redis"
	"github.com/windrig/backend/pkg/response"
	"github.com/windrig/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ClipsBucket:          cfg.AWS.ClipsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	// serverCtx bounds background work (finalize indexing, catalog refreshes,
	// archive worker); cancelled on shutdown so in-flight queries are
	// abandoned, not applied late.
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	if err := auth.Bootstrap(ctx, authRepo, cfg.Operator.Email, cfg.Operator.Password, logger); err != nil {
		logger.Warn("operator bootstrap failed", zap.Error(err))
	}

	// Realtime monitoring
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	defer hub.Close()

	// Catalog
	clipRepo := catalog.NewRepository(pool)
	lister := catalog.NewLister(clipRepo, logger)
	lister.SetNotifier(func(snap catalog.Snapshot) { hub.Broadcast("catalog", snap) })
	catalogHandler := catalog.NewHandler(serverCtx, lister, clipRepo, s3Client, cfg.Rig.ClipFolder, logger)
	lister.Refresh(serverCtx, cfg.Rig.ClipFolder)

	// Recording session
	controller := session.NewController(logger,
		session.WithPublisher(func(snap session.Snapshot) { hub.Broadcast("session", snap) }),
	)
	device := capture.NewFFmpegDevice(capture.FFmpegConfig{
		SourceURL:      cfg.Capture.SourceURL,
		OutputDir:      cfg.Capture.OutputDir,
		ClipFolder:     cfg.Rig.ClipFolder,
		MaxDurationSec: cfg.Capture.MaxDurationSec,
	}, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	sessionHandler := session.NewHandler(
		serverCtx, controller, device, clipRepo, lister, jobQueue,
		cfg.Rig.ClipFolder, time.Duration(cfg.Capture.ProbeTimeout)*time.Second, logger,
	)

	tokenValidate := func(token string) (role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/login", authHandler.Login)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Recording session
		api.GET("/rig/state", sessionHandler.State)
		api.POST("/rig/lease", sessionHandler.AcquireCamera)
		api.POST("/rig/record", sessionHandler.PrimaryAction)
		api.POST("/rig/ack-notice", sessionHandler.AcknowledgeNotice)

		// Clip catalog
		api.GET("/rig/clips", catalogHandler.List)
		api.POST("/rig/clips/refresh", catalogHandler.Refresh)
		api.GET("/clips/:id/download-url", catalogHandler.DownloadURL)
	}

	// Admin-only operator management
	admin := router.Group("")
	admin.Use(middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/operators", authHandler.CreateOperator)
	}

	// WebSocket (token in query; no Authorization header on WS dials)
	router.GET("/ws", realtime.ServeWs(hub, logger, tokenValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background archive worker (clip upload to S3)
	if s3Client != nil {
		processor := worker.NewArchiveProcessor(clipRepo, s3Client, jobQueue, logger)
		go processor.Run(serverCtx)
		logger.Info("archive worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	controller.Teardown()
	serverCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
