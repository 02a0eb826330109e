// Package main runs the live-polling HTTP server with WebSocket and graceful shutdown.
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

	"github.com/live-polling/backend/config"
	"github.com/live-polling/backend/internal/middleware"
	"github.com/live-polling/backend/internal/questions"
	"github.com/live-polling/backend/internal/realtime"
	"github.com/live-polling/backend/internal/users"
	"github.com/live-polling/backend/pkg/database"
	"github.com/live-polling/backend/pkg/redis"
	"github.com/live-polling/backend/pkg/response"
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

	// Redis is optional: without it, realtime broadcasts stay local to
	// this instance.
	var pubsub *realtime.RedisPubSub
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub = realtime.NewRedisPubSub(rdb, logger)
	}

	var hub *realtime.Hub
	if pubsub != nil {
		hub = realtime.NewHub(logger, pubsub, pubsub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}
	defer hub.Close()

	// Questions
	questionRepo := questions.NewRepository(pool)
	questionSvc := questions.NewService(questionRepo, logger)
	questionHandler := questions.NewHandler(questionSvc, hub)

	// Users
	userRepo := users.NewRepository(pool)
	userHandler := users.NewHandler(userRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Questions
	router.GET("/questions", questionHandler.List)
	router.GET("/questions/leaderboard", questionHandler.Leaderboard)
	router.GET("/questions/:id", questionHandler.Get)
	router.POST("/questions", questionHandler.Create)
	router.PUT("/questions/:id/vote", questionHandler.Vote)
	router.GET("/questions/:id/results", questionHandler.Results)

	// Users
	router.POST("/users", userHandler.Register)
	router.GET("/users/active", userHandler.ListActive)

	// WebSocket
	router.GET("/ws", realtime.ServeWs(hub, logger, questionSvc, userRepo))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
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
