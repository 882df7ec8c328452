// cmd/server/main.go — HTTP API serving the workflow core.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/yourorg/upkeep/internal/alerts"
	"github.com/yourorg/upkeep/internal/audit"
	"github.com/yourorg/upkeep/internal/config"
	"github.com/yourorg/upkeep/internal/db"
	"github.com/yourorg/upkeep/internal/httpapi"
	"github.com/yourorg/upkeep/internal/idempotency"
	"github.com/yourorg/upkeep/internal/locks"
	"github.com/yourorg/upkeep/internal/migrate"
	"github.com/yourorg/upkeep/internal/syncsvc"
	"github.com/yourorg/upkeep/internal/workflow"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger.Info("connecting to database", "url", cfg.DatabaseURL)
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if applied, err := migrate.Run(ctx, pool); err != nil {
		logger.Error("run migrations failed", "err", err)
		os.Exit(1)
	} else if len(applied) > 0 {
		logger.Info("migrations applied", "versions", applied)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("parse redis URL failed", "err", err, "url", cfg.RedisURL)
		os.Exit(1)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	logger.Info("connecting to redis", "url", cfg.RedisURL)
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	locker := locks.NewLocker(rc)
	machine := workflow.NewMachine()

	api := &httpapi.Server{
		Pool:        pool,
		Redis:       rc,
		Workflow:    workflow.NewService(pool, locker, machine, logger),
		Alerts:      alerts.NewRecorder(pool),
		Assets:      audit.NewAssetService(pool, locker, machine, logger),
		Ingestor:    syncsvc.NewIngestor(pool, locker, machine, logger),
		Idempotency: idempotency.NewStore(pool, logger),
		JWTSecret:   []byte(cfg.JWTSecret),
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "err", err)
	}
	logger.Info("shutdown complete")
}
