// cmd/worker/main.go — background scans: job autoclose, ticket escalation,
// idempotency GC. A Postgres advisory lock elects one scanning node; every
// mutation is additionally guarded by per-entity named locks.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/yourorg/upkeep/internal/autoclose"
	"github.com/yourorg/upkeep/internal/config"
	"github.com/yourorg/upkeep/internal/db"
	"github.com/yourorg/upkeep/internal/election"
	"github.com/yourorg/upkeep/internal/escalate"
	"github.com/yourorg/upkeep/internal/idempotency"
	"github.com/yourorg/upkeep/internal/locks"
	"github.com/yourorg/upkeep/internal/mailer"
	"github.com/yourorg/upkeep/internal/migrate"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

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

	var mail mailer.Mailer
	if cfg.SMTPAddr != "" && len(cfg.AlertRecipients) > 0 {
		mail = &mailer.SMTP{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom, To: cfg.AlertRecipients}
		logger.Info("alert mail enabled", "smtp_addr", cfg.SMTPAddr)
	} else {
		logger.Info("alert mail disabled")
	}

	locker := locks.NewLocker(rc)
	closer := autoclose.NewScanner(pool, locker, mail, logger)
	escalator := escalate.NewEscalator(pool, locker, mail, logger)
	idem := idempotency.NewStore(pool, logger)

	election.RunAsLeader(ctx, pool, logger, func(ctx context.Context) {
		c := cron.New()

		c.AddFunc("* * * * *", func() {
			if err := closer.Scan(ctx); err != nil && ctx.Err() == nil {
				logger.Error("autoclose scan failed", "err", err)
			}
		})
		c.AddFunc("* * * * *", func() {
			if err := escalator.Scan(ctx); err != nil && ctx.Err() == nil {
				logger.Error("escalation scan failed", "err", err)
			}
		})
		c.AddFunc("@hourly", func() {
			purged, err := idem.Cleanup(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error("idempotency cleanup failed", "err", err)
				return
			}
			if purged > 0 {
				logger.Info("idempotency records purged", "count", purged)
			}
		})

		logger.Info("scan schedules registered")
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
	})

	logger.Info("shutdown complete")
}
