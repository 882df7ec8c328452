// Package election picks one scan leader per cluster via a Postgres
// advisory lock. Leadership only avoids redundant scanning; every mutation
// the scans perform is separately guarded by per-entity named locks, so
// correctness never depends on a single leader.
package election

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// scanLeaderKey is the advisory lock key for scan-leader election.
const scanLeaderKey = int64(0x55504b45)

// RunAsLeader competes for the advisory lock and runs fn on the winner. The
// lock is held on a dedicated connection so it auto-releases if the process
// crashes. Non-winners retry every 10 seconds. fn should block until ctx is
// canceled or leadership should be surrendered.
func RunAsLeader(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, fn func(ctx context.Context)) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			logger.Error("election: acquire failed", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}

		var won bool
		err = conn.QueryRow(ctx,
			`SELECT pg_try_advisory_lock($1)`, scanLeaderKey).Scan(&won)
		if err != nil || !won {
			conn.Release()
			time.Sleep(10 * time.Second)
			continue
		}

		logger.Info("election: won scan leadership")
		fn(ctx)
		conn.Release()
	}
}
