// Package autoclose transitions overdue jobneeds to their terminal states
// without human action. Every mutation happens under the same per-entity
// named lock as the interactive workflow service, so concurrent scan passes
// converge on exactly one status change and one audit marker.
package autoclose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourorg/upkeep/internal/domain"
	"github.com/yourorg/upkeep/internal/locks"
	"github.com/yourorg/upkeep/internal/mailer"
)

const (
	lockTTL  = 15 * time.Second
	lockWait = 10 * time.Second

	// scanBatch bounds work per cycle; leftovers are picked up next tick.
	scanBatch = 500
)

// Execer is the single pool method MarkMailSent needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Scanner struct {
	pool   *pgxpool.Pool
	locker *locks.Locker
	mailer mailer.Mailer
	logger *slog.Logger
}

// NewScanner builds a Scanner. m may be nil, which disables alert mail but
// not the autoclose itself.
func NewScanner(pool *pgxpool.Pool, locker *locks.Locker, m mailer.Mailer, logger *slog.Logger) *Scanner {
	return &Scanner{pool: pool, locker: locker, mailer: m, logger: logger}
}

// Scan finds expired top-level jobneeds past their grace window and closes
// each under its lock. Checkpoint children are never scanned directly; their
// fate is decided by the parent's aggregation.
func (s *Scanner) Scan(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM jobneeds
		WHERE parent_id IS NULL
		  AND status IN ('ASSIGNED', 'INPROGRESS', 'PARTIALLYCOMPLETED')
		  AND expire_at + (grace_minutes * interval '1 minute') < NOW()
		ORDER BY expire_at ASC
		LIMIT $1`, scanBatch)
	if err != nil {
		return err
	}

	var candidates []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.closeOne(ctx, id); err != nil {
			if errors.Is(err, locks.ErrNotAcquired) {
				// Another worker holds this jobneed; it will finish the close.
				continue
			}
			s.logger.Error("autoclose failed", "jobneed_id", id, "err", err)
		}
	}
	return nil
}

// closeOne re-reads the jobneed under lock, tallies its checkpoints, and
// writes the terminal status plus the autoclosed_by_server audit marker.
// A jobneed that reached a terminal state since the scan query is a no-op.
//
// Both the jobneed-scoped and the parent-scoped lock are taken, in that
// order, so autoclose excludes interactive status transitions (which hold
// the former) and checkpoint updates (which hold the latter). No other code
// path holds both, so the fixed order cannot deadlock.
func (s *Scanner) closeOne(ctx context.Context, id uuid.UUID) error {
	lease, err := s.locker.Acquire(ctx, locks.JobneedKey(id), lockTTL, lockWait)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	parentLease, err := s.locker.Acquire(ctx, locks.ParentKey(id), lockTTL, lockWait)
	if err != nil {
		return err
	}
	defer parentLease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var status domain.JobneedStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM jobneeds WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if status.Terminal() {
		return tx.Rollback(ctx)
	}

	var tally ChildTally
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM jobneeds WHERE parent_id = $1`, id).Scan(&tally.Total, &tally.Completed)
	if err != nil {
		return err
	}

	terminal := Decide(tally)
	_, err = tx.Exec(ctx, `
		UPDATE jobneeds SET
			status     = $1,
			other_info = other_info || '{"autoclosed_by_server": true}'::jsonb,
			version    = version + 1,
			updated_at = NOW()
		WHERE id = $2`, terminal, id)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("jobneed autoclosed",
		"jobneed_id", id,
		"terminal", string(terminal),
		"children", tally.Total,
		"completed", tally.Completed)

	dispatchAlertMail(ctx, s.pool, s.mailer, s.logger, id, terminal)
	return nil
}

// MarkMailSent flips ismailsent in a single conditional statement. Returns
// true only for the caller that actually flipped the flag, so ten concurrent
// calls dispatch at most one email. No named lock needed for a single-field
// update with no cross-row coupling.
func MarkMailSent(ctx context.Context, db Execer, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE jobneeds SET
			ismailsent = TRUE,
			other_info = other_info || '{"email_sent": true}'::jsonb,
			updated_at = NOW()
		WHERE id = $1
		  AND NOT ismailsent`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// dispatchAlertMail claims the mail-sent flag and sends at most one alert
// email per jobneed: the flag flip is the claim, so of N concurrent callers
// exactly one observes flipped=true and dispatches. Mail failures are logged
// only; the autoclose itself has already committed.
func dispatchAlertMail(
	ctx context.Context,
	db Execer,
	m mailer.Mailer,
	logger *slog.Logger,
	id uuid.UUID,
	terminal domain.JobneedStatus,
) {
	if m == nil {
		return
	}
	flipped, err := MarkMailSent(ctx, db, id)
	if err != nil {
		logger.Error("mark mail sent failed", "jobneed_id", id, "err", err)
		return
	}
	if !flipped {
		return
	}

	subject := fmt.Sprintf("Job %s autoclosed as %s", id, terminal)
	body := fmt.Sprintf("Jobneed %s was closed by the server with status %s.", id, terminal)
	if err := m.Send(ctx, subject, body); err != nil {
		logger.Error("alert email dispatch failed", "jobneed_id", id, "err", err)
		return
	}
	logger.Info("alert email sent", "jobneed_id", id, "terminal", string(terminal))
}
