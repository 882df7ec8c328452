// Package escalate walks open tickets through the escalation matrix. Level
// increments and ticketlog appends run under the per-ticket named lock so
// concurrent scans never double-increment a level or lose a history entry.
package escalate

import (
	"context"
	"encoding/json"
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
	"github.com/yourorg/upkeep/internal/workflow"
)

const (
	lockTTL  = 10 * time.Second
	lockWait = 5 * time.Second

	scanBatch = 500

	historyKey = "ticket_history"
)

// Execer is the single-statement slice of pgxpool.Pool the mail marker
// needs. Tests substitute an in-memory fake.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Escalator struct {
	pool   *pgxpool.Pool
	locker *locks.Locker
	mailer mailer.Mailer
	logger *slog.Logger
}

// NewEscalator builds an escalator. A nil mailer disables escalation emails
// but not escalation itself.
func NewEscalator(pool *pgxpool.Pool, locker *locks.Locker, m mailer.Mailer, logger *slog.Logger) *Escalator {
	return &Escalator{pool: pool, locker: locker, mailer: m, logger: logger}
}

// Scan loads the escalation matrix once, finds non-terminal tickets whose
// current level's threshold has been crossed, and escalates each one level
// under its lock.
func (e *Escalator) Scan(ctx context.Context) error {
	rules, err := e.loadMatrix(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	rows, err := e.pool.Query(ctx, `
		SELECT t.id FROM tickets t
		JOIN escalation_matrix m
		  ON m.category = t.category AND m.level = t.level
		WHERE t.status IN ('NEW', 'OPEN')
		  AND COALESCE(t.escalated_at, t.created_at)
		      + (m.threshold_minutes * interval '1 minute') <= NOW()
		ORDER BY t.created_at ASC
		LIMIT $1`, scanBatch)
	if err != nil {
		return err
	}

	var due []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		due = append(due, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.escalateOne(ctx, rules, id); err != nil {
			if errors.Is(err, locks.ErrNotAcquired) {
				continue
			}
			e.logger.Error("escalation failed", "ticket_id", id, "err", err)
		}
	}
	return nil
}

// escalateOne re-reads the ticket under lock, re-checks the threshold
// against the matrix, and applies exactly one level increment plus one
// history entry. A ticket escalated by a concurrent scan since the query is
// a no-op.
func (e *Escalator) escalateOne(ctx context.Context, rules []domain.EscalationRule, id uuid.UUID) error {
	lease, err := e.locker.Acquire(ctx, locks.TicketKey(id), lockTTL, lockWait)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var t domain.Ticket
	var logRaw []byte
	err = tx.QueryRow(ctx, `
		SELECT id, category, status, level, isescalated,
		       escalated_at, created_at, ticketlog
		FROM tickets WHERE id = $1 FOR UPDATE`, id).Scan(
		&t.ID, &t.Category, &t.Status, &t.Level, &t.IsEscalated,
		&t.EscalatedAt, &t.CreatedAt, &logRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	rule := Match(rules, t.Category, t.Level)
	if rule == nil || !Due(&t, rule, time.Now()) {
		return tx.Rollback(ctx)
	}

	entry := domain.TicketLogEntry{
		When:   time.Now().UTC(),
		Action: "escalated",
		Level:  t.Level + 1,
	}
	if rule.NextPersonID != nil {
		entry.AssignedTo = rule.NextPersonID.String()
	} else if rule.NextGroupID != nil {
		entry.AssignedTo = rule.NextGroupID.String()
	}

	newLog, err := appendHistory(logRaw, entry)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets SET
			level          = level + 1,
			isescalated    = TRUE,
			escalated_at   = NOW(),
			assigned_to    = COALESCE($1, assigned_to),
			assigned_group = COALESCE($2, assigned_group),
			ticketlog      = $3,
			version        = version + 1,
			updated_at     = NOW()
		WHERE id = $4`,
		rule.NextPersonID, rule.NextGroupID, newLog, id)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.logger.Info("ticket escalated",
		"ticket_id", id,
		"level", t.Level+1,
		"was_escalated", t.IsEscalated)

	dispatchEscalationMail(ctx, e.pool, e.mailer, e.logger, id, t.Level+1)
	return nil
}

// AppendLog adds one entry to the ticket's history under the per-ticket
// lock: locked read-append-write, never a blind array assignment. N
// concurrent calls yield exactly N entries.
func (e *Escalator) AppendLog(ctx context.Context, id uuid.UUID, entry domain.TicketLogEntry) error {
	lease, err := e.locker.Acquire(ctx, locks.TicketKey(id), lockTTL, lockWait)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var logRaw []byte
	err = tx.QueryRow(ctx,
		`SELECT ticketlog FROM tickets WHERE id = $1 FOR UPDATE`, id).Scan(&logRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.ErrNotFound
	}
	if err != nil {
		return err
	}

	newLog, err := appendHistory(logRaw, entry)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets SET
			ticketlog  = $1,
			version    = version + 1,
			updated_at = NOW()
		WHERE id = $2`, newLog, id)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkMailSent flips ismailsent in one conditional statement; only the
// caller that flipped it gets true. Same pattern as jobneed mail marking.
func MarkMailSent(ctx context.Context, db Execer, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE tickets SET
			ismailsent = TRUE,
			updated_at = NOW()
		WHERE id = $1
		  AND NOT ismailsent`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// dispatchEscalationMail claims the mail-sent flag and notifies the new
// level's assignee chain at most once per ticket. Mail failures are logged
// only; the escalation itself has already committed.
func dispatchEscalationMail(
	ctx context.Context,
	db Execer,
	m mailer.Mailer,
	logger *slog.Logger,
	id uuid.UUID,
	level int,
) {
	if m == nil {
		return
	}
	flipped, err := MarkMailSent(ctx, db, id)
	if err != nil {
		logger.Error("mark mail sent failed", "ticket_id", id, "err", err)
		return
	}
	if !flipped {
		return
	}

	subject := fmt.Sprintf("Ticket %s escalated to level %d", id, level)
	body := fmt.Sprintf("Ticket %s was escalated to level %d without resolution.", id, level)
	if err := m.Send(ctx, subject, body); err != nil {
		logger.Error("escalation email dispatch failed", "ticket_id", id, "err", err)
		return
	}
	logger.Info("escalation email sent", "ticket_id", id, "level", level)
}

func (e *Escalator) loadMatrix(ctx context.Context) ([]domain.EscalationRule, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, category, level, threshold_minutes, next_person_id, next_group_id
		FROM escalation_matrix
		ORDER BY category, level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.EscalationRule
	for rows.Next() {
		var r domain.EscalationRule
		if err := rows.Scan(&r.ID, &r.Category, &r.Level, &r.ThresholdMinutes,
			&r.NextPersonID, &r.NextGroupID); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// appendHistory deserializes the ticketlog blob, appends entry to its
// ticket_history array, and reserializes. A null or malformed blob starts a
// fresh history rather than failing the escalation.
func appendHistory(raw []byte, entry domain.TicketLogEntry) ([]byte, error) {
	ticketlog := map[string]json.RawMessage{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &ticketlog)
	}

	var history []domain.TicketLogEntry
	if h, ok := ticketlog[historyKey]; ok {
		_ = json.Unmarshal(h, &history)
	}
	history = append(history, entry)

	encoded, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}
	ticketlog[historyKey] = encoded
	return json.Marshal(ticketlog)
}
