package alerts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourorg/upkeep/internal/domain"
	"github.com/yourorg/upkeep/internal/workflow"
)

// Recorder persists checklist answers. The detail insert and the parent
// Jobneed alerts aggregation happen in one transaction, so there is no
// window where a flagged detail exists without the parent flag set.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// RecordDetail evaluates the answer, inserts the detail row, and refreshes
// the parent's alerts flag from the aggregate of all its details.
func (r *Recorder) RecordDetail(ctx context.Context, d *domain.JobneedDetail) error {
	d.Alerts = Evaluate(d)
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Row-lock the parent first so concurrent detail inserts for the same
	// jobneed serialize their aggregation.
	var parentID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM jobneeds WHERE id = $1 FOR UPDATE`,
		d.JobneedID).Scan(&parentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO jobneed_details
			(id, jobneed_id, question, answer, answer_type, min, max, alert_on, alerts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.JobneedID, d.Question, d.Answer, d.Type, d.Min, d.Max, d.AlertOn, d.Alerts)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobneeds SET
			alerts = EXISTS (
				SELECT 1 FROM jobneed_details
				WHERE jobneed_id = $1 AND alerts
			),
			version    = version + 1,
			updated_at = NOW()
		WHERE id = $1`, d.JobneedID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
