// Package syncsvc ingests batches of offline-created mobile records. Batch
// replay safety comes from the idempotency store (checked by the HTTP
// layer); per-entry safety comes from a unique (tenant_id, mobile_id) key
// with first-writer-wins inserts and optimistic-version conflict detection.
package syncsvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourorg/upkeep/internal/domain"
	"github.com/yourorg/upkeep/internal/locks"
	"github.com/yourorg/upkeep/internal/workflow"
)

const (
	lockTTL  = 10 * time.Second
	lockWait = 5 * time.Second
)

type Ingestor struct {
	pool    *pgxpool.Pool
	locker  *locks.Locker
	machine *workflow.Machine
	logger  *slog.Logger
}

func NewIngestor(pool *pgxpool.Pool, locker *locks.Locker, machine *workflow.Machine, logger *slog.Logger) *Ingestor {
	return &Ingestor{pool: pool, locker: locker, machine: machine, logger: logger}
}

// Ingest upserts every entry in the batch for one tenant. Entries whose
// client version lags the server row go to the conflicts list unmodified;
// everything else is created or updated. Individual entry failures do not
// abort the batch.
func (ing *Ingestor) Ingest(ctx context.Context, tenantID, userID uuid.UUID, batch BatchRequest) (BatchResponse, error) {
	resp := BatchResponse{
		Results:   make([]EntryResult, 0, len(batch.Entries)),
		Conflicts: []Conflict{},
	}

	for i := range batch.Entries {
		entry := &batch.Entries[i]
		result, conflict, err := ing.ingestOne(ctx, tenantID, userID, entry)
		if err != nil {
			ing.logger.Error("sync entry failed",
				"mobile_id", entry.MobileID, "err", err)
			resp.Results = append(resp.Results, EntryResult{
				MobileID: entry.MobileID,
				Status:   StatusError,
				Error:    err.Error(),
			})
			continue
		}
		if conflict != nil {
			resp.Conflicts = append(resp.Conflicts, *conflict)
			continue
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

func (ing *Ingestor) ingestOne(ctx context.Context, tenantID, userID uuid.UUID, e *Entry) (EntryResult, *Conflict, error) {
	tx, err := ing.pool.Begin(ctx)
	if err != nil {
		return EntryResult{}, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var serverID uuid.UUID
	var serverVersion int
	err = tx.QueryRow(ctx, `
		SELECT id, version FROM jobneeds
		WHERE tenant_id = $1 AND mobile_id = $2`,
		tenantID, e.MobileID).Scan(&serverID, &serverVersion)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		serverID, inserted, err := insertEntry(ctx, tx, tenantID, userID, e)
		if err != nil {
			return EntryResult{}, nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return EntryResult{}, nil, err
		}
		return insertResult(e.MobileID, serverID, inserted), nil, nil

	case err != nil:
		return EntryResult{}, nil, err
	}
	tx.Rollback(ctx) //nolint:errcheck

	return ing.updateExisting(ctx, serverID, userID, e)
}

// updateExisting applies an offline edit to a known row under the same
// per-jobneed lock discipline as interactive transitions. The version check
// runs inside the lock so a replayed/raced edit cannot slip past it.
func (ing *Ingestor) updateExisting(ctx context.Context, serverID, userID uuid.UUID, e *Entry) (EntryResult, *Conflict, error) {
	lease, err := ing.locker.Acquire(ctx, locks.JobneedKey(serverID), lockTTL, lockWait)
	if err != nil {
		return EntryResult{}, nil, err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := ing.pool.Begin(ctx)
	if err != nil {
		return EntryResult{}, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current domain.JobneedStatus
	var serverVersion int
	err = tx.QueryRow(ctx,
		`SELECT status, version FROM jobneeds WHERE id = $1 FOR UPDATE`,
		serverID).Scan(&current, &serverVersion)
	if err != nil {
		return EntryResult{}, nil, err
	}

	if HasConflict(e.Version, serverVersion) {
		return EntryResult{}, &Conflict{
			MobileID:      e.MobileID,
			ServerID:      serverID,
			ClientVersion: e.Version,
			ServerVersion: serverVersion,
		}, nil
	}

	if e.Status != current && !ing.machine.ValidateJobneed(current, e.Status) {
		return EntryResult{}, nil, &workflow.InvalidTransitionError{From: current, To: e.Status}
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobneeds SET
			status      = $1,
			gps_lat     = COALESCE($2, gps_lat),
			gps_lng     = COALESCE($3, gps_lng),
			modified_by = $4,
			version     = version + 1,
			updated_at  = NOW()
		WHERE id = $5`,
		e.Status, e.GPSLat, e.GPSLng, userID, serverID)
	if err != nil {
		return EntryResult{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return EntryResult{}, nil, err
	}
	return EntryResult{MobileID: e.MobileID, ServerID: serverID, Status: StatusUpdated}, nil, nil
}

// insertResult classifies the insert path: a row we actually wrote is
// created, a row somebody else wrote first is duplicate.
func insertResult(mobileID string, serverID uuid.UUID, inserted bool) EntryResult {
	status := StatusCreated
	if !inserted {
		status = StatusDuplicate
	}
	return EntryResult{MobileID: mobileID, ServerID: serverID, Status: status}
}

// insertEntry creates the jobneed row. A concurrent insert of the same
// (tenant_id, mobile_id) wins via ON CONFLICT DO NOTHING; the loser
// re-fetches the winner's row and reports inserted=false.
func insertEntry(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, e *Entry) (uuid.UUID, bool, error) {
	id := uuid.New()
	err := tx.QueryRow(ctx, `
		INSERT INTO jobneeds
			(id, tenant_id, job_id, parent_id, status, plan_start, expire_at,
			 gps_lat, gps_lng, performer_id, mobile_id, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (tenant_id, mobile_id) WHERE mobile_id IS NOT NULL DO NOTHING
		RETURNING id`,
		id, tenantID, e.JobID, e.ParentID, e.Status, e.PlanStart, e.ExpireAt,
		e.GPSLat, e.GPSLng, e.PerformerID, e.MobileID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx,
			`SELECT id FROM jobneeds WHERE tenant_id = $1 AND mobile_id = $2`,
			tenantID, e.MobileID).Scan(&id)
		return id, false, err
	}
	return id, true, err
}
