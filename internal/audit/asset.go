// Package audit changes asset running status through one explicit, lockable
// service call. The status write and its AssetLog row commit in the same
// transaction; there are no implicit save hooks anywhere in the system.
package audit

import (
	"context"
	"errors"
	"fmt"
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

type AssetService struct {
	pool    *pgxpool.Pool
	locker  *locks.Locker
	machine *workflow.Machine
	logger  *slog.Logger
}

func NewAssetService(pool *pgxpool.Pool, locker *locks.Locker, machine *workflow.Machine, logger *slog.Logger) *AssetService {
	return &AssetService{pool: pool, locker: locker, machine: machine, logger: logger}
}

// ChangeStatus transitions an asset's running status under the per-asset
// lock, validating against the running-status machine, and records the
// old -> new pair in asset_logs atomically with the status write. Returns
// the written log row. Changing to the current status is a no-op: no log
// row is written and nil is returned.
func (s *AssetService) ChangeStatus(
	ctx context.Context,
	assetID uuid.UUID,
	newStatus domain.RunningStatus,
	userID uuid.UUID,
) (*domain.AssetLog, error) {
	lease, err := s.locker.Acquire(ctx, locks.AssetKey(assetID), lockTTL, lockWait)
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			s.logger.Error("asset lock acquisition failed", "asset_id", assetID)
		}
		return nil, err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current domain.RunningStatus
	err = tx.QueryRow(ctx,
		`SELECT runningstatus FROM assets WHERE id = $1 FOR UPDATE`,
		assetID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if current == newStatus {
		return nil, tx.Commit(ctx)
	}
	if !s.machine.ValidateAsset(current, newStatus) {
		return nil, fmt.Errorf("invalid running status transition %s -> %s", current, newStatus)
	}

	_, err = tx.Exec(ctx, `
		UPDATE assets SET
			runningstatus = $1,
			updated_at    = NOW()
		WHERE id = $2`, newStatus, assetID)
	if err != nil {
		return nil, err
	}

	entry := domain.AssetLog{
		ID:        uuid.New(),
		AssetID:   assetID,
		OldStatus: current,
		NewStatus: newStatus,
		ChangedBy: &userID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO asset_logs (id, asset_id, old_status, new_status, changed_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING changed_at`,
		entry.ID, entry.AssetID, entry.OldStatus, entry.NewStatus, userID).Scan(&entry.ChangedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("asset status changed",
		"asset_id", assetID,
		"from", string(current),
		"to", string(newStatus))
	return &entry, nil
}
