package workflow

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
)

// Lock windows. Parent-scoped operations cover more rows so they get the
// longer lease.
const (
	parentLockTTL   = 15 * time.Second
	parentLockWait  = 10 * time.Second
	jobneedLockTTL  = 10 * time.Second
	jobneedLockWait = 5 * time.Second
)

// CheckpointUpdate carries the writable checkpoint fields. Nil pointers
// leave the column untouched.
type CheckpointUpdate struct {
	Status      *domain.JobneedStatus
	PerformerID *uuid.UUID
	GPSLat      *float64
	GPSLng      *float64
	Alerts      *bool
}

// ChildUpdate pairs one checkpoint id with its update for bulk application.
type ChildUpdate struct {
	ChildID uuid.UUID
	Update  CheckpointUpdate
}

// Service performs all multi-row status/field updates to Jobneed hierarchies
// as serialized, transactional operations. A named lock scoped to the entity
// (or its parent) is taken before the transaction so that two workers can
// never interleave their read-modify-write sequences, regardless of the
// order in which their row locks would have been granted.
type Service struct {
	pool    *pgxpool.Pool
	locker  *locks.Locker
	machine *Machine
	logger  *slog.Logger
}

func NewService(pool *pgxpool.Pool, locker *locks.Locker, machine *Machine, logger *slog.Logger) *Service {
	return &Service{pool: pool, locker: locker, machine: machine, logger: logger}
}

// UpdateCheckpointWithParent applies updates to a checkpoint and stamps the
// modifier/timestamp on both the checkpoint and its parent tour, under the
// parent-scoped named lock and row locks on both rows.
func (s *Service) UpdateCheckpointWithParent(
	ctx context.Context,
	childID uuid.UUID,
	update CheckpointUpdate,
	parentID uuid.UUID,
	userID uuid.UUID,
) error {
	lease, err := s.locker.Acquire(ctx, locks.ParentKey(parentID), parentLockTTL, parentLockWait)
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			s.logger.Error("parent lock acquisition failed",
				"parent_id", parentID, "child_id", childID)
		}
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Parent and child row locks in a single statement: no window where one
	// lock is held while waiting on the other.
	locked, err := lockRows(ctx, tx, []uuid.UUID{parentID, childID})
	if err != nil {
		return err
	}
	if len(locked) != 2 {
		return ErrNotFound
	}

	if err := applyCheckpointUpdate(ctx, tx, childID, update, userID); err != nil {
		return err
	}

	if err := stampParent(ctx, tx, parentID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// TransitionJobneedStatus moves a jobneed to newStatus under its own named
// lock and row lock. The transition is validated against the state machine
// unless validate is false (legacy callers only). A jobneed already in
// newStatus is a no-op, not an error.
func (s *Service) TransitionJobneedStatus(
	ctx context.Context,
	jobneedID uuid.UUID,
	newStatus domain.JobneedStatus,
	userID uuid.UUID,
	validate bool,
) error {
	lease, err := s.locker.Acquire(ctx, locks.JobneedKey(jobneedID), jobneedLockTTL, jobneedLockWait)
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			s.logger.Error("jobneed lock acquisition failed", "jobneed_id", jobneedID)
		}
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current domain.JobneedStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM jobneeds WHERE id = $1 FOR UPDATE`,
		jobneedID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if current == newStatus {
		return tx.Commit(ctx)
	}

	if validate && !s.machine.ValidateJobneed(current, newStatus) {
		return &InvalidTransitionError{From: current, To: newStatus}
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobneeds SET
			status      = $1,
			modified_by = $2,
			version     = version + 1,
			updated_at  = NOW()
		WHERE id = $3`, newStatus, userID, jobneedID)
	if err != nil {
		return wrapIntegrity(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("jobneed transition",
		"jobneed_id", jobneedID,
		"from", string(current),
		"to", string(newStatus))
	return nil
}

// BulkUpdateChildCheckpoints applies a batch of checkpoint updates under a
// single parent-scoped lock. The parent and every child in the batch are
// row-locked in one query, and the parent timestamp is bumped exactly once
// regardless of batch size.
func (s *Service) BulkUpdateChildCheckpoints(
	ctx context.Context,
	parentID uuid.UUID,
	updates []ChildUpdate,
	userID uuid.UUID,
) error {
	if len(updates) == 0 {
		return nil
	}

	lease, err := s.locker.Acquire(ctx, locks.ParentKey(parentID), parentLockTTL, parentLockWait)
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			s.logger.Error("parent lock acquisition failed", "parent_id", parentID)
		}
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids := make([]uuid.UUID, 0, len(updates)+1)
	ids = append(ids, parentID)
	for _, u := range updates {
		ids = append(ids, u.ChildID)
	}

	locked, err := lockRows(ctx, tx, ids)
	if err != nil {
		return err
	}
	if len(locked) != len(ids) {
		return ErrNotFound
	}

	for _, u := range updates {
		if err := applyCheckpointUpdate(ctx, tx, u.ChildID, u.Update, userID); err != nil {
			return fmt.Errorf("child %s: %w", u.ChildID, err)
		}
	}

	if err := stampParent(ctx, tx, parentID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetJobneed fetches one jobneed by id. Plain read, no lock.
func (s *Service) GetJobneed(ctx context.Context, id uuid.UUID) (*domain.Jobneed, error) {
	var jn domain.Jobneed
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, parent_id, tenant_id, status, plan_start, expire_at,
		       grace_minutes, performer_id, gps_lat, gps_lng, alerts, ismailsent,
		       other_info, mobile_id, version, created_by, modified_by,
		       created_at, updated_at
		FROM jobneeds WHERE id = $1`, id).Scan(
		&jn.ID, &jn.JobID, &jn.ParentID, &jn.TenantID, &jn.Status,
		&jn.PlanStart, &jn.ExpireAt, &jn.GraceMinutes, &jn.PerformerID,
		&jn.GPSLat, &jn.GPSLng, &jn.Alerts, &jn.IsMailSent, &jn.OtherInfo,
		&jn.MobileID, &jn.Version, &jn.CreatedBy, &jn.ModifiedBy,
		&jn.CreatedAt, &jn.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &jn, nil
}

// lockRows acquires FOR UPDATE locks on every id in one statement and
// returns the ids actually found.
func lockRows(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM jobneeds WHERE id = ANY($1) FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, rows.Err()
}

func applyCheckpointUpdate(ctx context.Context, tx pgx.Tx, childID uuid.UUID, u CheckpointUpdate, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobneeds SET
			status       = COALESCE($1, status),
			performer_id = COALESCE($2, performer_id),
			gps_lat      = COALESCE($3, gps_lat),
			gps_lng      = COALESCE($4, gps_lng),
			alerts       = COALESCE($5, alerts),
			modified_by  = $6,
			version      = version + 1,
			updated_at   = NOW()
		WHERE id = $7`,
		u.Status, u.PerformerID, u.GPSLat, u.GPSLng, u.Alerts, userID, childID)
	return wrapIntegrity(err)
}

func stampParent(ctx context.Context, tx pgx.Tx, parentID uuid.UUID, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobneeds SET
			modified_by = $1,
			version     = version + 1,
			updated_at  = NOW()
		WHERE id = $2`, userID, parentID)
	return wrapIntegrity(err)
}

// wrapIntegrity converts constraint violations (SQLSTATE class 23) into
// IntegrityError so callers can distinguish them from transient failures.
func wrapIntegrity(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return &IntegrityError{Cause: err}
	}
	return err
}
