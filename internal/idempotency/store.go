// Package idempotency deduplicates externally-retried operations (mobile
// sync, at-least-once task delivery). Duplicate suppression is best-effort:
// store failures degrade to "not a duplicate" and the underlying operation
// must be separately safe to apply twice.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TTL is the window during which a stored response is replayed. Consumers
// must not rely on idempotency guarantees beyond it.
const TTL = 24 * time.Hour

// DB is the slice of the pgx pool surface the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db     DB
	logger *slog.Logger
}

func NewStore(db DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CheckDuplicate looks up a non-expired record for key. On a hit it bumps
// the hit counter and returns the previously stored response; on a miss it
// returns nil. Store errors are logged and reported as a miss.
func (s *Store) CheckDuplicate(ctx context.Context, key string) []byte {
	var response []byte
	err := s.db.QueryRow(ctx, `
		UPDATE sync_idempotency SET
			hit_count   = hit_count + 1,
			last_hit_at = NOW()
		WHERE key = $1
		  AND expires_at > NOW()
		RETURNING response`, key).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logger.Warn("idempotency lookup degraded to miss", "key", key, "err", err)
		return nil
	}
	return response
}

// StoreResponse records the response computed for key. A concurrent insert
// of the same key is a benign race: ON CONFLICT DO NOTHING lets the first
// writer win and the loser no-op; the caller should re-check via
// CheckDuplicate. Store errors are logged, never propagated.
func (s *Store) StoreResponse(
	ctx context.Context,
	key, requestHash string,
	response []byte,
	userID *uuid.UUID,
	deviceID, endpoint, scope string,
) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sync_idempotency
			(key, request_hash, response, user_id, device_id, endpoint, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW() + ($8 * interval '1 second'))
		ON CONFLICT (key) DO NOTHING`,
		key, requestHash, response, userID, deviceID, endpoint, scope,
		int64(TTL.Seconds()))
	if err != nil {
		s.logger.Warn("idempotency store failed", "key", key, "err", err)
	}
}

// Cleanup purges expired records. Run periodically; returns the number of
// rows removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM sync_idempotency WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
