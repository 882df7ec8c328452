package idempotency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB mimics the sync_idempotency table: conditional hit-counting lookup,
// first-writer-wins insert, expiry-based purge. The clock is injectable so
// TTL expiry is testable without sleeping.
type fakeDB struct {
	mu      sync.Mutex
	records map[string]*fakeRecord
	now     func() time.Time
}

type fakeRecord struct {
	response  []byte
	hits      int
	expiresAt time.Time
}

func newFakeDB() *fakeDB {
	db := &fakeDB{records: map[string]*fakeRecord{}}
	db.now = time.Now
	return db
}

type fakeRow struct {
	response []byte
	err      error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.response
	return nil
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := args[0].(string)
	rec, ok := db.records[key]
	if !ok || !rec.expiresAt.After(db.now()) {
		return fakeRow{err: pgx.ErrNoRows}
	}
	rec.hits++
	return fakeRow{response: rec.response}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch {
	case strings.Contains(sql, "INSERT INTO sync_idempotency"):
		key := args[0].(string)
		if _, exists := db.records[key]; exists {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		ttlSecs := args[7].(int64)
		db.records[key] = &fakeRecord{
			response:  args[2].([]byte),
			expiresAt: db.now().Add(time.Duration(ttlSecs) * time.Second),
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "DELETE FROM sync_idempotency"):
		purged := 0
		for key, rec := range db.records {
			if !rec.expiresAt.After(db.now()) {
				delete(db.records, key)
				purged++
			}
		}
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", purged)), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected sql: %s", sql)
}

func newTestStore(db *fakeDB) *Store {
	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReplayReturnsStoredResponse(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(db)
	ctx := context.Background()

	response := []byte(`{"results":[{"mobile_id":"m-1","status":"created"}]}`)
	s.StoreResponse(ctx, "key-1", "hash-1", response, nil, "d-1", "/sync/batch", "mobile_sync")

	got := s.CheckDuplicate(ctx, "key-1")
	assert.Equal(t, response, got)
	assert.Equal(t, 1, db.records["key-1"].hits)

	got = s.CheckDuplicate(ctx, "key-1")
	assert.Equal(t, response, got)
	assert.Equal(t, 2, db.records["key-1"].hits, "every replay bumps the hit counter")
}

func TestUnknownKeyMisses(t *testing.T) {
	s := newTestStore(newFakeDB())
	assert.Nil(t, s.CheckDuplicate(context.Background(), "never-stored"))
}

func TestExpiredKeyMisses(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(db)
	ctx := context.Background()

	s.StoreResponse(ctx, "key-1", "hash-1", []byte(`{}`), nil, "", "", "")
	require.NotNil(t, s.CheckDuplicate(ctx, "key-1"))

	db.now = func() time.Time { return time.Now().Add(TTL + time.Minute) }
	assert.Nil(t, s.CheckDuplicate(ctx, "key-1"), "no replay beyond the TTL window")
}

func TestStoreFirstWriterWins(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(db)
	ctx := context.Background()

	winner := []byte(`{"winner":true}`)
	s.StoreResponse(ctx, "key-1", "hash-1", winner, nil, "", "", "")
	s.StoreResponse(ctx, "key-1", "hash-1", []byte(`{"winner":false}`), nil, "", "", "")

	assert.Equal(t, winner, s.CheckDuplicate(ctx, "key-1"))
}

func TestCleanupPurgesOnlyExpired(t *testing.T) {
	db := newFakeDB()
	s := newTestStore(db)
	ctx := context.Background()

	s.StoreResponse(ctx, "old", "h", []byte(`{}`), nil, "", "", "")
	db.records["old"].expiresAt = time.Now().Add(-time.Minute)
	s.StoreResponse(ctx, "fresh", "h", []byte(`{}`), nil, "", "", "")

	purged, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
	assert.Nil(t, s.CheckDuplicate(ctx, "old"))
	assert.NotNil(t, s.CheckDuplicate(ctx, "fresh"))
}
