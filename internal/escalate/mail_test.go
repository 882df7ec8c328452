package escalate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flagExecer mimics the conditional ismailsent update: the first Exec for an
// id reports one affected row, every later one reports zero.
type flagExecer struct {
	mu    sync.Mutex
	flags map[uuid.UUID]bool
}

func newFlagExecer() *flagExecer {
	return &flagExecer{flags: map[uuid.UUID]bool{}}
}

func (f *flagExecer) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := args[0].(uuid.UUID)
	if f.flags[id] {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	f.flags[id] = true
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

type countingMailer struct {
	sent atomic.Int32
}

func (m *countingMailer) Send(context.Context, string, string) error {
	m.sent.Add(1)
	return nil
}

func TestMarkMailSentFlipsOnce(t *testing.T) {
	db := newFlagExecer()
	id := uuid.New()
	ctx := context.Background()

	flipped, err := MarkMailSent(ctx, db, id)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = MarkMailSent(ctx, db, id)
	require.NoError(t, err)
	assert.False(t, flipped, "repeat call must not flip again")
}

func TestDispatchEscalationMailSendsExactlyOnce(t *testing.T) {
	db := newFlagExecer()
	m := &countingMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id := uuid.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatchEscalationMail(ctx, db, m, logger, id, 2)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, m.sent.Load(), "one flag flip, one email")
}

func TestDispatchEscalationMailNilMailerNoop(t *testing.T) {
	db := newFlagExecer()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id := uuid.New()

	dispatchEscalationMail(context.Background(), db, nil, logger, id, 2)

	assert.False(t, db.flags[id], "no mailer means the flag stays available")
}
