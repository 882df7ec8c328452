package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyDeterministic(t *testing.T) {
	data := map[string]any{"mobile_id": "m-1", "status": "COMPLETED"}
	ctx := map[string]any{"user_id": "u-1", "device_id": "d-1"}

	k1, err := GenerateKey("sync_batch", data, ctx)
	require.NoError(t, err)
	k2, err := GenerateKey("sync_batch", data, ctx)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64) // hex sha-256
}

func TestGenerateKeyOrderIndependent(t *testing.T) {
	k1, err := GenerateKey("op",
		map[string]any{"a": 1, "b": 2, "c": 3},
		map[string]any{"x": "y"})
	require.NoError(t, err)

	k2, err := GenerateKey("op",
		map[string]any{"c": 3, "a": 1, "b": 2},
		map[string]any{"x": "y"})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
}

func TestGenerateKeySensitivity(t *testing.T) {
	base, err := GenerateKey("op",
		map[string]any{"answer": "20"}, map[string]any{"tenant": "t1"})
	require.NoError(t, err)

	oneCharOff, err := GenerateKey("op",
		map[string]any{"answer": "21"}, map[string]any{"tenant": "t1"})
	require.NoError(t, err)
	assert.NotEqual(t, base, oneCharOff)

	differentOp, err := GenerateKey("other_op",
		map[string]any{"answer": "20"}, map[string]any{"tenant": "t1"})
	require.NoError(t, err)
	assert.NotEqual(t, base, differentOp)

	differentCtx, err := GenerateKey("op",
		map[string]any{"answer": "20"}, map[string]any{"tenant": "t2"})
	require.NoError(t, err)
	assert.NotEqual(t, base, differentCtx)
}

func TestHashPayload(t *testing.T) {
	p := []byte(`{"entries":[]}`)
	assert.Equal(t, HashPayload(p), HashPayload(p))
	assert.NotEqual(t, HashPayload(p), HashPayload([]byte(`{"entries":[1]}`)))
}
