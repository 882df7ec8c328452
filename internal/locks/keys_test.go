package locks

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeysNamespacedByKind(t *testing.T) {
	id := uuid.New()

	// The same id under different kinds must never collide.
	keys := map[string]bool{
		JobneedKey(id).String(): true,
		ParentKey(id).String():  true,
		TicketKey(id).String():  true,
		AssetKey(id).String():   true,
	}
	assert.Len(t, keys, 4)
}

func TestKeyFormat(t *testing.T) {
	id := uuid.MustParse("3e7c1f6e-8a5f-4bcb-9a2e-31337deadbee")
	assert.Equal(t,
		"upkeep:lock:ticket:3e7c1f6e-8a5f-4bcb-9a2e-31337deadbee",
		TicketKey(id).String())
}

func TestDifferentIDsDifferentKeys(t *testing.T) {
	assert.NotEqual(t,
		JobneedKey(uuid.New()).String(),
		JobneedKey(uuid.New()).String())
}
