package syncsvc

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/upkeep/internal/domain"
)

func TestHasConflict(t *testing.T) {
	assert.False(t, HasConflict(0, 0), "fresh record, untouched row")
	assert.False(t, HasConflict(3, 3), "client saw the latest version")
	assert.False(t, HasConflict(4, 3), "client ahead is not a conflict")
	assert.True(t, HasConflict(2, 3), "server moved past the client")
	assert.True(t, HasConflict(0, 1))
}

func TestBatchRequestDecoding(t *testing.T) {
	raw := []byte(`{
		"entries": [
			{"mobile_id": "m-1", "status": "COMPLETED", "version": 2,
			 "plan_start": "2026-08-30T08:00:00Z", "expire_at": "2026-08-30T10:00:00Z",
			 "gps_lat": 12.97, "gps_lng": 77.59}
		]
	}`)

	var batch BatchRequest
	require.NoError(t, json.Unmarshal(raw, &batch))
	require.Len(t, batch.Entries, 1)

	e := batch.Entries[0]
	assert.Equal(t, "m-1", e.MobileID)
	assert.Equal(t, domain.StatusCompleted, e.Status)
	assert.Equal(t, 2, e.Version)
	require.NotNil(t, e.GPSLat)
	assert.InDelta(t, 12.97, *e.GPSLat, 1e-9)
	assert.Nil(t, e.PerformerID)
}

func TestInsertResultStatus(t *testing.T) {
	id := uuid.New()

	won := insertResult("m-1", id, true)
	assert.Equal(t, StatusCreated, won.Status)
	assert.Equal(t, id, won.ServerID)

	lost := insertResult("m-1", id, false)
	assert.Equal(t, StatusDuplicate, lost.Status)
	assert.Equal(t, id, lost.ServerID, "loser still reports the winner's row")
}

func TestBatchResponseShape(t *testing.T) {
	resp := BatchResponse{
		Results: []EntryResult{{MobileID: "m-1", Status: StatusCreated}},
		Conflicts: []Conflict{
			{MobileID: "m-2", ClientVersion: 1, ServerVersion: 4},
		},
	}

	encoded, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Contains(t, decoded, "results")
	assert.Contains(t, decoded, "conflicts")
}
