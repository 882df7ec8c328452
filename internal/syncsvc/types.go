package syncsvc

import (
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/upkeep/internal/domain"
)

// Entry is one offline-created or offline-edited record in a sync batch.
// MobileID is the client-assigned identity; Version is the client's last
// known server version (0 for newly created records).
type Entry struct {
	MobileID    string               `json:"mobile_id"`
	JobID       *uuid.UUID           `json:"job_id,omitempty"`
	ParentID    *uuid.UUID           `json:"parent_id,omitempty"`
	Status      domain.JobneedStatus `json:"status"`
	PlanStart   time.Time            `json:"plan_start"`
	ExpireAt    time.Time            `json:"expire_at"`
	GPSLat      *float64             `json:"gps_lat,omitempty"`
	GPSLng      *float64             `json:"gps_lng,omitempty"`
	PerformerID *uuid.UUID           `json:"performer_id,omitempty"`
	Version     int                  `json:"version"`
}

type BatchRequest struct {
	Entries []Entry `json:"entries"`
}

// Per-entry outcomes. Duplicate means a concurrent insert of the same
// (tenant_id, mobile_id) won the race; the result carries the winner's row.
const (
	StatusCreated   = "created"
	StatusUpdated   = "updated"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

// EntryResult maps one mobile record to its server row.
type EntryResult struct {
	MobileID string    `json:"mobile_id"`
	ServerID uuid.UUID `json:"server_id"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// Conflict reports an optimistic-version mismatch; the client must re-fetch
// and re-apply its edit.
type Conflict struct {
	MobileID      string    `json:"mobile_id"`
	ServerID      uuid.UUID `json:"server_id"`
	ClientVersion int       `json:"client_version"`
	ServerVersion int       `json:"server_version"`
}

type BatchResponse struct {
	Results   []EntryResult `json:"results"`
	Conflicts []Conflict    `json:"conflicts"`
}

// HasConflict reports an optimistic-version mismatch: the server row moved
// past the version the client last saw.
func HasConflict(clientVersion, serverVersion int) bool {
	return clientVersion < serverVersion
}
