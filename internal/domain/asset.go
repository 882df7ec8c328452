package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunningStatus string

const (
	AssetWorking     RunningStatus = "WORKING"
	AssetMaintenance RunningStatus = "MAINTENANCE"
	AssetStandby     RunningStatus = "STANDBY"
	AssetScrapped    RunningStatus = "SCRAPPED"
)

// AssetLog records one running-status change, written in the same
// transaction as the change itself.
type AssetLog struct {
	ID        uuid.UUID
	AssetID   uuid.UUID
	OldStatus RunningStatus
	NewStatus RunningStatus
	ChangedBy *uuid.UUID
	ChangedAt time.Time
}
