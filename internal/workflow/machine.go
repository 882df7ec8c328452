package workflow

import (
	"log/slog"

	"github.com/yourorg/upkeep/internal/domain"
)

// jobneedTransitions enumerates every legal Jobneed status transition.
// COMPLETED and AUTOCLOSED are terminal.
var jobneedTransitions = map[domain.JobneedStatus][]domain.JobneedStatus{
	domain.StatusAssigned: {
		domain.StatusInProgress,
		domain.StatusAutoclosed,
	},
	domain.StatusInProgress: {
		domain.StatusCompleted,
		domain.StatusPartiallyCompleted,
		domain.StatusAutoclosed,
	},
	domain.StatusPartiallyCompleted: {
		domain.StatusCompleted,
		domain.StatusAutoclosed,
	},
	domain.StatusCompleted:  {},
	domain.StatusAutoclosed: {},
}

// assetTransitions governs asset running status. MAINTENANCE, WORKING and
// STANDBY are mutually reachable; SCRAPPED is terminal.
var assetTransitions = map[domain.RunningStatus][]domain.RunningStatus{
	domain.AssetWorking:     {domain.AssetMaintenance, domain.AssetStandby, domain.AssetScrapped},
	domain.AssetMaintenance: {domain.AssetWorking, domain.AssetStandby, domain.AssetScrapped},
	domain.AssetStandby:     {domain.AssetWorking, domain.AssetMaintenance, domain.AssetScrapped},
	domain.AssetScrapped:    {},
}

// Machine validates status transitions. The zero value is strict: unknown
// current states are rejected. Legacy rows with unmigrated status values can
// opt into permissive handling via AllowUnknown, which logs every pass.
type Machine struct {
	allowUnknown bool
	logger       *slog.Logger
}

func NewMachine() *Machine {
	return &Machine{}
}

// AllowUnknown returns a copy of the machine that treats unrecognized
// current states as valid, logging each occurrence at warn level. Opt-in
// compatibility mode for legacy data only.
func (m *Machine) AllowUnknown(logger *slog.Logger) *Machine {
	return &Machine{allowUnknown: true, logger: logger}
}

// ValidateJobneed reports whether current -> target is a legal Jobneed
// transition.
func (m *Machine) ValidateJobneed(current, target domain.JobneedStatus) bool {
	next, known := jobneedTransitions[current]
	if !known {
		if m.allowUnknown {
			if m.logger != nil {
				m.logger.Warn("permissive pass for unknown jobneed status",
					"current", string(current), "target", string(target))
			}
			return true
		}
		return false
	}
	for _, s := range next {
		if s == target {
			return true
		}
	}
	return false
}

// ValidateAsset reports whether current -> target is a legal running-status
// transition.
func (m *Machine) ValidateAsset(current, target domain.RunningStatus) bool {
	next, known := assetTransitions[current]
	if !known {
		if m.allowUnknown {
			if m.logger != nil {
				m.logger.Warn("permissive pass for unknown asset status",
					"current", string(current), "target", string(target))
			}
			return true
		}
		return false
	}
	for _, s := range next {
		if s == target {
			return true
		}
	}
	return false
}
