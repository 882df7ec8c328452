package autoclose

import "github.com/yourorg/upkeep/internal/domain"

// ChildTally summarizes checkpoint statuses of a tour at autoclose time.
type ChildTally struct {
	Total     int
	Completed int
}

// Decide returns the terminal state for an expired jobneed. A tour whose
// checkpoints all completed is COMPLETED; one with some but not all
// completed is PARTIALLYCOMPLETED; a tour with no completed checkpoints, or
// a standalone task, is AUTOCLOSED.
func Decide(tally ChildTally) domain.JobneedStatus {
	if tally.Total == 0 {
		return domain.StatusAutoclosed
	}
	switch {
	case tally.Completed == tally.Total:
		return domain.StatusCompleted
	case tally.Completed > 0:
		return domain.StatusPartiallyCompleted
	default:
		return domain.StatusAutoclosed
	}
}
