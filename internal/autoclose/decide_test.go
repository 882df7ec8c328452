package autoclose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yourorg/upkeep/internal/domain"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name  string
		tally ChildTally
		want  domain.JobneedStatus
	}{
		{"standalone task", ChildTally{Total: 0}, domain.StatusAutoclosed},
		{"all checkpoints complete", ChildTally{Total: 5, Completed: 5}, domain.StatusCompleted},
		{"some complete", ChildTally{Total: 5, Completed: 3}, domain.StatusPartiallyCompleted},
		{"one complete", ChildTally{Total: 5, Completed: 1}, domain.StatusPartiallyCompleted},
		{"none complete", ChildTally{Total: 5, Completed: 0}, domain.StatusAutoclosed},
		{"single complete child", ChildTally{Total: 1, Completed: 1}, domain.StatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.tally))
		})
	}
}

// Decide is deterministic: concurrent scans that tally the same children
// must converge on the same terminal state.
func TestDecideDeterministic(t *testing.T) {
	tally := ChildTally{Total: 7, Completed: 4}
	first := Decide(tally)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Decide(tally))
	}
}
