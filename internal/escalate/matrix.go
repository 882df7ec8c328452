package escalate

import (
	"time"

	"github.com/yourorg/upkeep/internal/domain"
)

// Due reports whether a ticket has crossed the threshold of rule. The clock
// for the current level starts at the last escalation, or ticket creation
// for level zero.
func Due(t *domain.Ticket, rule *domain.EscalationRule, now time.Time) bool {
	if t.Status.Terminal() {
		return false
	}
	since := t.CreatedAt
	if t.EscalatedAt != nil {
		since = *t.EscalatedAt
	}
	threshold := time.Duration(rule.ThresholdMinutes) * time.Minute
	return now.Sub(since) >= threshold
}

// Match finds the rule for a ticket's category and current level. Returns
// nil when the matrix has no further level, i.e. the ticket is at the top.
func Match(rules []domain.EscalationRule, category string, level int) *domain.EscalationRule {
	for i := range rules {
		if rules[i].Category == category && rules[i].Level == level {
			return &rules[i]
		}
	}
	return nil
}
