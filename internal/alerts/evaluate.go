package alerts

import (
	"strconv"
	"strings"

	"github.com/yourorg/upkeep/internal/domain"
)

// Evaluate reports whether a checklist answer violates its question's alert
// condition. Numeric bounds are inclusive: an answer exactly on min or max
// does not alert. Dropdown answers alert when they appear in the question's
// comma-separated alert set. Unparseable numeric answers alert.
func Evaluate(d *domain.JobneedDetail) bool {
	switch d.Type {
	case domain.AnswerNumeric:
		return evaluateNumeric(d.Answer, d.Min, d.Max)
	case domain.AnswerDropdown, domain.AnswerCheckbox:
		return evaluateDropdown(d.Answer, d.AlertOn)
	default:
		return false
	}
}

func evaluateNumeric(answer string, min, max *float64) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err != nil {
		return true
	}
	if min != nil && v < *min {
		return true
	}
	if max != nil && v > *max {
		return true
	}
	return false
}

func evaluateDropdown(answer, alertOn string) bool {
	if alertOn == "" {
		return false
	}
	for _, flagged := range strings.Split(alertOn, ",") {
		if strings.EqualFold(strings.TrimSpace(flagged), strings.TrimSpace(answer)) {
			return true
		}
	}
	return false
}
