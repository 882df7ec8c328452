package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yourorg/upkeep/internal/domain"
)

func numericDetail(answer string, min, max float64) *domain.JobneedDetail {
	return &domain.JobneedDetail{
		Type:   domain.AnswerNumeric,
		Answer: answer,
		Min:    &min,
		Max:    &max,
	}
}

func TestNumericBoundariesInclusive(t *testing.T) {
	cases := []struct {
		answer string
		alerts bool
	}{
		{"20", false},    // exactly min
		{"25.00", false}, // exactly max
		{"22.5", false},
		{"19.99", true},
		{"25.01", true},
		{"-3", true},
		{"not a number", true},
	}
	for _, tc := range cases {
		d := numericDetail(tc.answer, 20.00, 25.00)
		assert.Equal(t, tc.alerts, Evaluate(d), "answer %q", tc.answer)
	}
}

func TestNumericOpenBounds(t *testing.T) {
	min := 10.0
	d := &domain.JobneedDetail{Type: domain.AnswerNumeric, Answer: "5000", Min: &min}
	assert.False(t, Evaluate(d), "no max bound means no upper alert")

	d.Answer = "9.9"
	assert.True(t, Evaluate(d))
}

func TestDropdownAlertSetMembership(t *testing.T) {
	d := &domain.JobneedDetail{
		Type:    domain.AnswerDropdown,
		AlertOn: "No,Partial",
	}

	d.Answer = "Partial"
	assert.True(t, Evaluate(d))

	d.Answer = "No"
	assert.True(t, Evaluate(d))

	d.Answer = "Yes"
	assert.False(t, Evaluate(d))
}

func TestDropdownWhitespaceAndCase(t *testing.T) {
	d := &domain.JobneedDetail{
		Type:    domain.AnswerDropdown,
		AlertOn: "No, Partial",
		Answer:  "partial",
	}
	assert.True(t, Evaluate(d))
}

func TestDropdownEmptyAlertSet(t *testing.T) {
	d := &domain.JobneedDetail{Type: domain.AnswerDropdown, Answer: "No"}
	assert.False(t, Evaluate(d))
}

func TestTextAnswersNeverAlert(t *testing.T) {
	d := &domain.JobneedDetail{Type: domain.AnswerText, Answer: "anything at all"}
	assert.False(t, Evaluate(d))
}
