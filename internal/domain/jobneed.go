package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobneedStatus string

const (
	StatusAssigned           JobneedStatus = "ASSIGNED"
	StatusInProgress         JobneedStatus = "INPROGRESS"
	StatusCompleted          JobneedStatus = "COMPLETED"
	StatusPartiallyCompleted JobneedStatus = "PARTIALLYCOMPLETED"
	StatusAutoclosed         JobneedStatus = "AUTOCLOSED"
)

// Terminal reports whether no further transition is legal from s.
func (s JobneedStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAutoclosed
}

// Jobneed is one concrete execution of a scheduled job, or a standalone ad-hoc
// task/tour. A non-nil ParentID marks it as a checkpoint of a tour; the
// tour's own status is derived from aggregate child completion.
type Jobneed struct {
	ID           uuid.UUID
	JobID        *uuid.UUID
	ParentID     *uuid.UUID
	TenantID     uuid.UUID
	Status       JobneedStatus
	PlanStart    time.Time
	ExpireAt     time.Time
	GraceMinutes int
	PerformerID  *uuid.UUID
	GPSLat       *float64
	GPSLng       *float64
	Alerts       bool
	IsMailSent   bool
	OtherInfo    map[string]any
	MobileID     *string
	Version      int
	CreatedBy    *uuid.UUID
	ModifiedBy   *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AnswerType string

const (
	AnswerNumeric  AnswerType = "NUMERIC"
	AnswerDropdown AnswerType = "DROPDOWN"
	AnswerCheckbox AnswerType = "CHECKBOX"
	AnswerText     AnswerType = "TEXT"
)

// JobneedDetail is one answered checklist question within a Jobneed.
// Alerts is true iff the answer violates the question's alert condition.
type JobneedDetail struct {
	ID        uuid.UUID
	JobneedID uuid.UUID
	Question  string
	Answer    string
	Type      AnswerType
	Min       *float64
	Max       *float64
	AlertOn   string // comma-separated dropdown values that trigger an alert
	Alerts    bool
	CreatedAt time.Time
}
