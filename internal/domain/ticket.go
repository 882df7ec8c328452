package domain

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketNew       TicketStatus = "NEW"
	TicketOpen      TicketStatus = "OPEN"
	TicketResolved  TicketStatus = "RESOLVED"
	TicketClosed    TicketStatus = "CLOSED"
	TicketCancelled TicketStatus = "CANCELLED"
)

func (s TicketStatus) Terminal() bool {
	return s == TicketResolved || s == TicketClosed || s == TicketCancelled
}

// TicketLogEntry is one element of the append-only ticket_history array
// inside Ticket.TicketLog.
type TicketLogEntry struct {
	When       time.Time `json:"when"`
	Action     string    `json:"action"`
	Level      int       `json:"level,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// Ticket is a helpdesk/incident record. Level increases monotonically via
// the escalation matrix; TicketLog holds {"ticket_history": [...]}.
type Ticket struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Subject       string
	Category      string
	Status        TicketStatus
	Level         int
	IsEscalated   bool
	IsMailSent    bool
	AssignedTo    *uuid.UUID
	AssignedGroup *uuid.UUID
	TicketLog     map[string]any
	Version       int
	EscalatedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EscalationRule maps a ticket category + level to a time threshold and the
// next assignee once the threshold is crossed.
type EscalationRule struct {
	ID               uuid.UUID
	Category         string
	Level            int
	ThresholdMinutes int
	NextPersonID     *uuid.UUID
	NextGroupID      *uuid.UUID
}
