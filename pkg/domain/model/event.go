package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// EventType enumerates domain event identifiers
type EventType string

const (
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketEscalated     EventType = "ticket_escalated"
)

// Event is a domain event published by the ticket processing service.
// Consumers subscribe independently; publication never waits on them.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time

	StatusChanged *TicketStatusChanged
	Escalated     *TicketEscalated
}

// TicketStatusChanged is emitted whenever a transition changes the stored
// ticket status.
type TicketStatusChanged struct {
	TicketID  types.TicketID
	NewStatus types.TicketStatus
}

// TicketEscalated is emitted when an escalation is requested for a ticket
type TicketEscalated struct {
	Ticket          *Ticket
	Team            types.Team
	Tags            []types.TagCode
	ThreadPermalink string
}

// NewStatusChangedEvent builds a TicketStatusChanged event
func NewStatusChangedEvent(ticketID types.TicketID, status types.TicketStatus, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventTicketStatusChanged,
		Timestamp: now,
		StatusChanged: &TicketStatusChanged{
			TicketID:  ticketID,
			NewStatus: status,
		},
	}
}

// NewEscalatedEvent builds a TicketEscalated event
func NewEscalatedEvent(ticket *Ticket, team types.Team, tags []types.TagCode, permalink string, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventTicketEscalated,
		Timestamp: now,
		Escalated: &TicketEscalated{
			Ticket:          ticket,
			Team:            team,
			Tags:            tags,
			ThreadPermalink: permalink,
		},
	}
}
