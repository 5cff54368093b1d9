package types

import "fmt"

// TicketStatus represents the lifecycle status of a ticket
type TicketStatus string

const (
	TicketStatusOpened TicketStatus = "OPENED"
	TicketStatusStale  TicketStatus = "STALE"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// AllTicketStatuses returns all valid ticket statuses
func AllTicketStatuses() []TicketStatus {
	return []TicketStatus{
		TicketStatusOpened,
		TicketStatusStale,
		TicketStatusClosed,
	}
}

// IsValid checks if the ticket status is valid
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusOpened,
		TicketStatusStale,
		TicketStatusClosed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the ticket status
func (s TicketStatus) String() string {
	return string(s)
}

// ParseTicketStatus parses a string into a TicketStatus
func ParseTicketStatus(s string) (TicketStatus, error) {
	status := TicketStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid ticket status: %s", s)
	}
	return status, nil
}
