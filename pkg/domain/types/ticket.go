package types

import (
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

// TicketID represents a unique identifier for a ticket.
// Zero means the ticket has not been persisted yet.
type TicketID int64

// IsSet reports whether the ID has been assigned by the repository.
func (t TicketID) IsSet() bool {
	return t != 0
}

// Validate checks if the TicketID is usable for repository operations
func (t TicketID) Validate() error {
	if !t.IsSet() {
		return goerr.New("ticket ID is not set")
	}
	return nil
}

// String returns the string representation of TicketID
func (t TicketID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ChannelID represents a Slack channel identifier
type ChannelID string

// String returns the string representation of ChannelID
func (c ChannelID) String() string {
	return string(c)
}

// MessageTS represents a Slack message timestamp, which identifies a
// message within a channel.
type MessageTS string

// String returns the string representation of MessageTS
func (m MessageTS) String() string {
	return string(m)
}

// UserID represents a Slack user identifier
type UserID string

// String returns the string representation of UserID
func (u UserID) String() string {
	return string(u)
}

// TagCode represents a tag attached to a ticket
type TagCode string

// String returns the string representation of TagCode
func (t TagCode) String() string {
	return string(t)
}
