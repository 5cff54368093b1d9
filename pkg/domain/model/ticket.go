package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// MessageRef identifies a Slack message by channel and timestamp. It is the
// composite key anchoring a ticket to its originating query message; at most
// one ticket exists per MessageRef.
type MessageRef struct {
	ChannelID types.ChannelID
	ThreadTS  types.MessageTS
	MessageTS types.MessageTS
}

// IsThreadReply reports whether the message was posted inside a thread
// rather than at the top level of the channel.
func (r MessageRef) IsThreadReply() bool {
	return r.ThreadTS != "" && r.ThreadTS != r.MessageTS
}

// QueryRef returns the reference of the query message owning the thread.
// For a top-level message that is the message itself.
func (r MessageRef) QueryRef() MessageRef {
	if r.IsThreadReply() {
		return MessageRef{ChannelID: r.ChannelID, MessageTS: r.ThreadTS}
	}
	return MessageRef{ChannelID: r.ChannelID, MessageTS: r.MessageTS}
}

// StatusLogEntry records a status transition at a point in time
type StatusLogEntry struct {
	Status    types.TicketStatus
	Timestamp time.Time
}

// Ticket is the aggregate root of the support-ticket lifecycle
type Ticket struct {
	ID        types.TicketID
	ChannelID types.ChannelID
	// QueryTS is the timestamp of the query message the ticket is anchored to
	QueryTS types.MessageTS
	// CreatedMessageTS is the timestamp of the bot-posted ticket-form
	// message. Empty until the form has been posted.
	CreatedMessageTS types.MessageTS

	Status types.TicketStatus
	// Team is nil until set; an unknown-team sentinel is a valid value
	Team   *types.Team
	Tags   []types.TagCode
	Impact *types.ImpactID
	// AssignedTo is the plaintext assignee. The repository persists it
	// through the assignee cipher and never stores the plaintext directly
	// when encryption is enabled.
	AssignedTo *types.UserID

	StatusLog        []StatusLogEntry
	LastInteractedAt time.Time
	RatingSubmitted  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTicket creates an opened ticket for the given query message. The ID is
// assigned by the repository on first persistence.
func NewTicket(channelID types.ChannelID, queryTS types.MessageTS, now time.Time) *Ticket {
	return &Ticket{
		ChannelID: channelID,
		QueryTS:   queryTS,
		Status:    types.TicketStatusOpened,
		StatusLog: []StatusLogEntry{
			{Status: types.TicketStatusOpened, Timestamp: now},
		},
		LastInteractedAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// QueryRef returns the reference of the ticket's query message
func (t *Ticket) QueryRef() MessageRef {
	return MessageRef{ChannelID: t.ChannelID, MessageTS: t.QueryTS}
}

// FormRef returns the reference of the ticket-form message, or false if the
// form has not been posted yet.
func (t *Ticket) FormRef() (MessageRef, bool) {
	if t.CreatedMessageTS == "" {
		return MessageRef{}, false
	}
	return MessageRef{ChannelID: t.ChannelID, ThreadTS: t.QueryTS, MessageTS: t.CreatedMessageTS}, true
}

// SetID assigns the ticket ID. It is set exactly once; assigning a second
// time is an error.
func (t *Ticket) SetID(id types.TicketID) error {
	if t.ID.IsSet() {
		return goerr.New("ticket ID is already set", goerr.V("id", t.ID), goerr.V("new_id", id))
	}
	if err := id.Validate(); err != nil {
		return err
	}
	t.ID = id
	return nil
}

// ChangeStatus moves the ticket to the given status and appends a status log
// entry, keeping the log's last entry consistent with the current status.
func (t *Ticket) ChangeStatus(status types.TicketStatus, now time.Time) error {
	if !status.IsValid() {
		return goerr.New("invalid ticket status", goerr.V("status", status))
	}
	t.Status = status
	t.StatusLog = append(t.StatusLog, StatusLogEntry{Status: status, Timestamp: now})
	t.LastInteractedAt = now
	t.UpdatedAt = now
	return nil
}

// Touch records qualifying activity without a status transition
func (t *Ticket) Touch(now time.Time) {
	t.LastInteractedAt = now
	t.UpdatedAt = now
}

// HasTag reports whether the ticket carries the given tag
func (t *Ticket) HasTag(tag types.TagCode) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// SetTags replaces the tag set, collapsing duplicates
func (t *Ticket) SetTags(tags []types.TagCode) {
	seen := make(map[types.TagCode]struct{}, len(tags))
	result := make([]types.TagCode, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	t.Tags = result
}

// SubmitRating marks the satisfaction rating as submitted. Once set it is
// never reset.
func (t *Ticket) SubmitRating() {
	t.RatingSubmitted = true
}

// Validate checks the aggregate invariants
func (t *Ticket) Validate() error {
	if t.ChannelID == "" {
		return goerr.New("ticket channel ID is required")
	}
	if t.QueryTS == "" {
		return goerr.New("ticket query timestamp is required")
	}
	if !t.Status.IsValid() {
		return goerr.New("invalid ticket status", goerr.V("status", t.Status))
	}
	if len(t.StatusLog) == 0 {
		return goerr.New("ticket status log must not be empty")
	}
	if last := t.StatusLog[len(t.StatusLog)-1]; last.Status != t.Status {
		return goerr.New("ticket status log is out of sync",
			goerr.V("status", t.Status),
			goerr.V("last_log_status", last.Status),
		)
	}
	return nil
}

// Clone returns a deep copy of the ticket
func (t *Ticket) Clone() *Ticket {
	copied := *t
	if t.Team != nil {
		team := *t.Team
		copied.Team = &team
	}
	if t.Impact != nil {
		impact := *t.Impact
		copied.Impact = &impact
	}
	if t.AssignedTo != nil {
		assignee := *t.AssignedTo
		copied.AssignedTo = &assignee
	}
	copied.Tags = append([]types.TagCode(nil), t.Tags...)
	copied.StatusLog = append([]StatusLogEntry(nil), t.StatusLog...)
	return &copied
}
