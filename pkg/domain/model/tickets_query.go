package model

import (
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// TicketsQuery is an immutable filter and pagination spec for listing
// tickets. The zero value matches everything on the first page.
type TicketsQuery struct {
	Page      int
	PageSize  int
	Unlimited bool

	IDs    []types.TicketID
	Status *types.TicketStatus

	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Escalated filters on the existence of at least one unresolved
	// escalation for the ticket.
	Escalated      *bool
	EscalationTeam *types.Team

	// Tags requires the ticket to contain the full requested set, not just
	// intersect it. IncludeNoTags additionally admits tickets with zero
	// tags (ORed with the tag filter).
	Tags          []types.TagCode
	IncludeNoTags bool

	Impacts []types.ImpactID
	Teams   []types.Team

	// AssignedToHash matches the deterministic hash of the plaintext
	// assignee so lookups work uniformly under encryption.
	AssignedToHash string
}

// DefaultPageSize is used when the query does not specify one
const DefaultPageSize = 20

// Limit returns the effective page size, or 0 for an unlimited listing
func (q TicketsQuery) Limit() int {
	if q.Unlimited {
		return 0
	}
	if q.PageSize <= 0 {
		return DefaultPageSize
	}
	return q.PageSize
}

// Offset returns the number of records to skip
func (q TicketsQuery) Offset() int {
	if q.Unlimited || q.Page <= 0 {
		return 0
	}
	return q.Page * q.Limit()
}

// MatchesTicket evaluates the ticket-local filters (everything except the
// escalation filters, which need the escalation read model). Both repository
// implementations share this so the two backends cannot drift.
func (q TicketsQuery) MatchesTicket(t *Ticket, assigneeHash func(types.UserID) string) bool {
	if len(q.IDs) > 0 {
		found := false
		for _, id := range q.IDs {
			if t.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if q.Status != nil && t.Status != *q.Status {
		return false
	}

	if q.CreatedAfter != nil && t.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && !t.CreatedAt.Before(*q.CreatedBefore) {
		return false
	}

	if len(q.Tags) > 0 || q.IncludeNoTags {
		matched := false
		if len(q.Tags) > 0 {
			matched = true
			for _, tag := range q.Tags {
				if !t.HasTag(tag) {
					matched = false
					break
				}
			}
		}
		if q.IncludeNoTags && len(t.Tags) == 0 {
			matched = true
		}
		if !matched {
			return false
		}
	}

	if len(q.Impacts) > 0 {
		if t.Impact == nil {
			return false
		}
		found := false
		for _, impact := range q.Impacts {
			if *t.Impact == impact {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(q.Teams) > 0 {
		if t.Team == nil {
			return false
		}
		found := false
		for _, team := range q.Teams {
			if t.Team.Equal(team) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if q.AssignedToHash != "" {
		if t.AssignedTo == nil || assigneeHash == nil {
			return false
		}
		if assigneeHash(*t.AssignedTo) != q.AssignedToHash {
			return false
		}
	}

	return true
}

// NeedsEscalations reports whether evaluating the query requires the
// escalation read model.
func (q TicketsQuery) NeedsEscalations() bool {
	return q.Escalated != nil || q.EscalationTeam != nil
}

// MatchesEscalations evaluates the escalation filters against the ticket's
// escalations.
func (q TicketsQuery) MatchesEscalations(escalations []*Escalation) bool {
	if q.Escalated != nil {
		unresolved := false
		for _, e := range escalations {
			if !e.IsResolved() {
				unresolved = true
				break
			}
		}
		if unresolved != *q.Escalated {
			return false
		}
	}

	if q.EscalationTeam != nil {
		found := false
		for _, e := range escalations {
			if e.Team.Equal(*q.EscalationTeam) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
