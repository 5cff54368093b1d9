package model

import (
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// Submission is an explicit ticket update submitted by support staff, e.g.
// from the ticket-form dialog.
type Submission struct {
	TicketID types.TicketID
	Status   types.TicketStatus
	Team     *types.Team
	Tags     []types.TagCode
	Impact   *types.ImpactID
	Assignee *types.UserID
	// Confirmed acknowledges closing a ticket that still has unresolved
	// escalations. Ignored for other status values.
	Confirmed bool
}

// SubmitResult is the outcome of applying a submission. When confirmation is
// required no mutation has happened and the caller must resubmit with
// Confirmed set.
type SubmitResult struct {
	Ticket                *Ticket
	ConfirmationRequired  bool
	UnresolvedEscalations int64
	// Submission echoes the original payload so the caller can resubmit
	Submission Submission
}
