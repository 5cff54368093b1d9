package model

import (
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// Escalation is the read model of an escalation sub-workflow. Creation and
// resolution live outside the ticket lifecycle; the lifecycle only consumes
// the read contract.
type Escalation struct {
	TicketID   types.TicketID
	Team       types.Team
	Tags       []types.TagCode
	OpenedAt   time.Time
	ResolvedAt *time.Time
}

// IsResolved reports whether the escalation has been resolved
func (e *Escalation) IsResolved() bool {
	return e.ResolvedAt != nil
}
