package interfaces

import (
	"context"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// EscalationReader is the read contract of the escalation sub-workflow.
// Escalation creation and resolution are owned elsewhere.
type EscalationReader interface {
	// CountNotResolvedByTicketID counts escalations without a resolution
	// for the given ticket. Drives the close-confirmation gate.
	CountNotResolvedByTicketID(ctx context.Context, id types.TicketID) (int64, error)

	// ListByTicketID returns all escalations of a ticket
	ListByTicketID(ctx context.Context, id types.TicketID) ([]*model.Escalation, error)
}
