package interfaces

import (
	"context"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// Notifier reflects ticket state into the chat workspace. All operations
// are fire-and-forget from the state machine's perspective except
// PostTicketForm, whose returned message timestamp is persisted back onto
// the ticket.
type Notifier interface {
	// PostTicketForm posts the ticket-form message into the query thread
	// and returns its timestamp.
	PostTicketForm(ctx context.Context, ref model.MessageRef, ticket *model.Ticket) (types.MessageTS, error)

	// EditTicketForm re-renders an existing ticket-form message
	EditTicketForm(ctx context.Context, ref model.MessageRef, ticket *model.Ticket) error

	// MarkPostTracked marks the query message as tracked
	MarkPostTracked(ctx context.Context, ref model.MessageRef) error

	// MarkTicketClosed / UnmarkTicketClosed toggle the closed marker on
	// the query message.
	MarkTicketClosed(ctx context.Context, ref model.MessageRef) error
	UnmarkTicketClosed(ctx context.Context, ref model.MessageRef) error

	// MarkTicketEscalated marks the ticket thread as escalated
	MarkTicketEscalated(ctx context.Context, ref model.MessageRef) error

	// WarnStaleness posts a staleness warning into the ticket thread
	WarnStaleness(ctx context.Context, ref model.MessageRef) error

	// GetPermalink resolves a permalink for the given message
	GetPermalink(ctx context.Context, ref model.MessageRef) (string, error)
}
