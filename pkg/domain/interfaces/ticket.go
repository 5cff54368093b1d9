package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// TicketRepository defines the persistence contract for tickets and their
// query-message references. The durable and in-memory implementations must
// satisfy identical semantics.
type TicketRepository interface {
	// CreateQueryIfNotExists records the query reference. Idempotent.
	CreateQueryIfNotExists(ctx context.Context, ref model.MessageRef) error

	// QueryExists reports whether the query reference is tracked
	QueryExists(ctx context.Context, ref model.MessageRef) (bool, error)

	// DeleteQueryIfNoTicket removes a query reference, but only when no
	// ticket references it. Returns nil either way.
	DeleteQueryIfNoTicket(ctx context.Context, ref model.MessageRef) error

	// CreateTicketIfNotExists is a get-or-create keyed by the ticket's
	// query reference. When a ticket already exists for the reference it is
	// returned unchanged; duplicate creation is never an error.
	CreateTicketIfNotExists(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error)

	// UpdateTicket persists the full mutable state of an existing ticket
	UpdateTicket(ctx context.Context, ticket *model.Ticket) error

	// TouchTicketByID updates only LastInteractedAt
	TouchTicketByID(ctx context.Context, id types.TicketID, at time.Time) error

	// InsertStatusLog appends a status log entry
	InsertStatusLog(ctx context.Context, id types.TicketID, entry model.StatusLogEntry) error

	// Assign persists the ticket's assignee through the assignee cipher.
	// A nil assignee clears the assignment.
	Assign(ctx context.Context, id types.TicketID, assignee *types.UserID) error

	// FindTicketByID returns nil, nil when no ticket exists for the ID
	FindTicketByID(ctx context.Context, id types.TicketID) (*model.Ticket, error)

	// FindTicketByQuery returns nil, nil when no ticket exists for the
	// query reference
	FindTicketByQuery(ctx context.Context, ref model.MessageRef) (*model.Ticket, error)

	// ListTickets returns tickets matching the query, ordered by creation
	// time descending, paginated per the query's page spec.
	ListTickets(ctx context.Context, query model.TicketsQuery) ([]*model.Ticket, error)

	// ListStaleTicketIDs returns IDs of opened tickets whose
	// LastInteractedAt is older than the threshold.
	ListStaleTicketIDs(ctx context.Context, threshold time.Time) ([]types.TicketID, error)

	// ListStaleTicketIDsToRemindOf returns IDs of stale tickets whose
	// LastInteractedAt is older than the threshold.
	ListStaleTicketIDsToRemindOf(ctx context.Context, threshold time.Time) ([]types.TicketID, error)
}
