package memory

import (
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is a concurrency-safe in-memory repository. State is scoped to the
// instance, so independent test instances never share data.
type Memory struct {
	ticket     *ticketRepository
	escalation *escalationStore
}

var _ interfaces.Repository = &Memory{}

// New creates an in-memory repository. The cipher is used to persist
// assignees the same way the durable store does.
func New(cipher interfaces.AssigneeCipher) *Memory {
	escalations := newEscalationStore()
	return &Memory{
		ticket:     newTicketRepository(cipher, escalations),
		escalation: escalations,
	}
}

func (m *Memory) Ticket() interfaces.TicketRepository {
	return m.ticket
}

func (m *Memory) Escalation() interfaces.EscalationReader {
	return m.escalation
}

func (m *Memory) Close() error {
	return nil
}

// AddEscalation seeds an escalation into the read model. The escalation
// sub-workflow is owned elsewhere; this is the ingestion point used by
// tests and by escalation event consumers.
func (m *Memory) AddEscalation(e *model.Escalation) {
	m.escalation.add(e)
}

// ResolveEscalations marks every escalation of the ticket resolved at the
// given time.
func (m *Memory) ResolveEscalations(id types.TicketID, at time.Time) {
	m.escalation.resolveAll(id, at)
}
