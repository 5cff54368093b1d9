package memory

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

type escalationStore struct {
	mu      sync.RWMutex
	entries map[types.TicketID][]*model.Escalation
}

var _ interfaces.EscalationReader = &escalationStore{}

func newEscalationStore() *escalationStore {
	return &escalationStore{
		entries: make(map[types.TicketID][]*model.Escalation),
	}
}

func copyEscalation(e *model.Escalation) *model.Escalation {
	copied := *e
	copied.Tags = append([]types.TagCode(nil), e.Tags...)
	if e.ResolvedAt != nil {
		resolved := *e.ResolvedAt
		copied.ResolvedAt = &resolved
	}
	return &copied
}

func (s *escalationStore) add(e *model.Escalation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.TicketID] = append(s.entries[e.TicketID], copyEscalation(e))
}

// resolveAll marks every escalation of the ticket resolved. Test seam for
// exercising the confirmation gate end to end.
func (s *escalationStore) resolveAll(id types.TicketID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[id] {
		if e.ResolvedAt == nil {
			resolved := at
			e.ResolvedAt = &resolved
		}
	}
}

func (s *escalationStore) CountNotResolvedByTicketID(ctx context.Context, id types.TicketID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.entries[id] {
		if !e.IsResolved() {
			count++
		}
	}
	return count, nil
}

func (s *escalationStore) ListByTicketID(ctx context.Context, id types.TicketID) ([]*model.Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Escalation, 0, len(s.entries[id]))
	for _, e := range s.entries[id] {
		result = append(result, copyEscalation(e))
	}
	return result, nil
}
