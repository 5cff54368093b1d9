package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

// queryKey is the composite key of a query-message reference
type queryKey struct {
	channelID types.ChannelID
	messageTS types.MessageTS
}

func keyOf(ref model.MessageRef) queryKey {
	q := ref.QueryRef()
	return queryKey{channelID: q.ChannelID, messageTS: q.MessageTS}
}

// storedTicket keeps the assignee in its persisted (possibly encrypted)
// form, mirroring what the durable store writes.
type storedTicket struct {
	ticket         *model.Ticket // AssignedTo is always nil here
	assignedValue  string
	assignedFormat string
	assignedHash   string
}

type ticketRepository struct {
	cipher      interfaces.AssigneeCipher
	escalations *escalationStore

	nextID atomic.Int64

	mu      sync.RWMutex
	queries map[queryKey]struct{}
	tickets map[types.TicketID]*storedTicket
	byQuery map[queryKey]types.TicketID
}

var _ interfaces.TicketRepository = &ticketRepository{}

func newTicketRepository(cipher interfaces.AssigneeCipher, escalations *escalationStore) *ticketRepository {
	return &ticketRepository{
		cipher:      cipher,
		escalations: escalations,
		queries:     make(map[queryKey]struct{}),
		tickets:     make(map[types.TicketID]*storedTicket),
		byQuery:     make(map[queryKey]types.TicketID),
	}
}

func (r *ticketRepository) CreateQueryIfNotExists(ctx context.Context, ref model.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[keyOf(ref)] = struct{}{}
	return nil
}

func (r *ticketRepository) QueryExists(ctx context.Context, ref model.MessageRef) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queries[keyOf(ref)]
	return ok, nil
}

func (r *ticketRepository) DeleteQueryIfNoTicket(ctx context.Context, ref model.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(ref)
	if _, ok := r.byQuery[key]; ok {
		return nil
	}
	delete(r.queries, key)
	return nil
}

func (r *ticketRepository) store(t *model.Ticket) *storedTicket {
	assignee := t.AssignedTo
	copied := t.Clone()
	copied.AssignedTo = nil

	stored := &storedTicket{ticket: copied}
	if assignee != nil && r.cipher != nil {
		if enc, ok := r.cipher.Encrypt(*assignee); ok {
			stored.assignedValue = enc.Value
			stored.assignedFormat = enc.Format
			stored.assignedHash = r.cipher.Hash(*assignee)
		}
		// Encryption failure is fail-soft: the assignment is simply not
		// persisted.
	}
	return stored
}

func (r *ticketRepository) restore(s *storedTicket) *model.Ticket {
	t := s.ticket.Clone()
	if s.assignedValue != "" && r.cipher != nil {
		if plain, ok := r.cipher.Decrypt(s.assignedValue, s.assignedFormat); ok {
			t.AssignedTo = &plain
		}
	}
	return t
}

func (r *ticketRepository) CreateTicketIfNotExists(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	if err := ticket.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid ticket")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(ticket.QueryRef())
	if existingID, ok := r.byQuery[key]; ok {
		return r.restore(r.tickets[existingID]), nil
	}

	created := ticket.Clone()
	if err := created.SetID(types.TicketID(r.nextID.Add(1))); err != nil {
		return nil, err
	}

	r.queries[key] = struct{}{}
	r.tickets[created.ID] = r.store(created)
	r.byQuery[key] = created.ID

	return created.Clone(), nil
}

func (r *ticketRepository) UpdateTicket(ctx context.Context, ticket *model.Ticket) error {
	if err := ticket.ID.Validate(); err != nil {
		return err
	}
	if err := ticket.Validate(); err != nil {
		return goerr.Wrap(err, "invalid ticket")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.tickets[ticket.ID]
	if !ok {
		return goerr.New("ticket not found", goerr.V("id", ticket.ID))
	}

	stored := r.store(ticket)
	if ticket.AssignedTo == nil {
		// UpdateTicket does not clear an assignment; that is Assign's job
		stored.assignedValue = prev.assignedValue
		stored.assignedFormat = prev.assignedFormat
		stored.assignedHash = prev.assignedHash
	}
	stored.ticket.UpdatedAt = time.Now().UTC()
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *ticketRepository) TouchTicketByID(ctx context.Context, id types.TicketID, at time.Time) error {
	if err := id.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return goerr.New("ticket not found", goerr.V("id", id))
	}
	stored.ticket.LastInteractedAt = at
	stored.ticket.UpdatedAt = at
	return nil
}

func (r *ticketRepository) InsertStatusLog(ctx context.Context, id types.TicketID, entry model.StatusLogEntry) error {
	if err := id.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return goerr.New("ticket not found", goerr.V("id", id))
	}
	stored.ticket.StatusLog = append(stored.ticket.StatusLog, entry)
	return nil
}

func (r *ticketRepository) Assign(ctx context.Context, id types.TicketID, assignee *types.UserID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return goerr.New("ticket not found", goerr.V("id", id))
	}

	if assignee == nil {
		stored.assignedValue = ""
		stored.assignedFormat = ""
		stored.assignedHash = ""
		return nil
	}

	if r.cipher == nil {
		return nil
	}
	enc, ok := r.cipher.Encrypt(*assignee)
	if !ok {
		// Fail-soft per the confidentiality contract: skip the write
		return nil
	}
	stored.assignedValue = enc.Value
	stored.assignedFormat = enc.Format
	stored.assignedHash = r.cipher.Hash(*assignee)
	return nil
}

func (r *ticketRepository) FindTicketByID(ctx context.Context, id types.TicketID) (*model.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	return r.restore(stored), nil
}

func (r *ticketRepository) FindTicketByQuery(ctx context.Context, ref model.MessageRef) (*model.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byQuery[keyOf(ref)]
	if !ok {
		return nil, nil
	}
	return r.restore(r.tickets[id]), nil
}

func (r *ticketRepository) ListTickets(ctx context.Context, query model.TicketsQuery) ([]*model.Ticket, error) {
	type candidate struct {
		ticket       *model.Ticket
		assignedHash string
	}

	r.mu.RLock()
	candidates := make([]candidate, 0, len(r.tickets))
	for _, stored := range r.tickets {
		candidates = append(candidates, candidate{
			ticket:       r.restore(stored),
			assignedHash: stored.assignedHash,
		})
	}
	r.mu.RUnlock()

	hash := func(u types.UserID) string {
		if r.cipher == nil {
			return ""
		}
		return r.cipher.Hash(u)
	}

	var matched []*model.Ticket
	for _, c := range candidates {
		t := c.ticket

		// Assignee filter matches on the stored hash so it works whether
		// or not the stored assignment decrypts
		probe := query
		if probe.AssignedToHash != "" {
			if c.assignedHash != probe.AssignedToHash {
				continue
			}
			probe.AssignedToHash = ""
		}
		if !probe.MatchesTicket(t, hash) {
			continue
		}

		if query.NeedsEscalations() {
			escalations, err := r.escalations.ListByTicketID(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			if !query.MatchesEscalations(escalations) {
				continue
			}
		}

		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return paginate(matched, query), nil
}

func paginate(tickets []*model.Ticket, query model.TicketsQuery) []*model.Ticket {
	if query.Unlimited {
		return tickets
	}
	offset := query.Offset()
	if offset >= len(tickets) {
		return []*model.Ticket{}
	}
	end := offset + query.Limit()
	if end > len(tickets) {
		end = len(tickets)
	}
	return tickets[offset:end]
}

func (r *ticketRepository) ListStaleTicketIDs(ctx context.Context, threshold time.Time) ([]types.TicketID, error) {
	return r.listIDsByStatusOlderThan(types.TicketStatusOpened, threshold), nil
}

func (r *ticketRepository) ListStaleTicketIDsToRemindOf(ctx context.Context, threshold time.Time) ([]types.TicketID, error) {
	return r.listIDsByStatusOlderThan(types.TicketStatusStale, threshold), nil
}

func (r *ticketRepository) listIDsByStatusOlderThan(status types.TicketStatus, threshold time.Time) []types.TicketID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []types.TicketID
	for id, stored := range r.tickets {
		if stored.ticket.Status == status && stored.ticket.LastInteractedAt.Before(threshold) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
