package firestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ticketRepository struct {
	client           *firestore.Client
	cipher           interfaces.AssigneeCipher
	escalations      interfaces.EscalationReader
	collectionPrefix string
}

var _ interfaces.TicketRepository = &ticketRepository{}

func newTicketRepository(client *firestore.Client, cipher interfaces.AssigneeCipher, escalations interfaces.EscalationReader) *ticketRepository {
	return &ticketRepository{
		client:      client,
		cipher:      cipher,
		escalations: escalations,
	}
}

func (r *ticketRepository) collection(name string) string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_" + name
	}
	return name
}

func (r *ticketRepository) ticketsCollection() string  { return r.collection("tickets") }
func (r *ticketRepository) queriesCollection() string  { return r.collection("queries") }
func (r *ticketRepository) countersCollection() string { return r.collection("counters") }

func queryDocID(ref model.MessageRef) string {
	q := ref.QueryRef()
	return fmt.Sprintf("%s_%s", q.ChannelID, q.MessageTS)
}

func (r *ticketRepository) CreateQueryIfNotExists(ctx context.Context, ref model.MessageRef) error {
	q := ref.QueryRef()
	docRef := r.client.Collection(r.queriesCollection()).Doc(queryDocID(ref))

	// Conditional create: the NotFound-guarded Create keeps this a single
	// atomic operation, no check-then-insert.
	_, err := docRef.Create(ctx, &queryDoc{
		ChannelID: q.ChannelID.String(),
		MessageTS: q.MessageTS.String(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return goerr.Wrap(err, "failed to create query record", goerr.V("channel_id", q.ChannelID), goerr.V("message_ts", q.MessageTS))
	}
	return nil
}

func (r *ticketRepository) QueryExists(ctx context.Context, ref model.MessageRef) (bool, error) {
	_, err := r.client.Collection(r.queriesCollection()).Doc(queryDocID(ref)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to get query record")
	}
	return true, nil
}

func (r *ticketRepository) DeleteQueryIfNoTicket(ctx context.Context, ref model.MessageRef) error {
	docRef := r.client.Collection(r.queriesCollection()).Doc(queryDocID(ref))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return goerr.Wrap(err, "failed to get query record")
		}

		var doc queryDoc
		if err := snap.DataTo(&doc); err != nil {
			return goerr.Wrap(err, "failed to decode query record")
		}
		if doc.TicketID != 0 {
			// A ticket still references the query; keep the record
			return nil
		}
		return tx.Delete(docRef)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete query record", goerr.V("doc_id", queryDocID(ref)))
	}
	return nil
}

func (r *ticketRepository) nextTicketID(tx *firestore.Transaction) (int64, error) {
	counterRef := r.client.Collection(r.countersCollection()).Doc("ticket_counter")

	doc, err := tx.Get(counterRef)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			if err := tx.Set(counterRef, map[string]interface{}{"value": int64(1)}); err != nil {
				return 0, goerr.Wrap(err, "failed to initialize ticket counter")
			}
			return 1, nil
		}
		return 0, goerr.Wrap(err, "failed to get ticket counter")
	}

	current, err := doc.DataAt("value")
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get counter value")
	}
	val, ok := current.(int64)
	if !ok {
		return 0, goerr.New("counter value is not of type int64", goerr.V("value", current))
	}

	next := val + 1
	if err := tx.Update(counterRef, []firestore.Update{{Path: "value", Value: next}}); err != nil {
		return 0, goerr.Wrap(err, "failed to update ticket counter")
	}
	return next, nil
}

func (r *ticketRepository) CreateTicketIfNotExists(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	if err := ticket.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid ticket")
	}

	queryRef := r.client.Collection(r.queriesCollection()).Doc(queryDocID(ticket.QueryRef()))

	var result *model.Ticket
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = nil

		snap, err := tx.Get(queryRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to get query record")
		}

		if err == nil {
			var qd queryDoc
			if decodeErr := snap.DataTo(&qd); decodeErr != nil {
				return goerr.Wrap(decodeErr, "failed to decode query record")
			}
			if qd.TicketID != 0 {
				// Get-or-create: a ticket already owns this query reference
				ticketSnap, getErr := tx.Get(r.client.Collection(r.ticketsCollection()).Doc(fmt.Sprintf("%d", qd.TicketID)))
				if getErr != nil {
					return goerr.Wrap(getErr, "failed to get existing ticket", goerr.V("id", qd.TicketID))
				}
				var td ticketDoc
				if decodeErr := ticketSnap.DataTo(&td); decodeErr != nil {
					return goerr.Wrap(decodeErr, "failed to decode existing ticket")
				}
				result = r.restore(&td)
				return nil
			}
		}

		nextID, err := r.nextTicketID(tx)
		if err != nil {
			return err
		}

		created := ticket.Clone()
		if err := created.SetID(types.TicketID(nextID)); err != nil {
			return err
		}

		doc := toTicketDoc(created)
		r.encodeAssignee(doc, created.AssignedTo)

		if err := tx.Set(r.client.Collection(r.ticketsCollection()).Doc(fmt.Sprintf("%d", nextID)), doc); err != nil {
			return goerr.Wrap(err, "failed to create ticket", goerr.V("id", nextID))
		}

		q := created.QueryRef()
		if err := tx.Set(queryRef, &queryDoc{
			ChannelID: q.ChannelID.String(),
			MessageTS: q.MessageTS.String(),
			TicketID:  nextID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return goerr.Wrap(err, "failed to link query record to ticket")
		}

		result = created
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ticket if not exists")
	}
	return result, nil
}

// encodeAssignee writes the assignee in ciphered form. Cipher failure is
// fail-soft: the assignment is not persisted and the write proceeds.
func (r *ticketRepository) encodeAssignee(doc *ticketDoc, assignee *types.UserID) {
	if assignee == nil || r.cipher == nil {
		return
	}
	if enc, ok := r.cipher.Encrypt(*assignee); ok {
		doc.AssignedValue = enc.Value
		doc.AssignedFormat = enc.Format
		doc.AssignedHash = r.cipher.Hash(*assignee)
	}
}

func (r *ticketRepository) restore(doc *ticketDoc) *model.Ticket {
	t := doc.toModel()
	if doc.AssignedValue != "" && r.cipher != nil {
		if plain, ok := r.cipher.Decrypt(doc.AssignedValue, doc.AssignedFormat); ok {
			t.AssignedTo = &plain
		}
	}
	return t
}

func (r *ticketRepository) ticketDocRef(id types.TicketID) *firestore.DocumentRef {
	return r.client.Collection(r.ticketsCollection()).Doc(id.String())
}

func (r *ticketRepository) UpdateTicket(ctx context.Context, ticket *model.Ticket) error {
	if err := ticket.ID.Validate(); err != nil {
		return err
	}
	if err := ticket.Validate(); err != nil {
		return goerr.Wrap(err, "invalid ticket")
	}

	docRef := r.ticketDocRef(ticket.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.New("ticket not found", goerr.V("id", ticket.ID))
			}
			return goerr.Wrap(err, "failed to get ticket", goerr.V("id", ticket.ID))
		}

		var prev ticketDoc
		if err := snap.DataTo(&prev); err != nil {
			return goerr.Wrap(err, "failed to decode ticket")
		}

		doc := toTicketDoc(ticket)
		doc.UpdatedAt = time.Now().UTC()
		if ticket.AssignedTo != nil {
			r.encodeAssignee(doc, ticket.AssignedTo)
		} else {
			// UpdateTicket does not clear an assignment; that is Assign's job
			doc.AssignedValue = prev.AssignedValue
			doc.AssignedFormat = prev.AssignedFormat
			doc.AssignedHash = prev.AssignedHash
		}

		return tx.Set(docRef, doc)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to update ticket", goerr.V("id", ticket.ID))
	}
	return nil
}

func (r *ticketRepository) TouchTicketByID(ctx context.Context, id types.TicketID, at time.Time) error {
	if err := id.Validate(); err != nil {
		return err
	}

	_, err := r.ticketDocRef(id).Update(ctx, []firestore.Update{
		{Path: "last_interacted_at", Value: at},
		{Path: "updated_at", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.New("ticket not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to touch ticket", goerr.V("id", id))
	}
	return nil
}

func (r *ticketRepository) InsertStatusLog(ctx context.Context, id types.TicketID, entry model.StatusLogEntry) error {
	if err := id.Validate(); err != nil {
		return err
	}

	_, err := r.ticketDocRef(id).Update(ctx, []firestore.Update{
		{Path: "status_log", Value: firestore.ArrayUnion(statusLogDoc{
			Status:    entry.Status.String(),
			Timestamp: entry.Timestamp,
		})},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.New("ticket not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to insert status log", goerr.V("id", id))
	}
	return nil
}

func (r *ticketRepository) Assign(ctx context.Context, id types.TicketID, assignee *types.UserID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	updates := []firestore.Update{
		{Path: "assigned_value", Value: ""},
		{Path: "assigned_format", Value: ""},
		{Path: "assigned_hash", Value: ""},
	}
	if assignee != nil {
		if r.cipher == nil {
			return nil
		}
		enc, ok := r.cipher.Encrypt(*assignee)
		if !ok {
			// Fail-soft per the confidentiality contract: skip the write
			return nil
		}
		updates = []firestore.Update{
			{Path: "assigned_value", Value: enc.Value},
			{Path: "assigned_format", Value: enc.Format},
			{Path: "assigned_hash", Value: r.cipher.Hash(*assignee)},
		}
	}

	_, err := r.ticketDocRef(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.New("ticket not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to assign ticket", goerr.V("id", id))
	}
	return nil
}

func (r *ticketRepository) FindTicketByID(ctx context.Context, id types.TicketID) (*model.Ticket, error) {
	snap, err := r.ticketDocRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get ticket", goerr.V("id", id))
	}

	var doc ticketDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode ticket", goerr.V("id", id))
	}
	return r.restore(&doc), nil
}

func (r *ticketRepository) FindTicketByQuery(ctx context.Context, ref model.MessageRef) (*model.Ticket, error) {
	snap, err := r.client.Collection(r.queriesCollection()).Doc(queryDocID(ref)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get query record")
	}

	var qd queryDoc
	if err := snap.DataTo(&qd); err != nil {
		return nil, goerr.Wrap(err, "failed to decode query record")
	}
	if qd.TicketID == 0 {
		return nil, nil
	}
	return r.FindTicketByID(ctx, types.TicketID(qd.TicketID))
}

func (r *ticketRepository) ListTickets(ctx context.Context, query model.TicketsQuery) ([]*model.Ticket, error) {
	// Narrow with indexable predicates, then evaluate the compound filter
	// in process: Firestore cannot express tag-superset matching ORed with
	// the no-tags case.
	q := r.client.Collection(r.ticketsCollection()).Query
	if query.Status != nil {
		q = q.Where("status", "==", query.Status.String())
	}
	if query.CreatedAfter != nil {
		q = q.Where("created_at", ">=", *query.CreatedAfter)
	}
	if query.CreatedBefore != nil {
		q = q.Where("created_at", "<", *query.CreatedBefore)
	}
	if query.AssignedToHash != "" {
		q = q.Where("assigned_hash", "==", query.AssignedToHash)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	hash := func(u types.UserID) string {
		if r.cipher == nil {
			return ""
		}
		return r.cipher.Hash(u)
	}

	var matched []*model.Ticket
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate tickets")
		}

		var doc ticketDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode ticket", goerr.V("doc_id", snap.Ref.ID))
		}

		t := r.restore(&doc)

		// The hash predicate already ran server-side
		probe := query
		probe.AssignedToHash = ""
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

	if query.Unlimited {
		return matched, nil
	}
	offset := query.Offset()
	if offset >= len(matched) {
		return []*model.Ticket{}, nil
	}
	end := offset + query.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *ticketRepository) ListStaleTicketIDs(ctx context.Context, threshold time.Time) ([]types.TicketID, error) {
	return r.listIDsByStatusOlderThan(ctx, types.TicketStatusOpened, threshold)
}

func (r *ticketRepository) ListStaleTicketIDsToRemindOf(ctx context.Context, threshold time.Time) ([]types.TicketID, error) {
	return r.listIDsByStatusOlderThan(ctx, types.TicketStatusStale, threshold)
}

func (r *ticketRepository) listIDsByStatusOlderThan(ctx context.Context, st types.TicketStatus, threshold time.Time) ([]types.TicketID, error) {
	iter := r.client.Collection(r.ticketsCollection()).
		Where("status", "==", st.String()).
		Where("last_interacted_at", "<", threshold).
		Select("id").
		Documents(ctx)
	defer iter.Stop()

	var ids []types.TicketID
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate stale tickets")
		}

		raw, err := snap.DataAt("id")
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read ticket id", goerr.V("doc_id", snap.Ref.ID))
		}
		id, ok := raw.(int64)
		if !ok {
			return nil, goerr.New("ticket id is not of type int64", goerr.V("value", raw))
		}
		ids = append(ids, types.TicketID(id))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
