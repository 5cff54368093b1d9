package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"google.golang.org/api/iterator"
)

type escalationReader struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.EscalationReader = &escalationReader{}

func newEscalationReader(client *firestore.Client) *escalationReader {
	return &escalationReader{client: client}
}

func (r *escalationReader) escalationsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_escalations"
	}
	return "escalations"
}

func (r *escalationReader) CountNotResolvedByTicketID(ctx context.Context, id types.TicketID) (int64, error) {
	iter := r.client.Collection(r.escalationsCollection()).
		Where("ticket_id", "==", int64(id)).
		Where("resolved", "==", false).
		Documents(ctx)
	defer iter.Stop()

	var count int64
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count unresolved escalations", goerr.V("ticket_id", id))
		}
		count++
	}
	return count, nil
}

func (r *escalationReader) ListByTicketID(ctx context.Context, id types.TicketID) ([]*model.Escalation, error) {
	iter := r.client.Collection(r.escalationsCollection()).
		Where("ticket_id", "==", int64(id)).
		Documents(ctx)
	defer iter.Stop()

	var result []*model.Escalation
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate escalations", goerr.V("ticket_id", id))
		}

		var doc escalationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode escalation", goerr.V("doc_id", snap.Ref.ID))
		}
		result = append(result, doc.toModel())
	}
	return result, nil
}
