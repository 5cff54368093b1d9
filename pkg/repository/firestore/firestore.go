package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
)

// Firestore is the durable repository backed by Google Cloud Firestore
type Firestore struct {
	client     *firestore.Client
	ticket     *ticketRepository
	escalation *escalationReader
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prefixes all collection names, for test isolation
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.ticket.collectionPrefix = prefix
		f.escalation.collectionPrefix = prefix
	}
}

// New creates a Firestore repository. The cipher is used to persist
// assignees; pass a plain-mode cipher to store them unencrypted.
func New(ctx context.Context, projectID, databaseID string, cipher interfaces.AssigneeCipher, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.V("projectID", projectID))
	}

	escalation := newEscalationReader(client)
	f := &Firestore{
		client:     client,
		ticket:     newTicketRepository(client, cipher, escalation),
		escalation: escalation,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Ticket() interfaces.TicketRepository {
	return f.ticket
}

func (f *Firestore) Escalation() interfaces.EscalationReader {
	return f.escalation
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
