package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"github.com/secmon-lab/kottos/pkg/repository/memory"
	"github.com/secmon-lab/kottos/pkg/service/crypto"
	"github.com/secmon-lab/kottos/pkg/service/scheduler"
)

// fakeProcessor records processed IDs and fails or panics on request
type fakeProcessor struct {
	mu       sync.Mutex
	stale    []types.TicketID
	reminded []types.TicketID
	failOn   types.TicketID
	panicOn  types.TicketID
}

func (p *fakeProcessor) MarkAsStale(ctx context.Context, id types.TicketID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == p.panicOn {
		panic("processor exploded")
	}
	if id == p.failOn {
		return goerr.New("processor failed", goerr.V("ticket_id", id))
	}
	p.stale = append(p.stale, id)
	return nil
}

func (p *fakeProcessor) RemindOfStaleTicket(ctx context.Context, id types.TicketID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == p.failOn {
		return goerr.New("processor failed", goerr.V("ticket_id", id))
	}
	p.reminded = append(p.reminded, id)
	return nil
}

func seedTicket(t *testing.T, repo *memory.Memory, ts string, status types.TicketStatus, at time.Time) types.TicketID {
	t.Helper()
	ctx := context.Background()

	ticket, err := repo.Ticket().CreateTicketIfNotExists(ctx,
		model.NewTicket("C0SUPPORT", types.MessageTS(ts), at))
	gt.NoError(t, err).Required()

	if status != types.TicketStatusOpened {
		gt.NoError(t, ticket.ChangeStatus(status, at))
		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, ticket))
		gt.NoError(t, repo.Ticket().TouchTicketByID(ctx, ticket.ID, at))
	}
	return ticket.ID
}

func TestSchedulerPasses(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := base.Add(48 * time.Hour)

	t.Run("mark-stale sweeps quiet opened tickets", func(t *testing.T) {
		repo := memory.New(crypto.New(crypto.FormatPlain, ""))
		quiet := seedTicket(t, repo, "1000.0001", types.TicketStatusOpened, base)
		seedTicket(t, repo, "1000.0002", types.TicketStatusOpened, now.Add(-time.Hour))
		seedTicket(t, repo, "1000.0003", types.TicketStatusClosed, base)

		proc := &fakeProcessor{}
		s := scheduler.New(repo, proc, 24*time.Hour, 24*time.Hour, "*/10 * * * *", "*/10 * * * *",
			scheduler.WithClock(func() time.Time { return now }))

		s.RunMarkStalePass(context.Background())

		gt.Array(t, proc.stale).Length(1)
		gt.Value(t, proc.stale[0]).Equal(quiet)
	})

	t.Run("remind sweeps quiet stale tickets", func(t *testing.T) {
		repo := memory.New(crypto.New(crypto.FormatPlain, ""))
		stale := seedTicket(t, repo, "2000.0001", types.TicketStatusStale, base)
		seedTicket(t, repo, "2000.0002", types.TicketStatusOpened, base)

		proc := &fakeProcessor{}
		s := scheduler.New(repo, proc, 24*time.Hour, 24*time.Hour, "*/10 * * * *", "*/10 * * * *",
			scheduler.WithClock(func() time.Time { return now }))

		s.RunRemindPass(context.Background())

		gt.Array(t, proc.reminded).Length(1)
		gt.Value(t, proc.reminded[0]).Equal(stale)
	})

	t.Run("a failing ticket does not abort the batch", func(t *testing.T) {
		repo := memory.New(crypto.New(crypto.FormatPlain, ""))
		a := seedTicket(t, repo, "3000.0001", types.TicketStatusOpened, base)
		b := seedTicket(t, repo, "3000.0002", types.TicketStatusOpened, base)
		c := seedTicket(t, repo, "3000.0003", types.TicketStatusOpened, base)

		proc := &fakeProcessor{failOn: b}
		s := scheduler.New(repo, proc, 24*time.Hour, 24*time.Hour, "*/10 * * * *", "*/10 * * * *",
			scheduler.WithClock(func() time.Time { return now }))

		s.RunMarkStalePass(context.Background())

		gt.Array(t, proc.stale).Length(2)
		gt.Array(t, proc.stale).Has(a)
		gt.Array(t, proc.stale).Has(c)
	})

	t.Run("a panicking ticket does not abort the batch", func(t *testing.T) {
		repo := memory.New(crypto.New(crypto.FormatPlain, ""))
		a := seedTicket(t, repo, "4000.0001", types.TicketStatusOpened, base)
		b := seedTicket(t, repo, "4000.0002", types.TicketStatusOpened, base)

		proc := &fakeProcessor{panicOn: a}
		s := scheduler.New(repo, proc, 24*time.Hour, 24*time.Hour, "*/10 * * * *", "*/10 * * * *",
			scheduler.WithClock(func() time.Time { return now }))

		s.RunMarkStalePass(context.Background())

		gt.Array(t, proc.stale).Length(1)
		gt.Value(t, proc.stale[0]).Equal(b)
	})
}
