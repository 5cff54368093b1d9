package scheduler

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"github.com/secmon-lab/kottos/pkg/utils/logging"
)

// TicketProcessor is the slice of the ticket use case the scheduler needs
type TicketProcessor interface {
	MarkAsStale(ctx context.Context, id types.TicketID) error
	RemindOfStaleTicket(ctx context.Context, id types.TicketID) error
}

// Scheduler runs the two staleness jobs on independent cron schedules.
// Each pass is a fresh, complete sweep over current repository state; a
// failing ticket is logged and never aborts the batch.
//
// Architecture assumption: single server instance, no distributed locking.
type Scheduler struct {
	repo             interfaces.Repository
	processor        TicketProcessor
	timeToStale      time.Duration
	reminderInterval time.Duration
	staleCron        string
	remindCron       string
	now              func() time.Time

	engine *cron.Cron
}

// Option is a functional option for Scheduler configuration
type Option func(*Scheduler)

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler. timeToStale is how long an opened ticket may
// stay quiet before it goes stale; reminderInterval how long a stale ticket
// may stay quiet before the warning is re-sent.
func New(repo interfaces.Repository, processor TicketProcessor, timeToStale, reminderInterval time.Duration, staleCron, remindCron string, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:             repo,
		processor:        processor,
		timeToStale:      timeToStale,
		reminderInterval: reminderInterval,
		staleCron:        staleCron,
		remindCron:       remindCron,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers both jobs with the cron engine and begins execution
func (s *Scheduler) Start(ctx context.Context) error {
	s.engine = cron.New()

	if _, err := s.engine.AddFunc(s.staleCron, func() {
		s.runPass(ctx, "mark-stale")
	}); err != nil {
		return goerr.Wrap(err, "failed to schedule mark-stale job", goerr.V("cron", s.staleCron))
	}

	if _, err := s.engine.AddFunc(s.remindCron, func() {
		s.runPass(ctx, "remind")
	}); err != nil {
		return goerr.Wrap(err, "failed to schedule remind job", goerr.V("cron", s.remindCron))
	}

	s.engine.Start()
	logging.From(ctx).Info("staleness scheduler started",
		"time_to_stale", s.timeToStale.String(),
		"reminder_interval", s.reminderInterval.String(),
		"stale_cron", s.staleCron,
		"remind_cron", s.remindCron,
	)
	return nil
}

// Stop stops the cron engine and waits for running jobs to finish
func (s *Scheduler) Stop() {
	if s.engine != nil {
		<-s.engine.Stop().Done()
	}
}

// RunMarkStalePass sweeps opened tickets whose last interaction is older
// than timeToStale. Exported so a pass can be triggered directly.
func (s *Scheduler) RunMarkStalePass(ctx context.Context) {
	s.runPass(ctx, "mark-stale")
}

// RunRemindPass sweeps stale tickets whose last interaction is older than
// the reminder interval.
func (s *Scheduler) RunRemindPass(ctx context.Context) {
	s.runPass(ctx, "remind")
}

func (s *Scheduler) runPass(ctx context.Context, job string) {
	logger := logging.From(ctx)

	var ids []types.TicketID
	var err error
	var act func(context.Context, types.TicketID) error

	switch job {
	case "mark-stale":
		ids, err = s.repo.Ticket().ListStaleTicketIDs(ctx, s.now().Add(-s.timeToStale))
		act = s.processor.MarkAsStale
	case "remind":
		ids, err = s.repo.Ticket().ListStaleTicketIDsToRemindOf(ctx, s.now().Add(-s.reminderInterval))
		act = s.processor.RemindOfStaleTicket
	default:
		logger.Error("unknown scheduler job", "job", job)
		return
	}

	if err != nil {
		logger.Error("failed to list scheduler candidates", "job", job, "error", err.Error())
		return
	}

	for _, id := range ids {
		// Failure isolation: one failing ticket must never abort the batch
		if err := s.runOne(ctx, act, id); err != nil {
			logger.Error("scheduler job failed for ticket",
				"job", job,
				"ticket_id", id,
				"error", err.Error(),
			)
		}
	}

	logger.Debug("scheduler pass completed", "job", job, "candidates", len(ids))
}

func (s *Scheduler) runOne(ctx context.Context, act func(context.Context, types.TicketID) error, id types.TicketID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("panic in scheduler job", goerr.V("panic", r), goerr.V("ticket_id", id))
		}
	}()
	return act(ctx, id)
}
