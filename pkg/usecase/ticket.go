package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"github.com/secmon-lab/kottos/pkg/utils/errutil"
	"github.com/secmon-lab/kottos/pkg/utils/logging"
)

// TicketUseCase drives the ticket lifecycle state machine: inbound chat
// events, explicit submissions, escalation requests and the staleness jobs
// all funnel through here.
type TicketUseCase struct {
	repo            interfaces.Repository
	notifier        interfaces.Notifier
	publisher       interfaces.Publisher
	channelID       types.ChannelID
	triggerReaction string
	now             func() time.Time
}

// NewTicketUseCase creates a TicketUseCase instance
func NewTicketUseCase(repo interfaces.Repository, channelID, triggerReaction string, opts ...Option) *TicketUseCase {
	uc := &TicketUseCase{
		repo:            repo,
		channelID:       types.ChannelID(channelID),
		triggerReaction: triggerReaction,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// HandleMessagePosted processes a message event from the chat workspace.
// Top-level messages in the tracked channel become query records; thread
// replies wake up the owning ticket.
func (uc *TicketUseCase) HandleMessagePosted(ctx context.Context, ref model.MessageRef) error {
	logger := logging.From(ctx)

	if ref.ChannelID != uc.channelID {
		logger.Debug("message outside tracked channel ignored", "channel_id", ref.ChannelID)
		return nil
	}

	if !ref.IsThreadReply() {
		// The query message itself: make sure it is recorded so a later
		// trigger reaction can create the ticket.
		if err := uc.repo.Ticket().CreateQueryIfNotExists(ctx, ref); err != nil {
			return goerr.Wrap(err, "failed to record query message",
				goerr.V("channel_id", ref.ChannelID),
				goerr.V("message_ts", ref.MessageTS),
			)
		}
		return nil
	}

	ticket, err := uc.repo.Ticket().FindTicketByQuery(ctx, ref.QueryRef())
	if err != nil {
		return goerr.Wrap(err, "failed to find ticket by thread reference")
	}
	if ticket == nil {
		logger.Debug("thread reply without ticket ignored",
			"channel_id", ref.ChannelID,
			"thread_ts", ref.ThreadTS,
		)
		return nil
	}

	now := uc.now()
	if ticket.Status == types.TicketStatusStale {
		if err := uc.transition(ctx, ticket, types.TicketStatusOpened, now); err != nil {
			return goerr.Wrap(err, "failed to reopen stale ticket", goerr.V(TicketIDKey, ticket.ID))
		}
		return nil
	}

	if err := uc.repo.Ticket().TouchTicketByID(ctx, ticket.ID, now); err != nil {
		return goerr.Wrap(err, "failed to touch ticket", goerr.V(TicketIDKey, ticket.ID))
	}
	return nil
}

// HandleReactionAdded processes a reaction event. A trigger reaction on a
// tracked query message creates the ticket; creation is a get-or-create
// keyed by the query reference, so duplicate events are safe.
func (uc *TicketUseCase) HandleReactionAdded(ctx context.Context, ref model.MessageRef, reactionName string) error {
	logger := logging.From(ctx)

	if ref.ChannelID != uc.channelID || ref.IsThreadReply() {
		logger.Debug("reaction outside tracked query messages ignored",
			"channel_id", ref.ChannelID,
			"reaction", reactionName,
		)
		return nil
	}
	if reactionName != uc.triggerReaction {
		logger.Debug("non-trigger reaction ignored", "reaction", reactionName)
		return nil
	}

	// A reaction event carries no thread info, so the query record decides
	// whether the reacted message is a tracked query or a thread reply.
	exists, err := uc.repo.Ticket().QueryExists(ctx, ref)
	if err != nil {
		return goerr.Wrap(err, "failed to check query record")
	}
	if !exists {
		logger.Debug("reaction on unrecorded message ignored",
			"channel_id", ref.ChannelID,
			"message_ts", ref.MessageTS,
		)
		return nil
	}

	now := uc.now()
	ticket, err := uc.repo.Ticket().CreateTicketIfNotExists(ctx, model.NewTicket(ref.ChannelID, ref.QueryRef().MessageTS, now))
	if err != nil {
		return goerr.Wrap(err, "failed to create ticket",
			goerr.V("channel_id", ref.ChannelID),
			goerr.V("message_ts", ref.MessageTS),
		)
	}

	if uc.notifier != nil {
		if err := uc.notifier.MarkPostTracked(ctx, ticket.QueryRef()); err != nil {
			errutil.Handle(ctx, err, "failed to mark query message as tracked")
		}
	}

	// Known limitation: this check-then-post sequence is not atomic.
	// Concurrent duplicate reaction events on the same message can each see
	// an empty CreatedMessageTS and post the form more than once.
	if ticket.CreatedMessageTS == "" && uc.notifier != nil {
		formTS, err := uc.notifier.PostTicketForm(ctx, ticket.QueryRef(), ticket)
		if err != nil {
			return goerr.Wrap(err, "failed to post ticket form", goerr.V(TicketIDKey, ticket.ID))
		}

		ticket.CreatedMessageTS = formTS
		if err := uc.repo.Ticket().UpdateTicket(ctx, ticket); err != nil {
			return goerr.Wrap(err, "failed to record ticket form timestamp",
				goerr.V(TicketIDKey, ticket.ID),
				goerr.V("form_ts", formTS),
			)
		}
	}

	logger.Info("ticket ready for query message",
		"ticket_id", ticket.ID,
		"channel_id", ticket.ChannelID,
		"query_ts", ticket.QueryTS,
	)
	return nil
}

// Submit applies an explicit staff submission to the ticket. Closing a
// ticket with unresolved escalations requires the Confirmed flag; without
// it the submission is returned untouched in a confirmation-required
// result.
func (uc *TicketUseCase) Submit(ctx context.Context, sub model.Submission) (*model.SubmitResult, error) {
	if !sub.Status.IsValid() {
		return nil, goerr.Wrap(ErrInvalidSubmission, "unknown status", goerr.V("status", sub.Status))
	}

	ticket, err := uc.repo.Ticket().FindTicketByID(ctx, sub.TicketID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load ticket", goerr.V(TicketIDKey, sub.TicketID))
	}
	if ticket == nil {
		return nil, goerr.Wrap(ErrTicketNotFound, "submission references a non-existent ticket", goerr.V(TicketIDKey, sub.TicketID))
	}

	if sub.Status == types.TicketStatusClosed && !sub.Confirmed {
		unresolved, err := uc.repo.Escalation().CountNotResolvedByTicketID(ctx, ticket.ID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to count unresolved escalations", goerr.V(TicketIDKey, ticket.ID))
		}
		if unresolved > 0 {
			return &model.SubmitResult{
				Ticket:                ticket,
				ConfirmationRequired:  true,
				UnresolvedEscalations: unresolved,
				Submission:            sub,
			}, nil
		}
	}

	now := uc.now()
	prevStatus := ticket.Status

	ticket.Team = sub.Team
	ticket.SetTags(sub.Tags)
	ticket.Impact = sub.Impact

	statusChanged := sub.Status != prevStatus
	if statusChanged {
		if err := ticket.ChangeStatus(sub.Status, now); err != nil {
			return nil, err
		}
	} else {
		ticket.Touch(now)
	}

	if err := uc.repo.Ticket().UpdateTicket(ctx, ticket); err != nil {
		return nil, goerr.Wrap(err, "failed to persist submission", goerr.V(TicketIDKey, ticket.ID))
	}

	if sub.Assignee != nil {
		if err := uc.repo.Ticket().Assign(ctx, ticket.ID, sub.Assignee); err != nil {
			return nil, goerr.Wrap(err, "failed to persist assignment", goerr.V(TicketIDKey, ticket.ID))
		}
		ticket.AssignedTo = sub.Assignee
	}

	if statusChanged {
		uc.runStatusSideEffects(ctx, ticket, prevStatus, now)
	}

	return &model.SubmitResult{Ticket: ticket, Submission: sub}, nil
}

// EscalationRequest asks for a ticket to be escalated to a team
type EscalationRequest struct {
	TicketID types.TicketID
	Team     types.Team
	Tags     []types.TagCode
}

// Escalate publishes a ticket-escalated event and marks the thread. The
// ticket status itself is untouched: escalation state lives in the
// escalation read model.
func (uc *TicketUseCase) Escalate(ctx context.Context, req EscalationRequest) error {
	ticket, err := uc.repo.Ticket().FindTicketByID(ctx, req.TicketID)
	if err != nil {
		return goerr.Wrap(err, "failed to load ticket", goerr.V(TicketIDKey, req.TicketID))
	}
	if ticket == nil {
		return goerr.Wrap(ErrTicketNotFound, "cannot escalate a non-existent ticket", goerr.V(TicketIDKey, req.TicketID))
	}
	if ticket.Status == types.TicketStatusClosed {
		return goerr.Wrap(ErrTicketAlreadyClosed, "cannot escalate a closed ticket", goerr.V(TicketIDKey, req.TicketID))
	}

	var permalink string
	if uc.notifier != nil {
		link, err := uc.notifier.GetPermalink(ctx, ticket.QueryRef())
		if err != nil {
			errutil.Handle(ctx, err, "failed to resolve thread permalink")
		} else {
			permalink = link
		}
	}

	if uc.publisher != nil {
		uc.publisher.Publish(ctx, model.NewEscalatedEvent(ticket, req.Team, req.Tags, permalink, uc.now()))
	}

	if uc.notifier != nil {
		if err := uc.notifier.MarkTicketEscalated(ctx, ticket.QueryRef()); err != nil {
			errutil.Handle(ctx, err, "failed to mark ticket thread as escalated")
		}
	}

	logging.From(ctx).Info("ticket escalated",
		"ticket_id", ticket.ID,
		"team", req.Team.Label(),
	)
	return nil
}

// MarkAsStale moves an opened ticket to stale. Invoked by the scheduler;
// the status is re-checked here so a concurrent user interaction turns the
// call into a logged no-op instead of a bogus transition.
func (uc *TicketUseCase) MarkAsStale(ctx context.Context, id types.TicketID) error {
	logger := logging.From(ctx)

	ticket, err := uc.repo.Ticket().FindTicketByID(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to load ticket", goerr.V(TicketIDKey, id))
	}
	if ticket == nil {
		logger.Warn("stale candidate vanished, skipping", "ticket_id", id)
		return nil
	}
	if ticket.Status != types.TicketStatusOpened {
		logger.Info("ticket no longer opened, skipping staleness transition",
			"ticket_id", id,
			"status", ticket.Status,
		)
		return nil
	}

	now := uc.now()
	if err := uc.transition(ctx, ticket, types.TicketStatusStale, now); err != nil {
		return goerr.Wrap(err, "failed to mark ticket as stale", goerr.V(TicketIDKey, id))
	}

	if uc.notifier != nil {
		if err := uc.notifier.WarnStaleness(ctx, ticket.QueryRef()); err != nil {
			errutil.Handle(ctx, err, "failed to send staleness warning")
		}
	}
	return nil
}

// RemindOfStaleTicket re-sends the staleness warning for a still-stale
// ticket and touches LastInteractedAt so the reminder interval restarts.
// No status log entry is appended.
func (uc *TicketUseCase) RemindOfStaleTicket(ctx context.Context, id types.TicketID) error {
	logger := logging.From(ctx)

	ticket, err := uc.repo.Ticket().FindTicketByID(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to load ticket", goerr.V(TicketIDKey, id))
	}
	if ticket == nil {
		logger.Warn("reminder candidate vanished, skipping", "ticket_id", id)
		return nil
	}
	if ticket.Status != types.TicketStatusStale {
		logger.Info("ticket no longer stale, skipping reminder",
			"ticket_id", id,
			"status", ticket.Status,
		)
		return nil
	}

	if uc.notifier != nil {
		if err := uc.notifier.WarnStaleness(ctx, ticket.QueryRef()); err != nil {
			errutil.Handle(ctx, err, "failed to re-send staleness warning")
		}
	}

	if err := uc.repo.Ticket().TouchTicketByID(ctx, ticket.ID, uc.now()); err != nil {
		return goerr.Wrap(err, "failed to touch reminded ticket", goerr.V(TicketIDKey, id))
	}
	return nil
}

// transition performs a status change with its persistence and the shared
// side effects.
func (uc *TicketUseCase) transition(ctx context.Context, ticket *model.Ticket, status types.TicketStatus, now time.Time) error {
	prevStatus := ticket.Status
	if err := ticket.ChangeStatus(status, now); err != nil {
		return err
	}
	if err := uc.repo.Ticket().UpdateTicket(ctx, ticket); err != nil {
		return goerr.Wrap(err, "failed to persist status change", goerr.V(TicketIDKey, ticket.ID))
	}

	uc.runStatusSideEffects(ctx, ticket, prevStatus, now)
	return nil
}

// runStatusSideEffects publishes the status-changed event and reflects the
// new state in the chat UI. Notification failures are logged, not
// propagated: the state change has already been persisted.
func (uc *TicketUseCase) runStatusSideEffects(ctx context.Context, ticket *model.Ticket, prevStatus types.TicketStatus, now time.Time) {
	if uc.publisher != nil {
		uc.publisher.Publish(ctx, model.NewStatusChangedEvent(ticket.ID, ticket.Status, now))
	}

	if uc.notifier == nil {
		return
	}

	if formRef, ok := ticket.FormRef(); ok {
		if err := uc.notifier.EditTicketForm(ctx, formRef, ticket); err != nil {
			errutil.Handle(ctx, err, "failed to edit ticket form")
		}
	}

	switch {
	case ticket.Status == types.TicketStatusClosed:
		if err := uc.notifier.MarkTicketClosed(ctx, ticket.QueryRef()); err != nil {
			errutil.Handle(ctx, err, "failed to mark ticket closed")
		}
	case prevStatus == types.TicketStatusClosed || prevStatus == types.TicketStatusStale:
		if err := uc.notifier.UnmarkTicketClosed(ctx, ticket.QueryRef()); err != nil {
			errutil.Handle(ctx, err, "failed to unmark ticket closed")
		}
	}
}
