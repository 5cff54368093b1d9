package slack

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

const (
	// DefaultTrackedReaction marks a query message the bot is tracking
	DefaultTrackedReaction = "eyes"
	// DefaultClosedReaction marks a query message whose ticket is closed
	DefaultClosedReaction = "white_check_mark"
	// DefaultEscalatedReaction marks an escalated ticket thread
	DefaultEscalatedReaction = "rotating_light"
)

// client implements the Notifier interface over the Slack Web API
type client struct {
	api               *slack.Client
	trackedReaction   string
	closedReaction    string
	escalatedReaction string
}

var _ interfaces.Notifier = &client{}

// Option is a functional option for client configuration
type Option func(*client)

// WithTrackedReaction overrides the tracked marker reaction
func WithTrackedReaction(name string) Option {
	return func(c *client) {
		c.trackedReaction = name
	}
}

// WithClosedReaction overrides the closed marker reaction
func WithClosedReaction(name string) Option {
	return func(c *client) {
		c.closedReaction = name
	}
}

// WithEscalatedReaction overrides the escalated marker reaction
func WithEscalatedReaction(name string) Option {
	return func(c *client) {
		c.escalatedReaction = name
	}
}

// New creates a Notifier backed by the Slack Web API
func New(token string, opts ...Option) (interfaces.Notifier, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		api:               slack.New(token),
		trackedReaction:   DefaultTrackedReaction,
		closedReaction:    DefaultClosedReaction,
		escalatedReaction: DefaultEscalatedReaction,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func itemRef(ref model.MessageRef) slack.ItemRef {
	return slack.NewRefToMessage(ref.ChannelID.String(), ref.MessageTS.String())
}

// PostTicketForm posts the ticket-form message into the query thread and
// returns the message timestamp to be persisted onto the ticket.
func (c *client) PostTicketForm(ctx context.Context, ref model.MessageRef, ticket *model.Ticket) (types.MessageTS, error) {
	blocks := buildTicketFormBlocks(ticket)
	_, ts, err := c.api.PostMessageContext(ctx, ref.ChannelID.String(),
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(ticketFormFallback(ticket), false),
		slack.MsgOptionTS(ref.MessageTS.String()),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post ticket form",
			goerr.V("channel_id", ref.ChannelID),
			goerr.V("thread_ts", ref.MessageTS),
		)
	}
	return types.MessageTS(ts), nil
}

// EditTicketForm re-renders an existing ticket-form message
func (c *client) EditTicketForm(ctx context.Context, ref model.MessageRef, ticket *model.Ticket) error {
	blocks := buildTicketFormBlocks(ticket)
	_, _, _, err := c.api.UpdateMessageContext(ctx, ref.ChannelID.String(), ref.MessageTS.String(),
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(ticketFormFallback(ticket), false),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to edit ticket form",
			goerr.V("channel_id", ref.ChannelID),
			goerr.V("message_ts", ref.MessageTS),
		)
	}
	return nil
}

func (c *client) MarkPostTracked(ctx context.Context, ref model.MessageRef) error {
	if err := c.api.AddReactionContext(ctx, c.trackedReaction, itemRef(ref)); err != nil {
		// Slack reports already_reacted when the marker is present; that
		// is the desired state
		if err.Error() == "already_reacted" {
			return nil
		}
		return goerr.Wrap(err, "failed to add tracked reaction", goerr.V("channel_id", ref.ChannelID))
	}
	return nil
}

func (c *client) MarkTicketClosed(ctx context.Context, ref model.MessageRef) error {
	if err := c.api.AddReactionContext(ctx, c.closedReaction, itemRef(ref)); err != nil {
		if err.Error() == "already_reacted" {
			return nil
		}
		return goerr.Wrap(err, "failed to add closed reaction", goerr.V("channel_id", ref.ChannelID))
	}
	return nil
}

func (c *client) UnmarkTicketClosed(ctx context.Context, ref model.MessageRef) error {
	if err := c.api.RemoveReactionContext(ctx, c.closedReaction, itemRef(ref)); err != nil {
		if err.Error() == "no_reaction" {
			return nil
		}
		return goerr.Wrap(err, "failed to remove closed reaction", goerr.V("channel_id", ref.ChannelID))
	}
	return nil
}

func (c *client) MarkTicketEscalated(ctx context.Context, ref model.MessageRef) error {
	if err := c.api.AddReactionContext(ctx, c.escalatedReaction, itemRef(ref)); err != nil {
		if err.Error() == "already_reacted" {
			return nil
		}
		return goerr.Wrap(err, "failed to add escalated reaction", goerr.V("channel_id", ref.ChannelID))
	}
	return nil
}

// WarnStaleness posts a staleness warning into the ticket thread
func (c *client) WarnStaleness(ctx context.Context, ref model.MessageRef) error {
	_, _, err := c.api.PostMessageContext(ctx, ref.ChannelID.String(),
		slack.MsgOptionText("This ticket has had no activity for a while. Reply in this thread to keep it open, or close it from the ticket form.", false),
		slack.MsgOptionTS(ref.MessageTS.String()),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post staleness warning",
			goerr.V("channel_id", ref.ChannelID),
			goerr.V("thread_ts", ref.MessageTS),
		)
	}
	return nil
}

func (c *client) GetPermalink(ctx context.Context, ref model.MessageRef) (string, error) {
	link, err := c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: ref.ChannelID.String(),
		Ts:      ref.MessageTS.String(),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to get permalink",
			goerr.V("channel_id", ref.ChannelID),
			goerr.V("message_ts", ref.MessageTS),
		)
	}
	return link, nil
}
