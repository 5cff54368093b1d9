package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	slacksvc "github.com/secmon-lab/kottos/pkg/service/slack"
)

// Slack holds CLI flags for the Slack integration
type Slack struct {
	botToken          string
	signingSecret     string
	channelID         string
	triggerReaction   string
	closedReaction    string
	escalatedReaction string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token",
			Category:    "Slack",
			Sources:     cli.EnvVars("KOTTOS_SLACK_BOT_TOKEN"),
			Destination: &x.botToken,
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for webhook verification)",
			Category:    "Slack",
			Sources:     cli.EnvVars("KOTTOS_SLACK_SIGNING_SECRET"),
			Destination: &x.signingSecret,
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Channel ID of the tracked support channel",
			Category:    "Slack",
			Sources:     cli.EnvVars("KOTTOS_SLACK_CHANNEL_ID"),
			Destination: &x.channelID,
		},
		&cli.StringFlag{
			Name:        "slack-trigger-reaction",
			Usage:       "Reaction name that creates a ticket from a query message",
			Category:    "Slack",
			Value:       slacksvc.DefaultTrackedReaction,
			Sources:     cli.EnvVars("KOTTOS_SLACK_TRIGGER_REACTION"),
			Destination: &x.triggerReaction,
		},
		&cli.StringFlag{
			Name:        "slack-closed-reaction",
			Usage:       "Reaction name marking a closed ticket's query message",
			Category:    "Slack",
			Value:       slacksvc.DefaultClosedReaction,
			Sources:     cli.EnvVars("KOTTOS_SLACK_CLOSED_REACTION"),
			Destination: &x.closedReaction,
		},
		&cli.StringFlag{
			Name:        "slack-escalated-reaction",
			Usage:       "Reaction name marking an escalated ticket's query message",
			Category:    "Slack",
			Value:       slacksvc.DefaultEscalatedReaction,
			Sources:     cli.EnvVars("KOTTOS_SLACK_ESCALATED_REACTION"),
			Destination: &x.escalatedReaction,
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.String("channel-id", x.channelID),
		slog.String("trigger-reaction", x.triggerReaction),
	)
}

// IsConfigured checks whether the bot token is set
func (x *Slack) IsConfigured() bool {
	return x.botToken != ""
}

// IsWebhookConfigured checks whether the webhook signing secret is set
func (x *Slack) IsWebhookConfigured() bool {
	return x.signingSecret != ""
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}

// ChannelID returns the tracked support channel ID
func (x *Slack) ChannelID() string {
	return x.channelID
}

// TriggerReaction returns the ticket-creating reaction name
func (x *Slack) TriggerReaction() string {
	return x.triggerReaction
}

// Configure creates the Slack notifier from the flags
func (x *Slack) Configure() (interfaces.Notifier, error) {
	if x.botToken == "" {
		return nil, goerr.New("slack-bot-token is required")
	}
	if x.channelID == "" {
		return nil, goerr.New("slack-channel-id is required")
	}

	return slacksvc.New(x.botToken,
		slacksvc.WithTrackedReaction(x.triggerReaction),
		slacksvc.WithClosedReaction(x.closedReaction),
		slacksvc.WithEscalatedReaction(x.escalatedReaction),
	)
}
