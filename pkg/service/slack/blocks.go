package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

func statusEmoji(status types.TicketStatus) string {
	switch status {
	case types.TicketStatusOpened:
		return ":large_green_circle:"
	case types.TicketStatusStale:
		return ":large_yellow_circle:"
	case types.TicketStatusClosed:
		return ":white_check_mark:"
	default:
		return ":question:"
	}
}

// buildTicketFormBlocks renders the ticket-form message. The form is edited
// in place as the ticket moves through its lifecycle.
func buildTicketFormBlocks(ticket *model.Ticket) []slack.Block {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(
		slack.PlainTextType,
		fmt.Sprintf("Ticket #%s", ticket.ID),
		false, false,
	))

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Status*\n%s %s", statusEmoji(ticket.Status), ticket.Status), false, false),
	}

	if ticket.Team != nil {
		var label string
		if ticket.Team.IsKnown() {
			label = ticket.Team.Code()
		} else {
			label = "_unknown team_"
		}
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Team*\n%s", label), false, false))
	}

	if len(ticket.Tags) > 0 {
		tags := make([]string, 0, len(ticket.Tags))
		for _, tag := range ticket.Tags {
			tags = append(tags, "`"+tag.String()+"`")
		}
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Tags*\n%s", strings.Join(tags, " ")), false, false))
	}

	if ticket.Impact != nil {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Impact*\n%s", ticket.Impact), false, false))
	}

	if ticket.AssignedTo != nil {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Assignee*\n<@%s>", ticket.AssignedTo), false, false))
	}

	return []slack.Block{
		header,
		slack.NewSectionBlock(nil, fields, nil),
	}
}

func ticketFormFallback(ticket *model.Ticket) string {
	return fmt.Sprintf("Ticket #%s (%s)", ticket.ID, ticket.Status)
}
