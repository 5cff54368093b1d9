package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

func TestMessageRef(t *testing.T) {
	t.Run("top-level message is its own query", func(t *testing.T) {
		ref := model.MessageRef{ChannelID: "C01", MessageTS: "100.1"}
		gt.Bool(t, ref.IsThreadReply()).False()
		gt.Value(t, ref.QueryRef().MessageTS).Equal(types.MessageTS("100.1"))
	})

	t.Run("thread reply resolves to the thread root", func(t *testing.T) {
		ref := model.MessageRef{ChannelID: "C01", ThreadTS: "100.1", MessageTS: "100.2"}
		gt.Bool(t, ref.IsThreadReply()).True()
		gt.Value(t, ref.QueryRef().MessageTS).Equal(types.MessageTS("100.1"))
	})

	t.Run("broadcast of the root is not a reply", func(t *testing.T) {
		ref := model.MessageRef{ChannelID: "C01", ThreadTS: "100.1", MessageTS: "100.1"}
		gt.Bool(t, ref.IsThreadReply()).False()
	})
}

func TestTicketLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("new ticket starts opened with one log entry", func(t *testing.T) {
		ticket := model.NewTicket("C01", "100.1", now)
		gt.Value(t, ticket.Status).Equal(types.TicketStatusOpened)
		gt.Array(t, ticket.StatusLog).Length(1)
		gt.NoError(t, ticket.Validate())

		_, ok := ticket.FormRef()
		gt.Bool(t, ok).False()
	})

	t.Run("ID assignment happens exactly once", func(t *testing.T) {
		ticket := model.NewTicket("C01", "100.1", now)
		gt.NoError(t, ticket.SetID(7))
		gt.Error(t, ticket.SetID(8))
		gt.Value(t, ticket.ID).Equal(types.TicketID(7))
	})

	t.Run("status change keeps the log in sync", func(t *testing.T) {
		ticket := model.NewTicket("C01", "100.1", now)
		gt.NoError(t, ticket.ChangeStatus(types.TicketStatusStale, now.Add(time.Hour)))
		gt.NoError(t, ticket.ChangeStatus(types.TicketStatusOpened, now.Add(2*time.Hour)))
		gt.Array(t, ticket.StatusLog).Length(3)
		gt.NoError(t, ticket.Validate())

		gt.Error(t, ticket.ChangeStatus(types.TicketStatus("BOGUS"), now))
	})

	t.Run("detects a desynchronized status log", func(t *testing.T) {
		ticket := model.NewTicket("C01", "100.1", now)
		ticket.Status = types.TicketStatusClosed
		gt.Error(t, ticket.Validate())
	})

	t.Run("tags collapse duplicates", func(t *testing.T) {
		ticket := model.NewTicket("C01", "100.1", now)
		ticket.SetTags([]types.TagCode{"vpn", "billing", "vpn"})
		gt.Array(t, ticket.Tags).Length(2)
		gt.Bool(t, ticket.HasTag("vpn")).True()
		gt.Bool(t, ticket.HasTag("urgent")).False()
	})

	t.Run("clone is deep", func(t *testing.T) {
		team := types.NewTeam("network")
		ticket := model.NewTicket("C01", "100.1", now)
		ticket.Team = &team
		ticket.SetTags([]types.TagCode{"vpn"})

		clone := ticket.Clone()
		clone.SetTags([]types.TagCode{"billing"})
		other := types.NewTeam("platform")
		clone.Team = &other

		gt.Value(t, ticket.Tags[0]).Equal(types.TagCode("vpn"))
		gt.Value(t, ticket.Team.Code()).Equal("network")
	})
}

func TestTicketsQueryMatching(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	newTicket := func(mutate func(*model.Ticket)) *model.Ticket {
		ticket := model.NewTicket("C01", "100.1", now)
		if mutate != nil {
			mutate(ticket)
		}
		return ticket
	}

	identityHash := func(u types.UserID) string { return "h:" + u.String() }

	t.Run("zero query matches everything", func(t *testing.T) {
		gt.Bool(t, model.TicketsQuery{}.MatchesTicket(newTicket(nil), nil)).True()
	})

	t.Run("tag filter is a full-set match", func(t *testing.T) {
		ticket := newTicket(func(x *model.Ticket) {
			x.SetTags([]types.TagCode{"vpn", "billing"})
		})

		gt.Bool(t, model.TicketsQuery{Tags: []types.TagCode{"vpn"}}.MatchesTicket(ticket, nil)).True()
		gt.Bool(t, model.TicketsQuery{Tags: []types.TagCode{"vpn", "billing"}}.MatchesTicket(ticket, nil)).True()
		gt.Bool(t, model.TicketsQuery{Tags: []types.TagCode{"vpn", "urgent"}}.MatchesTicket(ticket, nil)).False()
	})

	t.Run("include-no-tags widens the tag filter", func(t *testing.T) {
		bare := newTicket(nil)
		query := model.TicketsQuery{Tags: []types.TagCode{"vpn"}, IncludeNoTags: true}

		gt.Bool(t, query.MatchesTicket(bare, nil)).True()

		tagged := newTicket(func(x *model.Ticket) {
			x.SetTags([]types.TagCode{"billing"})
		})
		gt.Bool(t, query.MatchesTicket(tagged, nil)).False()
	})

	t.Run("creation window bounds are half-open", func(t *testing.T) {
		ticket := newTicket(nil)

		after := now.Add(-time.Hour)
		before := now.Add(time.Hour)
		gt.Bool(t, model.TicketsQuery{CreatedAfter: &after, CreatedBefore: &before}.MatchesTicket(ticket, nil)).True()

		edge := now
		gt.Bool(t, model.TicketsQuery{CreatedAfter: &edge}.MatchesTicket(ticket, nil)).True()
		gt.Bool(t, model.TicketsQuery{CreatedBefore: &edge}.MatchesTicket(ticket, nil)).False()
	})

	t.Run("assignee filter compares hashes", func(t *testing.T) {
		user := types.UserID("U42")
		assigned := newTicket(func(x *model.Ticket) {
			x.AssignedTo = &user
		})

		gt.Bool(t, model.TicketsQuery{AssignedToHash: "h:U42"}.MatchesTicket(assigned, identityHash)).True()
		gt.Bool(t, model.TicketsQuery{AssignedToHash: "h:U99"}.MatchesTicket(assigned, identityHash)).False()
		gt.Bool(t, model.TicketsQuery{AssignedToHash: "h:U42"}.MatchesTicket(newTicket(nil), identityHash)).False()
	})

	t.Run("escalation filters", func(t *testing.T) {
		team := types.NewTeam("network")
		open := []*model.Escalation{{TicketID: 1, Team: team, OpenedAt: now}}
		resolvedAt := now.Add(time.Hour)
		resolved := []*model.Escalation{{TicketID: 1, Team: team, OpenedAt: now, ResolvedAt: &resolvedAt}}

		yes := true
		gt.Bool(t, model.TicketsQuery{Escalated: &yes}.MatchesEscalations(open)).True()
		gt.Bool(t, model.TicketsQuery{Escalated: &yes}.MatchesEscalations(resolved)).False()
		gt.Bool(t, model.TicketsQuery{Escalated: &yes}.MatchesEscalations(nil)).False()

		no := false
		gt.Bool(t, model.TicketsQuery{Escalated: &no}.MatchesEscalations(resolved)).True()

		gt.Bool(t, model.TicketsQuery{EscalationTeam: &team}.MatchesEscalations(open)).True()
		other := types.NewTeam("platform")
		gt.Bool(t, model.TicketsQuery{EscalationTeam: &other}.MatchesEscalations(open)).False()
	})

	t.Run("pagination math", func(t *testing.T) {
		gt.Number(t, model.TicketsQuery{}.Limit()).Equal(model.DefaultPageSize)
		gt.Number(t, model.TicketsQuery{PageSize: 5}.Limit()).Equal(5)
		gt.Number(t, model.TicketsQuery{Unlimited: true, PageSize: 5}.Limit()).Equal(0)
		gt.Number(t, model.TicketsQuery{Page: 3, PageSize: 5}.Offset()).Equal(15)
		gt.Number(t, model.TicketsQuery{Unlimited: true, Page: 3}.Offset()).Equal(0)
	})
}
