package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/domain/types"
	"github.com/secmon-lab/kottos/pkg/repository/firestore"
	"github.com/secmon-lab/kottos/pkg/repository/memory"
	"github.com/secmon-lab/kottos/pkg/service/crypto"
)

const testChannel = types.ChannelID("C0TEST")

func topLevelRef(ts string) model.MessageRef {
	return model.MessageRef{ChannelID: testChannel, MessageTS: types.MessageTS(ts)}
}

func newTestTicket(ts string, at time.Time) *model.Ticket {
	return model.NewTicket(testChannel, types.MessageTS(ts), at)
}

func runTicketRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("query records are idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		ref := topLevelRef("1000.0001")

		exists, err := repo.Ticket().QueryExists(ctx, ref)
		gt.NoError(t, err).Required()
		gt.Bool(t, exists).False()

		gt.NoError(t, repo.Ticket().CreateQueryIfNotExists(ctx, ref))
		gt.NoError(t, repo.Ticket().CreateQueryIfNotExists(ctx, ref))

		exists, err = repo.Ticket().QueryExists(ctx, ref)
		gt.NoError(t, err).Required()
		gt.Bool(t, exists).True()
	})

	t.Run("query record removal spares records with a ticket", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		bare := topLevelRef("1000.0010")
		gt.NoError(t, repo.Ticket().CreateQueryIfNotExists(ctx, bare))
		gt.NoError(t, repo.Ticket().DeleteQueryIfNoTicket(ctx, bare))
		exists, err := repo.Ticket().QueryExists(ctx, bare)
		gt.NoError(t, err).Required()
		gt.Bool(t, exists).False()

		linked := topLevelRef("1000.0011")
		gt.NoError(t, repo.Ticket().CreateQueryIfNotExists(ctx, linked))
		_, err = repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("1000.0011", base))
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.Ticket().DeleteQueryIfNoTicket(ctx, linked))
		exists, err = repo.Ticket().QueryExists(ctx, linked)
		gt.NoError(t, err).Required()
		gt.Bool(t, exists).True()
	})

	t.Run("ticket creation is a get-or-create", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		ref := topLevelRef("2000.0001")
		gt.NoError(t, repo.Ticket().CreateQueryIfNotExists(ctx, ref))

		created, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("2000.0001", base))
		gt.NoError(t, err).Required()
		gt.Bool(t, created.ID.IsSet()).True()
		gt.Value(t, created.Status).Equal(types.TicketStatusOpened)
		gt.Array(t, created.StatusLog).Length(1)

		// A second create for the same query message returns the existing
		// ticket unchanged.
		again, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("2000.0001", base.Add(time.Hour)))
		gt.NoError(t, err).Required()
		gt.Value(t, again.ID).Equal(created.ID)
		gt.Bool(t, again.CreatedAt.Equal(created.CreatedAt)).True()

		other, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("2000.0002", base))
		gt.NoError(t, err).Required()
		gt.Value(t, other.ID).NotEqual(created.ID)
	})

	t.Run("find returns nil for absent tickets", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		found, err := repo.Ticket().FindTicketByID(ctx, types.TicketID(time.Now().UnixNano()))
		gt.NoError(t, err).Required()
		gt.Value(t, found).Nil()

		found, err = repo.Ticket().FindTicketByQuery(ctx, topLevelRef("9999.9999"))
		gt.NoError(t, err).Required()
		gt.Value(t, found).Nil()
	})

	t.Run("update persists ticket state and status log", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("3000.0001", base))
		gt.NoError(t, err).Required()

		team := types.NewTeam("platform")
		impact := types.ImpactID("service-down")
		created.Team = &team
		created.Impact = &impact
		created.SetTags([]types.TagCode{"billing", "urgent"})
		gt.NoError(t, created.ChangeStatus(types.TicketStatusClosed, base.Add(time.Hour)))

		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, created))

		got, err := repo.Ticket().FindTicketByID(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil().Required()
		gt.Value(t, got.Status).Equal(types.TicketStatusClosed)
		gt.Value(t, got.Team.Code()).Equal("platform")
		gt.Value(t, *got.Impact).Equal(impact)
		gt.Array(t, got.Tags).Length(2)
		gt.Array(t, got.StatusLog).Length(2)
		gt.Value(t, got.StatusLog[len(got.StatusLog)-1].Status).Equal(types.TicketStatusClosed)
		gt.NoError(t, got.Validate())
	})

	t.Run("touch updates only the interaction time", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("3000.0010", base))
		gt.NoError(t, err).Required()

		at := base.Add(2 * time.Hour)
		gt.NoError(t, repo.Ticket().TouchTicketByID(ctx, created.ID, at))

		got, err := repo.Ticket().FindTicketByID(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.LastInteractedAt.Equal(at)).True()
		gt.Value(t, got.Status).Equal(types.TicketStatusOpened)
		gt.Array(t, got.StatusLog).Length(1)
	})

	t.Run("status log entries append", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("3000.0020", base))
		gt.NoError(t, err).Required()

		entry := model.StatusLogEntry{Status: types.TicketStatusStale, Timestamp: base.Add(time.Hour)}
		gt.NoError(t, repo.Ticket().InsertStatusLog(ctx, created.ID, entry))

		got, err := repo.Ticket().FindTicketByID(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, got.StatusLog).Length(2)
		gt.Value(t, got.StatusLog[1].Status).Equal(types.TicketStatusStale)
	})

	t.Run("assignment round-trips and survives updates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("4000.0001", base))
		gt.NoError(t, err).Required()

		user := types.UserID("U123ABC")
		gt.NoError(t, repo.Ticket().Assign(ctx, created.ID, &user))

		got, err := repo.Ticket().FindTicketByID(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.AssignedTo).NotNil().Required()
		gt.Value(t, *got.AssignedTo).Equal(user)

		// A full update that carries no assignee must not clear it.
		got.AssignedTo = nil
		got.SetTags([]types.TagCode{"vpn"})
		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, got))

		got, err = repo.Ticket().FindTicketByID(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.AssignedTo).NotNil().Required()
		gt.Value(t, *got.AssignedTo).Equal(user)

		gt.NoError(t, repo.Ticket().Assign(ctx, created.ID, nil))
		got, err = repo.Ticket().FindTicketByID(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.AssignedTo).Nil()
	})

	t.Run("listing filters by status and orders newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("5000.0001", base))
		gt.NoError(t, err).Required()
		second, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("5000.0002", base.Add(time.Minute)))
		gt.NoError(t, err).Required()

		gt.NoError(t, second.ChangeStatus(types.TicketStatusClosed, base.Add(time.Hour)))
		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, second))

		opened := types.TicketStatusOpened
		listed, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{Status: &opened, Unlimited: true})
		gt.NoError(t, err).Required()
		gt.Array(t, listed).Length(1)
		gt.Value(t, listed[0].ID).Equal(first.ID)

		all, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{Unlimited: true})
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(2)
		gt.Value(t, all[0].ID).Equal(second.ID)
		gt.Value(t, all[1].ID).Equal(first.ID)
	})

	t.Run("tag filter requires the full set", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		tagged, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("5100.0001", base))
		gt.NoError(t, err).Required()
		tagged.SetTags([]types.TagCode{"billing", "urgent"})
		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, tagged))

		partial, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("5100.0002", base.Add(time.Minute)))
		gt.NoError(t, err).Required()
		partial.SetTags([]types.TagCode{"billing"})
		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, partial))

		bare, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("5100.0003", base.Add(2*time.Minute)))
		gt.NoError(t, err).Required()

		both, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{
			Tags:      []types.TagCode{"billing", "urgent"},
			Unlimited: true,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, both).Length(1)
		gt.Value(t, both[0].ID).Equal(tagged.ID)

		withUntagged, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{
			Tags:          []types.TagCode{"billing", "urgent"},
			IncludeNoTags: true,
			Unlimited:     true,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, withUntagged).Length(2)
		gt.Value(t, withUntagged[0].ID).Equal(bare.ID)
		gt.Value(t, withUntagged[1].ID).Equal(tagged.ID)
	})

	t.Run("listing filters by creation window and paginates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		var ids []types.TicketID
		for i := 0; i < 5; i++ {
			created, err := repo.Ticket().CreateTicketIfNotExists(ctx,
				newTestTicket(fmt.Sprintf("6000.%04d", i), base.Add(time.Duration(i)*time.Minute)))
			gt.NoError(t, err).Required()
			ids = append(ids, created.ID)
		}

		after := base.Add(90 * time.Second)
		recent, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{CreatedAfter: &after, Unlimited: true})
		gt.NoError(t, err).Required()
		gt.Array(t, recent).Length(3)

		page0, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{Page: 0, PageSize: 2})
		gt.NoError(t, err).Required()
		gt.Array(t, page0).Length(2)
		gt.Value(t, page0[0].ID).Equal(ids[4])

		page2, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{Page: 2, PageSize: 2})
		gt.NoError(t, err).Required()
		gt.Array(t, page2).Length(1)
		gt.Value(t, page2[0].ID).Equal(ids[0])
	})

	t.Run("stale candidate listings honor status and threshold", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		quiet, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("7000.0001", base))
		gt.NoError(t, err).Required()

		active, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("7000.0002", base))
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Ticket().TouchTicketByID(ctx, active.ID, base.Add(3*time.Hour)))

		stale, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("7000.0003", base))
		gt.NoError(t, err).Required()
		gt.NoError(t, stale.ChangeStatus(types.TicketStatusStale, base.Add(time.Minute)))
		gt.NoError(t, repo.Ticket().UpdateTicket(ctx, stale))

		threshold := base.Add(2 * time.Hour)
		candidates, err := repo.Ticket().ListStaleTicketIDs(ctx, threshold)
		gt.NoError(t, err).Required()
		gt.Array(t, candidates).Length(1)
		gt.Value(t, candidates[0]).Equal(quiet.ID)

		reminders, err := repo.Ticket().ListStaleTicketIDsToRemindOf(ctx, threshold)
		gt.NoError(t, err).Required()
		gt.Array(t, reminders).Length(1)
		gt.Value(t, reminders[0]).Equal(stale.ID)
	})
}

func runAssigneeSearchTest(t *testing.T, newRepo func(t *testing.T, cipher interfaces.AssigneeCipher) interfaces.Repository, cipher interfaces.AssigneeCipher) {
	t.Helper()

	repo := newRepo(t, cipher)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mine, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("8000.0001", base))
	gt.NoError(t, err).Required()
	me := types.UserID("U123ABC")
	gt.NoError(t, repo.Ticket().Assign(ctx, mine.ID, &me))

	theirs, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("8000.0002", base))
	gt.NoError(t, err).Required()
	them := types.UserID("U456DEF")
	gt.NoError(t, repo.Ticket().Assign(ctx, theirs.ID, &them))

	_, err = repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("8000.0003", base))
	gt.NoError(t, err).Required()

	listed, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{
		AssignedToHash: cipher.Hash(me),
		Unlimited:      true,
	})
	gt.NoError(t, err).Required()
	gt.Array(t, listed).Length(1)
	gt.Value(t, listed[0].ID).Equal(mine.ID)
	gt.Value(t, *listed[0].AssignedTo).Equal(me)
}

func TestTicketRepository_Memory(t *testing.T) {
	runTicketRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New(crypto.New(crypto.FormatPlain, ""))
	})
}

func TestTicketRepository_Firestore(t *testing.T) {
	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT_ID not set")
	}

	runTicketRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := firestore.New(context.Background(), projectID, "", crypto.New(crypto.FormatPlain, ""))
		gt.NoError(t, err).Required()
		return repo
	})
}

func TestAssigneeSearch_Memory(t *testing.T) {
	newRepo := func(t *testing.T, cipher interfaces.AssigneeCipher) interfaces.Repository {
		return memory.New(cipher)
	}

	t.Run("plain", func(t *testing.T) {
		runAssigneeSearchTest(t, newRepo, crypto.New(crypto.FormatPlain, ""))
	})
	t.Run("enc_v1", func(t *testing.T) {
		runAssigneeSearchTest(t, newRepo, crypto.New(crypto.FormatEncV1, "test-secret"))
	})
}

func TestEscalationFilter_Memory(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	repo := memory.New(crypto.New(crypto.FormatPlain, ""))

	escalated, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("9000.0001", base))
	gt.NoError(t, err).Required()
	calm, err := repo.Ticket().CreateTicketIfNotExists(ctx, newTestTicket("9000.0002", base))
	gt.NoError(t, err).Required()

	team := types.NewTeam("network")
	repo.AddEscalation(&model.Escalation{
		TicketID: escalated.ID,
		Team:     team,
		Tags:     []types.TagCode{"vpn"},
		OpenedAt: base,
	})

	yes := true
	hot, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{Escalated: &yes, Unlimited: true})
	gt.NoError(t, err).Required()
	gt.Array(t, hot).Length(1)
	gt.Value(t, hot[0].ID).Equal(escalated.ID)

	no := false
	cold, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{Escalated: &no, Unlimited: true})
	gt.NoError(t, err).Required()
	gt.Array(t, cold).Length(1)
	gt.Value(t, cold[0].ID).Equal(calm.ID)

	byTeam, err := repo.Ticket().ListTickets(ctx, model.TicketsQuery{EscalationTeam: &team, Unlimited: true})
	gt.NoError(t, err).Required()
	gt.Array(t, byTeam).Length(1)
	gt.Value(t, byTeam[0].ID).Equal(escalated.ID)

	count, err := repo.Escalation().CountNotResolvedByTicketID(ctx, escalated.ID)
	gt.NoError(t, err).Required()
	gt.Number(t, count).Equal(1)

	repo.ResolveEscalations(escalated.ID, base.Add(time.Hour))
	count, err = repo.Escalation().CountNotResolvedByTicketID(ctx, escalated.ID)
	gt.NoError(t, err).Required()
	gt.Number(t, count).Equal(0)

	records, err := repo.Escalation().ListByTicketID(ctx, escalated.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(1)
	gt.Bool(t, records[0].IsResolved()).True()
}
