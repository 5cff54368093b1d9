package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/secmon-lab/kottos/pkg/domain/types"
)

func TestTeam(t *testing.T) {
	t.Run("known team carries its code", func(t *testing.T) {
		team := types.NewTeam("network")
		gt.Bool(t, team.IsKnown()).True()
		gt.Value(t, team.Code()).Equal("network")
		gt.Value(t, team.Label()).Equal("network")
	})

	t.Run("unknown team has no code", func(t *testing.T) {
		team := types.UnknownTeam()
		gt.Bool(t, team.IsKnown()).False()
		gt.Value(t, team.Code()).Equal("")
		gt.Value(t, team.Label()).Equal("unknown")
	})

	t.Run("equality distinguishes the variants", func(t *testing.T) {
		gt.Bool(t, types.NewTeam("network").Equal(types.NewTeam("network"))).True()
		gt.Bool(t, types.NewTeam("network").Equal(types.NewTeam("platform"))).False()
		gt.Bool(t, types.UnknownTeam().Equal(types.UnknownTeam())).True()
		gt.Bool(t, types.NewTeam("").Equal(types.UnknownTeam())).False()
	})
}

func TestParseTicketStatus(t *testing.T) {
	for _, status := range types.AllTicketStatuses() {
		parsed, err := types.ParseTicketStatus(status.String())
		gt.NoError(t, err)
		gt.Value(t, parsed).Equal(status)
	}

	_, err := types.ParseTicketStatus("opened")
	gt.Error(t, err)

	_, err = types.ParseTicketStatus("")
	gt.Error(t, err)
}

func TestImpactID(t *testing.T) {
	gt.NoError(t, types.ImpactID("service-down").Validate())
	gt.NoError(t, types.ImpactID("degraded").Validate())
	gt.Error(t, types.ImpactID("").Validate())
	gt.Error(t, types.ImpactID("Service-Down").Validate())
	gt.Error(t, types.ImpactID("-leading").Validate())
	gt.Error(t, types.ImpactID("trailing-").Validate())
}
