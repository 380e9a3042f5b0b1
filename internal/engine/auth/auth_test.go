package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/domain"
	"stageline/internal/store"
)

func TestGuard(t *testing.T) {
	st := store.NewState()
	st.PutProject(domain.Project{
		ID:    "p1",
		Users: []domain.User{{ID: "u-alex", Name: "Alex"}, {ID: "u-erin", Name: "Erin"}},
		Teams: []domain.Team{{ID: "team-a", Name: "A", UserIDs: []string{"u-alex"}}},
	})
	flow := domain.Flow{ID: "f1", StageConfig: []domain.StageConfigRecord{{StageKey: "starter", AssignedTeamIDs: []string{"team-a"}}}}
	require.NoError(t, st.AddFlow("p1", flow))
	flow = st.Flows["f1"]

	assert.NoError(t, Guard{}.Check(st, flow, "starter", "Erin"))

	g := Guard{Enforce: true}
	assert.NoError(t, g.Check(st, flow, "starter", "Alex"))
	err := g.Check(st, flow, "starter", "Erin")
	var forbidden ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, "Erin", forbidden.Actor)
	assert.Equal(t, "Erin is not assigned to stage starter", err.Error())
}
