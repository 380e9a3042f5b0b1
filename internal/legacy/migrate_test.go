package legacy_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/domain"
	"stageline/internal/legacy"
	"stageline/internal/pipeline"
	"stageline/internal/store"
	"stageline/internal/teams"
)

func legacyState(t *testing.T) *store.State {
	t.Helper()
	st := store.NewState()
	st.PutProject(domain.Project{
		ID:    "legacy-1",
		Name:  "Legacy Project",
		Users: []domain.User{{ID: "user-liz", Name: "Liz"}, {ID: "user-moe", Name: "Moe"}},
		Roles: []domain.LegacyRole{
			{ID: "role-research", Name: "Research Guild", UserIDs: []string{"user-liz"}},
			{ID: "role-build", Name: "Build Guild", UserIDs: []string{"user-moe", "user-moe"}},
			{ID: "role-unused", Name: "Unused"},
		},
		Teams: []domain.Team{},
	})
	require.NoError(t, st.AddFlow("legacy-1", domain.Flow{
		ID: "legacy-flow",
		StageConfig: []domain.StageConfigRecord{
			{StageKey: "starter", AssignedRoleIDs: []string{"role-research"}},
			{StageKey: "builder", RoleID: "role-build"},
		},
	}))
	require.NoError(t, st.AddActivity("legacy-flow", domain.Activity{ID: "legacy-a1", Title: "Old Task", RoleID: "role-research", CreatedAt: 5}))
	require.NoError(t, st.AddActivity("legacy-flow", domain.Activity{ID: "legacy-a2", Title: "Fresh"}))
	return st
}

func assertMigrated(t *testing.T, st *store.State) {
	t.Helper()
	p := st.Projects["legacy-1"]
	assert.Empty(t, p.Roles)
	for _, a := range st.ActivitiesOf("legacy-flow") {
		assert.Empty(t, a.RoleID, "activity %s", a.ID)
	}
	for _, entry := range pipeline.FlowStageConfig(st.Flows["legacy-flow"]) {
		for _, id := range entry.AssignedTeamIDs {
			assert.False(t, strings.HasPrefix(id, "role-"), "stage %s still has %s", entry.StageKey, id)
		}
	}
}

func TestMigrationConvertsRolesToTeams(t *testing.T) {
	st := legacyState(t)
	report := legacy.MigrateRolesToTeams(st, teams.NewRoundRobin())
	require.Len(t, report.Projects, 1)
	rep := report.Projects[0]
	assert.Equal(t, []string{"role-research", "role-build"}, rep.ReferencedRoles)
	assert.Equal(t, []string{"team-research", "team-build"}, rep.TeamsCreated)
	assert.Equal(t, 1, rep.ActivitiesRewritten)
	assert.Equal(t, 3, rep.RolesCleared)
	assert.True(t, rep.Changed())

	p := st.Projects["legacy-1"]
	require.Len(t, p.Teams, 2)
	assert.Equal(t, "Research Guild", p.Teams[0].Name)
	assert.Equal(t, "blue", p.Teams[0].Color)
	assert.Equal(t, []string{"user-moe"}, p.Teams[1].UserIDs)

	flow := st.Flows["legacy-flow"]
	starter, ok := pipeline.ConfigFor(flow, "starter")
	require.True(t, ok)
	assert.Equal(t, []string{"team-research"}, starter.AssignedTeamIDs)
	builder, ok := pipeline.ConfigFor(flow, "builder")
	require.True(t, ok)
	assert.Equal(t, []string{"team-build"}, builder.AssignedTeamIDs)
	for _, rec := range flow.StageConfig {
		assert.Empty(t, rec.AssignedRoleIDs)
		assert.Empty(t, rec.RoleID)
	}

	a := st.Activities["legacy-a1"]
	assert.Equal(t, "team-research", a.TeamID)
	assertMigrated(t, st)
}

func TestMigrationIsIdempotent(t *testing.T) {
	st := legacyState(t)
	legacy.MigrateRolesToTeams(st, teams.NewRoundRobin())
	before := st.Snapshot()

	report := legacy.MigrateRolesToTeams(st, teams.NewRoundRobin())
	assert.False(t, report.Projects[0].Changed())
	assert.Equal(t, before, st.Snapshot())
	assert.Len(t, st.Projects["legacy-1"].Teams, 2)
	assertMigrated(t, st)
}

func TestExistingTeamsAreKept(t *testing.T) {
	st := store.NewState()
	st.PutProject(domain.Project{
		ID:    "p",
		Teams: []domain.Team{{ID: "team-core", Name: "Core"}},
		Roles: []domain.LegacyRole{{ID: "role-old", Name: "Old"}},
	})
	require.NoError(t, st.AddFlow("p", domain.Flow{ID: "f", StageConfig: []domain.StageConfigRecord{
		{StageKey: "starter", AssignedTeamIDs: []string{"role-old", "team-core"}},
	}}))

	rep := legacy.MigrateRolesToTeams(st, teams.NewRoundRobin()).Projects[0]
	assert.Empty(t, rep.ReferencedRoles)
	assert.Empty(t, rep.TeamsCreated)
	assert.Equal(t, 1, rep.FlowsRewritten)
	p := st.Projects["p"]
	require.Len(t, p.Teams, 1)
	assert.Empty(t, p.Roles)
	starter, _ := pipeline.ConfigFor(st.Flows["f"], "starter")
	assert.Equal(t, []string{"team-old", "team-core"}, starter.AssignedTeamIDs)
}

func TestTeamID(t *testing.T) {
	assert.Equal(t, "team-x", legacy.TeamID("role-x"))
	assert.Equal(t, "custom", legacy.TeamID("custom"))
}
