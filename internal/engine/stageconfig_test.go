package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/engine/auth"
	"stageline/internal/events"
	"stageline/internal/pipeline"
	"stageline/internal/store"
	"stageline/internal/teams"
)

func TestAssignmentAndAccessScenario(t *testing.T) {
	env := newTestEnv(t)
	alpha, err := env.Engine.CreateTeam(env.Ctx, projectID, "Alpha Squad", []string{"user-alex", "user-beth"}, "tester")
	require.NoError(t, err)
	bravo, err := env.Engine.CreateTeam(env.Ctx, projectID, "Bravo Ops", []string{"user-dan"}, "tester")
	require.NoError(t, err)
	assert.Equal(t, "blue", alpha.Color)
	assert.Equal(t, "green", bravo.Color)

	entry, found, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, flowID, "starter", engine.StageAssignment{
		AssignedTeamIDs: []string{alpha.ID, alpha.ID},
	}, "tester")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{alpha.ID}, entry.AssignedTeamIDs)

	a := env.create(t, "")
	can := func(user string) bool {
		ok, err := env.Engine.CanUserWorkOnStage(projectID, flowID, a.CurrentStageID, user)
		require.NoError(t, err)
		return ok
	}
	assert.True(t, can("Alex"))
	assert.False(t, can("Erin"))
	assert.False(t, can("Dan"))

	_, _, err = env.Engine.AssignTeamsToStage(env.Ctx, projectID, flowID, "starter", engine.StageAssignment{
		AssignedTeamIDs: []string{alpha.ID, bravo.ID},
	}, "tester")
	require.NoError(t, err)
	assert.True(t, can("Dan"))

	stageTeams, err := env.Engine.StageTeams(projectID, flowID, "starter")
	require.NoError(t, err)
	require.Len(t, stageTeams, 2)
	assert.Equal(t, "Bravo Ops", stageTeams[1].Name)

	_, err = env.Engine.CanUserWorkOnStage(projectID, "ghost", "starter", "Alex")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssignmentClearsOmittedUsers(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, flowID, "builder", engine.StageAssignment{
		AssignedUserIDs: []string{"user-erin"},
	}, "tester")
	require.NoError(t, err)
	ok, err := env.Engine.CanUserWorkOnStage(projectID, flowID, "builder", "Erin")
	require.NoError(t, err)
	assert.True(t, ok)

	entry, _, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, flowID, "builder", engine.StageAssignment{
		AssignedTeamIDs: []string{"team-x"},
	}, "tester")
	require.NoError(t, err)
	assert.Equal(t, []string{}, entry.AssignedUserIDs)
	ok, err = env.Engine.CanUserWorkOnStage(projectID, flowID, "builder", "Erin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignmentResolvesStageIdentity(t *testing.T) {
	env := newTestEnv(t)
	flow, err := env.Engine.CreateFlow(env.Ctx, engine.FlowCreateOptions{ProjectID: projectID, ID: "flow-2", Name: "Custom ids"})
	require.NoError(t, err)
	require.Len(t, flow.Stages, 9)
	reviewer := flow.Stages[3].ID

	entry, found, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, "flow-2", reviewer, engine.StageAssignment{
		AssignedTeamIDs: []string{"team-q"},
	}, "tester")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "reviewer", entry.StageKey)

	cfg, err := env.Engine.StageConfig(projectID, "flow-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"team-q"}, cfg[3].AssignedTeamIDs)

	_, found, err = env.Engine.AssignTeamsToStage(env.Ctx, projectID, "flow-2", "not-a-stage", engine.StageAssignment{}, "tester")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = env.Engine.AssignTeamsToStage(env.Ctx, "ghost", "flow-2", reviewer, engine.StageAssignment{}, "tester")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssignmentIgnoresStagesMissingFromFlow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateFlow(env.Ctx, engine.FlowCreateOptions{
		ProjectID: projectID,
		ID:        "flow-custom",
		Stages:    []domain.Stage{{ID: "s1", Key: "intake", Name: "Intake"}},
	})
	require.NoError(t, err)

	_, found, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, "flow-custom", "starter", engine.StageAssignment{
		AssignedTeamIDs: []string{"team-q"},
	}, "tester")
	require.NoError(t, err)
	assert.False(t, found)
	starter, ok := pipeline.ConfigFor(env.Engine.State.Flows["flow-custom"], "starter")
	require.True(t, ok)
	assert.Empty(t, starter.AssignedTeamIDs)
}

func TestAssignmentRewritesLegacyConfig(t *testing.T) {
	env := newTestEnv(t)
	f := env.Engine.State.Flows[flowID]
	f.StageConfig = []domain.StageConfigRecord{{OperatorKey: "builder", RoleIDs: []string{"team-a"}, ExcludedUserIDs: []string{"u1"}}}
	env.Engine.State.PutFlow(f)

	_, _, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, flowID, "starter", engine.StageAssignment{AssignedTeamIDs: []string{"team-s"}}, "tester")
	require.NoError(t, err)

	stored := env.Engine.State.Flows[flowID].StageConfig
	require.Len(t, stored, 9)
	for _, rec := range stored {
		assert.NotEmpty(t, rec.StageKey)
		assert.Empty(t, rec.RoleIDs)
		assert.Empty(t, rec.ExcludedUserIDs)
	}
	builder, ok := pipeline.ConfigFor(env.Engine.State.Flows[flowID], "builder")
	require.True(t, ok)
	assert.Equal(t, []string{"team-a"}, builder.AssignedTeamIDs)
	assert.Equal(t, []string{"u1"}, builder.OptedOutUserIDs)
}

func TestTeamDeletionCascadesAcrossFlows(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateFlow(env.Ctx, engine.FlowCreateOptions{ProjectID: projectID, ID: "flow-2"})
	require.NoError(t, err)
	beta, err := env.Engine.CreateTeam(env.Ctx, projectID, "Beta Crew", []string{"user-dan"}, "tester")
	require.NoError(t, err)
	for _, fid := range []string{flowID, "flow-2"} {
		for _, stage := range []string{"starter", "maintainer"} {
			_, _, err := env.Engine.AssignTeamsToStage(env.Ctx, projectID, fid, stage, engine.StageAssignment{AssignedTeamIDs: []string{beta.ID, "team-keep"}}, "tester")
			require.NoError(t, err)
		}
	}

	deleted, err := env.Engine.DeleteTeam(env.Ctx, projectID, beta.ID, "tester")
	require.NoError(t, err)
	require.True(t, deleted)
	for _, f := range env.Engine.State.FlowsOf(projectID) {
		for _, entry := range pipeline.FlowStageConfig(f) {
			assert.NotContains(t, entry.AssignedTeamIDs, beta.ID)
		}
	}
	starter, _ := pipeline.ConfigFor(env.Engine.State.Flows["flow-2"], "starter")
	assert.Equal(t, []string{"team-keep"}, starter.AssignedTeamIDs)
	assert.Contains(t, env.Recorder.Types(), events.TeamDeleted)

	deleted, err = env.Engine.DeleteTeam(env.Ctx, "ghost", beta.ID, "tester")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpdateTeamThroughEngine(t *testing.T) {
	env := newTestEnv(t)
	team, err := env.Engine.CreateTeam(env.Ctx, projectID, "Alpha", []string{"user-alex"}, "tester")
	require.NoError(t, err)
	updated, ok, err := env.Engine.UpdateTeam(env.Ctx, projectID, team.ID, teams.TeamUpdate{UserIDs: []string{"user-alex", "user-beth"}}, "tester")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"user-alex", "user-beth"}, updated.UserIDs)

	_, ok, err = env.Engine.UpdateTeam(env.Ctx, projectID, "missing", teams.TeamUpdate{}, "tester")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = env.Engine.CreateTeam(env.Ctx, "ghost", "x", nil, "tester")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMigrateLegacyRolesEmitsOncePerChangedProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.Engine.State.Projects[projectID]
	p.Roles = []domain.LegacyRole{{ID: "role-ops", Name: "Ops", UserIDs: []string{"user-erin"}}}
	env.Engine.State.PutProject(p)
	require.NoError(t, env.Engine.State.AddActivity(flowID, domain.Activity{ID: "old", Title: "Old", RoleID: "role-ops", CurrentStageID: "starter"}))

	report, err := env.Engine.MigrateLegacyRoles(env.Ctx, "tester")
	require.NoError(t, err)
	require.Len(t, report.Projects, 1)
	assert.Equal(t, []string{"team-ops"}, report.Projects[0].TeamsCreated)
	assert.Equal(t, "team-ops", env.Engine.State.Activities["old"].TeamID)

	_, err = env.Engine.MigrateLegacyRoles(env.Ctx, "tester")
	require.NoError(t, err)
	count := 0
	for _, typ := range env.Recorder.Types() {
		if typ == events.LegacyMigrated {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCreateFlowDefaults(t *testing.T) {
	env := newTestEnv(t)
	flow, err := env.Engine.CreateFlow(env.Ctx, engine.FlowCreateOptions{ProjectID: projectID, Name: "Auto"})
	require.NoError(t, err)
	assert.Len(t, flow.StageConfig, 9)
	assert.Equal(t, projectID, flow.ProjectID)
	ordered, err := env.Engine.OrderedStages(projectID, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.Stages[0].ID, ordered[0].UID)

	_, err = env.Engine.CreateFlow(env.Ctx, engine.FlowCreateOptions{ProjectID: "ghost"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: projectID})
	assert.Error(t, err)
	_, err = env.Engine.AddUser(env.Ctx, projectID, domain.User{ID: "user-alex", Name: "Alex"}, "tester")
	assert.Error(t, err)
}

func TestEnforcedStageAccessGatesClaimAndComplete(t *testing.T) {
	env := newTestEnv(t)
	team, err := env.Engine.CreateTeam(env.Ctx, projectID, "Alpha", []string{"user-alex"}, "tester")
	require.NoError(t, err)
	_, _, err = env.Engine.AssignTeamsToStage(env.Ctx, projectID, flowID, "starter", engine.StageAssignment{AssignedTeamIDs: []string{team.ID}}, "tester")
	require.NoError(t, err)
	a := env.create(t, "")
	env.Engine.Access = auth.Guard{Enforce: true}

	ok, err := env.Engine.ClaimActivity(env.Ctx, projectID, flowID, a.ID, "", "Erin")
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.False(t, ok)
	assert.Empty(t, env.activity(a.ID).StageHistory[0].ClaimedBy)

	_, err = env.Engine.CompleteActivity(env.Ctx, projectID, flowID, a.ID, engine.CompleteOptions{}, "Erin")
	require.ErrorAs(t, err, &forbidden)

	ok, err = env.Engine.ClaimActivity(env.Ctx, projectID, flowID, a.ID, "", "Alex")
	require.NoError(t, err)
	assert.True(t, ok)
	next, err := env.Engine.CompleteActivity(env.Ctx, projectID, flowID, a.ID, engine.CompleteOptions{}, "Alex")
	require.NoError(t, err)
	assert.Equal(t, "builder", next)
}
