package access_test

import (
	"testing"

	"stageline/internal/access"
	"stageline/internal/domain"
	"stageline/internal/pipeline"
	"stageline/internal/store"
)

func newState(t *testing.T, cfg []domain.StageConfigRecord) (*store.State, domain.Flow) {
	t.Helper()
	st := store.NewState()
	st.PutProject(domain.Project{
		ID: "project-1",
		Users: []domain.User{
			{ID: "user-alex", Name: "Alex"},
			{ID: "user-dan", Name: "Dan"},
			{ID: "user-erin", Name: "Erin"},
		},
		Teams: []domain.Team{
			{ID: "team-alpha", Name: "Alpha Squad", UserIDs: []string{"user-alex"}},
			{ID: "team-bravo", Name: "Bravo Ops", UserIDs: []string{"user-dan"}},
		},
	})
	if err := st.AddFlow("project-1", domain.Flow{ID: "flow-1", StageConfig: cfg}); err != nil {
		t.Fatalf("add flow: %v", err)
	}
	return st, st.Flows["flow-1"]
}

func TestTeamMembershipGrantsAccess(t *testing.T) {
	st, flow := newState(t, []domain.StageConfigRecord{
		{StageKey: "starter", AssignedTeamIDs: []string{"team-alpha"}},
	})
	if !access.CanUserWorkOnStage(st, flow, "starter", "Alex") {
		t.Fatalf("Alex should have access through team-alpha")
	}
	if access.CanUserWorkOnStage(st, flow, "starter", "Erin") {
		t.Fatalf("Erin is in no team and should be denied")
	}
	if access.CanUserWorkOnStage(st, flow, "starter", "Dan") {
		t.Fatalf("Dan's team is not assigned to starter")
	}
}

func TestDirectUserAssignment(t *testing.T) {
	st, flow := newState(t, []domain.StageConfigRecord{
		{StageKey: "builder", UserIDs: []string{"user-erin"}, ExcludedUserIDs: []string{"user-erin"}},
	})
	if !access.CanUserWorkOnStage(st, flow, "builder", "Erin") {
		t.Fatalf("direct assignment should grant access even when opted out")
	}
}

func TestStageResolvedThroughIdentity(t *testing.T) {
	st := store.NewState()
	st.PutProject(domain.Project{
		ID:    "p",
		Users: []domain.User{{ID: "u", Name: "Uma"}},
		Teams: []domain.Team{{ID: "t", UserIDs: []string{"u"}}},
	})
	flow := domain.Flow{
		ID:          "f",
		Stages:      pipeline.DefaultStages(9),
		StageConfig: []domain.StageConfigRecord{{StageKey: "reviewer", AssignedTeamIDs: []string{"t"}}},
	}
	if err := st.AddFlow("p", flow); err != nil {
		t.Fatal(err)
	}
	if !access.CanUserWorkOnStage(st, flow, "stage-9-3", "Uma") {
		t.Fatalf("stage id should resolve to the reviewer key")
	}
	teams := access.StageTeams(st, flow, "stage-9-3")
	if len(teams) != 1 || teams[0].ID != "t" {
		t.Fatalf("unexpected stage teams: %+v", teams)
	}
}

func TestUnresolvableInputsDenyAccess(t *testing.T) {
	st, flow := newState(t, []domain.StageConfigRecord{
		{StageKey: "starter", AssignedTeamIDs: []string{"team-alpha", "team-ghost"}},
	})
	cases := []struct {
		name  string
		flow  domain.Flow
		stage string
		user  string
	}{
		{"unknown user", flow, "starter", "Zed"},
		{"empty stage", flow, "", "Alex"},
		{"unknown stage", flow, "nowhere", "Alex"},
		{"orphan flow", domain.Flow{ID: "orphan"}, "starter", "Alex"},
	}
	for _, tc := range cases {
		if access.CanUserWorkOnStage(st, tc.flow, tc.stage, tc.user) {
			t.Errorf("%s: expected no access", tc.name)
		}
	}
	teams := access.StageTeams(st, flow, "starter")
	if len(teams) != 1 || teams[0].Name != "Alpha Squad" {
		t.Fatalf("dangling team ids should be dropped: %+v", teams)
	}
}

func TestConfigForAbsentStageGrantsNothing(t *testing.T) {
	st := store.NewState()
	st.PutProject(domain.Project{
		ID:    "project-1",
		Users: []domain.User{{ID: "user-alex", Name: "Alex"}},
		Teams: []domain.Team{{ID: "team-alpha", Name: "Alpha Squad", UserIDs: []string{"user-alex"}}},
	})
	flow := domain.Flow{
		ID:     "custom",
		Stages: []domain.Stage{{ID: "s1", Key: "intake", Name: "Intake"}},
		StageConfig: []domain.StageConfigRecord{
			{StageKey: "starter", AssignedTeamIDs: []string{"team-alpha"}},
			{StageKey: "intake", AssignedUserIDs: []string{"user-alex"}},
		},
	}
	if err := st.AddFlow("project-1", flow); err != nil {
		t.Fatalf("add flow: %v", err)
	}
	if access.CanUserWorkOnStage(st, flow, "starter", "Alex") {
		t.Fatalf("starter is not a stage of the custom flow")
	}
	if teams := access.StageTeams(st, flow, "starter"); len(teams) != 0 {
		t.Fatalf("absent stage should list no teams: %+v", teams)
	}
	if !access.CanUserWorkOnStage(st, flow, "s1", "Alex") {
		t.Fatalf("s1 resolves to the intake entry")
	}
}

func TestOptedOutTeamMemberKeepsAccess(t *testing.T) {
	st, flow := newState(t, []domain.StageConfigRecord{
		{StageKey: "starter", AssignedTeamIDs: []string{"team-alpha"}, OptedOutUserIDs: []string{"user-alex"}},
	})
	if !access.CanUserWorkOnStage(st, flow, "starter", "Alex") {
		t.Fatalf("opted-out users are not consulted; team membership still grants access")
	}
}
