package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/domain"
	"stageline/internal/pipeline"
)

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

func uids(stages []pipeline.ResolvedStage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, s.UID)
	}
	return out
}

func TestOrderedStagesFallsBackToTemplate(t *testing.T) {
	ordered := pipeline.OrderedStages(domain.Flow{ID: "f"})
	require.Len(t, ordered, 9)
	assert.Equal(t, []string{
		"starter", "builder", "compiler",
		"reviewer", "approver", "documenter",
		"integrator", "maintainer", "evolver",
	}, uids(ordered))
	assert.Equal(t, domain.TierEvaluation, ordered[3].Tier)
	assert.True(t, ordered[4].SupportsRevision)
	assert.Equal(t, 14, ordered[1].ExpectedDurationDays)
	assert.Equal(t, "Goal, owner, and success criteria are clear.", ordered[0].Conditions)
	require.NotNil(t, ordered[0].Config)
	assert.True(t, ordered[0].Config.Active)
}

func TestOrderedStagesIsDeterministicAndStable(t *testing.T) {
	flow := domain.Flow{
		ID: "f",
		Stages: []domain.Stage{
			{ID: "late", Name: "Late", Order: intPtr(5)},
			{ID: "tie-a", Name: "Tie A", Order: intPtr(1)},
			{Key: "keyed", Name: "Keyed"},
			{Name: "Named Only", Order: intPtr(1)},
		},
	}
	first := pipeline.OrderedStages(flow)
	second := pipeline.OrderedStages(flow)
	assert.Equal(t, uids(first), uids(second))
	// Missing order defaults to the positional index (2 for "keyed").
	assert.Equal(t, []string{"tie-a", "Named Only", "keyed", "late"}, uids(first))
	assert.Equal(t, "keyed", first[2].OperatorKey)
	assert.Equal(t, domain.TierGenesis, first[2].Tier)
}

func TestSkippedCombinesStageFlagAndConfig(t *testing.T) {
	flow := domain.Flow{
		ID:     "f",
		Stages: pipeline.DefaultStages(100),
		StageConfig: []domain.StageConfigRecord{
			{StageKey: "builder", Active: boolPtr(false)},
		},
	}
	flow.Stages[2].Skipped = true
	ordered := pipeline.OrderedStages(flow)
	assert.False(t, ordered[0].Skipped)
	assert.True(t, ordered[1].Skipped)
	assert.True(t, ordered[2].Skipped)

	next, ok := pipeline.NextStageID(ordered, ordered[0].UID, nil)
	require.True(t, ok)
	assert.Equal(t, "stage-100-3", next)
}

func TestFirstActiveStage(t *testing.T) {
	_, ok := pipeline.FirstActiveStage(nil)
	assert.False(t, ok)

	flow := domain.Flow{
		Stages: []domain.Stage{
			{ID: "a", Name: "A", Skipped: true},
			{ID: "b", Name: "B"},
		},
	}
	first, ok := pipeline.FirstActiveStage(pipeline.OrderedStages(flow))
	require.True(t, ok)
	assert.Equal(t, "b", first.UID)

	flow.Stages[1].Skipped = true
	first, ok = pipeline.FirstActiveStage(pipeline.OrderedStages(flow))
	require.True(t, ok)
	assert.Equal(t, "a", first.UID)
}

func TestNextStageIDHonorsSkippedSet(t *testing.T) {
	ordered := pipeline.OrderedStages(domain.Flow{})
	next, ok := pipeline.NextStageID(ordered, "starter", []string{"builder", "compiler"})
	require.True(t, ok)
	assert.Equal(t, "reviewer", next)

	_, ok = pipeline.NextStageID(ordered, "evolver", nil)
	assert.False(t, ok)
	_, ok = pipeline.NextStageID(ordered, "missing", nil)
	assert.False(t, ok)
	_, ok = pipeline.NextStageID(ordered, "", nil)
	assert.False(t, ok)
}

func TestSkippedStageNeverReturnedAgain(t *testing.T) {
	ordered := pipeline.OrderedStages(domain.Flow{Stages: pipeline.DefaultStages(7)})
	skipped := []string{ordered[1].UID}
	for _, s := range ordered {
		next, ok := pipeline.NextStageID(ordered, s.UID, skipped)
		if ok {
			assert.NotEqual(t, ordered[1].UID, next)
		}
	}
}

func TestFindStageMatchesIdentityAndKeys(t *testing.T) {
	ordered := pipeline.OrderedStages(domain.Flow{Stages: pipeline.DefaultStages(42)})
	byID, ok := pipeline.FindStage(ordered, "stage-42-3")
	require.True(t, ok)
	byKey, ok := pipeline.FindStage(ordered, "reviewer")
	require.True(t, ok)
	assert.Equal(t, byID.UID, byKey.UID)
	assert.Equal(t, "reviewer", pipeline.StageKey(byID))
	_, ok = pipeline.FindStage(ordered, "unknown")
	assert.False(t, ok)

	_, ok = pipeline.StageByUID(ordered, "reviewer")
	assert.False(t, ok)
}

func TestNormalizeStageConfigFoldsLegacyNames(t *testing.T) {
	entry, ok := pipeline.NormalizeStageConfig(domain.StageConfigRecord{
		OperatorKey:     "reviewer",
		AssignedTeamIDs: []string{"team-a", ""},
		AssignedRoleIDs: []string{"role-b", "team-a"},
		RoleIDs:         []string{"role-c"},
		RoleID:          "role-b",
		UserIDs:         []string{"u1", "u1"},
		ExcludedUserIDs: []string{"u9"},
	})
	require.True(t, ok)
	assert.Equal(t, "reviewer", entry.StageKey)
	assert.True(t, entry.Active)
	assert.Equal(t, []string{"team-a", "role-b", "role-c"}, entry.AssignedTeamIDs)
	assert.Equal(t, []string{"u1"}, entry.AssignedUserIDs)
	assert.Equal(t, []string{"u9"}, entry.OptedOutUserIDs)

	_, ok = pipeline.NormalizeStageConfig(domain.StageConfigRecord{AssignedTeamIDs: []string{"x"}})
	assert.False(t, ok)
}

func TestFlowStageConfigCanonicalOrder(t *testing.T) {
	flow := domain.Flow{StageConfig: []domain.StageConfigRecord{
		{StageKey: "custom", AssignedTeamIDs: []string{"t1"}},
		{StageKey: "builder", AssignedTeamIDs: []string{"old"}},
		{ID: "builder", AssignedTeamIDs: []string{"new"}, Active: boolPtr(false)},
		{StageKey: "custom", AssignedTeamIDs: []string{"t2"}},
	}}
	entries := pipeline.FlowStageConfig(flow)
	require.Len(t, entries, 10)
	assert.Equal(t, "starter", entries[0].StageKey)
	assert.Equal(t, []string{}, entries[0].AssignedTeamIDs)
	assert.Equal(t, []string{"new"}, entries[1].AssignedTeamIDs)
	assert.False(t, entries[1].Active)
	assert.Equal(t, "custom", entries[9].StageKey)
	assert.Equal(t, []string{"t1"}, entries[9].AssignedTeamIDs)
}

func TestDefaultStagesAndConfig(t *testing.T) {
	stages := pipeline.DefaultStages(55)
	require.Len(t, stages, 9)
	assert.Equal(t, "stage-55-0", stages[0].ID)
	assert.Equal(t, "starter", stages[0].OperatorKey)
	assert.Equal(t, 3, stages[4].ExpectedDurationDays)

	cfg := pipeline.DefaultStageConfig()
	require.Len(t, cfg, 9)
	for i, rec := range cfg {
		require.NotNil(t, rec.Active)
		assert.True(t, *rec.Active)
		assert.Equal(t, pipeline.Template()[i].Key, rec.StageKey)
	}
}

func TestActivityStageIDFallbacks(t *testing.T) {
	ordered := pipeline.OrderedStages(domain.Flow{})
	assert.Equal(t, "builder", pipeline.ActivityStageID(domain.Activity{CurrentStageID: "builder"}, ordered))
	assert.Equal(t, "legacy", pipeline.ActivityStageID(domain.Activity{LegacyStageID: "legacy"}, ordered))
	assert.Equal(t, "compiler", pipeline.ActivityStageID(domain.Activity{
		StageHistory: []domain.StageHistoryEntry{{StageID: "starter"}, {StageID: "compiler"}},
	}, ordered))
	assert.Equal(t, "starter", pipeline.ActivityStageID(domain.Activity{}, ordered))
}

func TestActivityOnStageMatchesNominalStage(t *testing.T) {
	ordered := pipeline.OrderedStages(domain.Flow{Stages: []domain.Stage{
		{ID: "s1", Key: "intake"},
		{ID: "s2", Key: "review"},
	}})
	legacy := domain.Activity{LegacyStageID: "review"}
	assert.True(t, pipeline.ActivityOnStage(legacy, ordered, "s2"))
	assert.True(t, pipeline.ActivityOnStage(legacy, ordered, "review"))
	assert.False(t, pipeline.ActivityOnStage(legacy, ordered, "s1"))

	fresh := domain.Activity{}
	assert.True(t, pipeline.ActivityOnStage(fresh, ordered, "intake"))
	assert.False(t, pipeline.ActivityOnStage(fresh, ordered, "missing"))
}
