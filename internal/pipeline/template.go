package pipeline

import (
	"fmt"

	"stageline/internal/domain"
)

var template = []domain.StageTemplate{
	{Key: "starter", Name: "Starter", Description: "Conceives and designs work", Tier: domain.TierGenesis},
	{Key: "builder", Name: "Builder", Description: "Builds and produces artifacts", Tier: domain.TierGenesis},
	{Key: "compiler", Name: "Compiler", Description: "Packages work into coherent form", Tier: domain.TierGenesis},
	{Key: "reviewer", Name: "Reviewer", Description: "Tests and evaluates quality", Tier: domain.TierEvaluation, SupportsRevision: true},
	{Key: "approver", Name: "Approver", Description: "Authorizes and validates", Tier: domain.TierEvaluation, SupportsRevision: true},
	{Key: "documenter", Name: "Documenter", Description: "Records and formalizes", Tier: domain.TierEvaluation},
	{Key: "integrator", Name: "Integrator", Description: "Synthesizes into coherent wholes", Tier: domain.TierContinuity},
	{Key: "maintainer", Name: "Maintainer", Description: "Preserves and sustains systems", Tier: domain.TierContinuity},
	{Key: "evolver", Name: "Evolver", Description: "Transforms and reinitiates cycles", Tier: domain.TierContinuity},
}

var defaultTimelines = map[string]int{
	"starter":    10,
	"builder":    14,
	"compiler":   7,
	"reviewer":   4,
	"approver":   3,
	"documenter": 7,
	"integrator": 10,
	"maintainer": 0,
	"evolver":    0,
}

var defaultConditions = map[string]string{
	"starter":    "Goal, owner, and success criteria are clear.",
	"builder":    "Something tangible exists to review (a draft, prototype, or demo).",
	"compiler":   "Pieces combined into a coherent package ready for feedback.",
	"reviewer":   "At least one peer has reviewed and left feedback.",
	"approver":   "Decision-maker has signed off or provided approval notes.",
	"documenter": "Final version and key notes recorded in one place.",
	"integrator": "Work merged into the wider system or process.",
	"maintainer": "Monitoring, updates, and issue tracking are active.",
	"evolver":    "Lessons captured and next cycle defined or initiated.",
}

// Template returns the nine-stage default pipeline in order.
func Template() []domain.StageTemplate {
	out := make([]domain.StageTemplate, len(template))
	for i, t := range template {
		t.Order = i
		out[i] = t
	}
	return out
}

func DefaultTimeline(key string) int {
	return defaultTimelines[key]
}

func DefaultConditions(key string) string {
	return defaultConditions[key]
}

func templateTier(idx int) domain.Tier {
	if idx < 0 || idx >= len(template) {
		return ""
	}
	return template[idx].Tier
}

// templateStages instantiates the template without ids. It is the fallback
// stage list for flows that define none.
func templateStages() []domain.Stage {
	out := make([]domain.Stage, 0, len(template))
	for i, t := range Template() {
		order := i
		out = append(out, domain.Stage{
			Key:                  t.Key,
			OperatorKey:          t.Key,
			Name:                 t.Name,
			Description:          t.Description,
			Order:                &order,
			Tier:                 t.Tier,
			SupportsRevision:     t.SupportsRevision,
			ExpectedDurationDays: DefaultTimeline(t.Key),
			Conditions:           DefaultConditions(t.Key),
		})
	}
	return out
}

// DefaultStages builds the stage list stored on a newly created flow.
func DefaultStages(ts domain.Timestamp) []domain.Stage {
	stages := templateStages()
	for i := range stages {
		stages[i].ID = fmt.Sprintf("stage-%d-%d", ts, i)
	}
	return stages
}

// DefaultStageConfig returns one active, unassigned entry per template stage.
func DefaultStageConfig() []domain.StageConfigRecord {
	out := make([]domain.StageConfigRecord, 0, len(template))
	for _, t := range template {
		out = append(out, defaultEntry(t.Key).Record())
	}
	return out
}

func defaultEntry(key string) domain.StageConfigEntry {
	return domain.StageConfigEntry{
		StageKey:        key,
		Active:          true,
		AssignedTeamIDs: []string{},
		AssignedUserIDs: []string{},
		OptedOutUserIDs: []string{},
	}
}
