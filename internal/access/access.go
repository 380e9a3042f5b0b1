// Package access derives who may act on a stage from team membership and
// direct user assignment.
package access

import (
	"slices"

	"stageline/internal/domain"
	"stageline/internal/pipeline"
	"stageline/internal/store"
)

// stageConfig resolves the configuration entry governing stageID. A stage
// the flow does not have has no configuration, whatever entries are stored.
func stageConfig(flow domain.Flow, stageID string) (domain.StageConfigEntry, bool) {
	stage, ok := pipeline.FindStage(pipeline.OrderedStages(flow), stageID)
	if !ok {
		return domain.StageConfigEntry{}, false
	}
	return pipeline.ConfigFor(flow, pipeline.StageKey(stage))
}

func resolveStageTeams(project domain.Project, flow domain.Flow, stageID string) []domain.Team {
	if stageID == "" {
		return nil
	}
	cfg, ok := stageConfig(flow, stageID)
	if !ok {
		return nil
	}
	var out []domain.Team
	for _, id := range cfg.AssignedTeamIDs {
		idx := slices.IndexFunc(project.Teams, func(t domain.Team) bool { return t.ID == id })
		if idx >= 0 {
			out = append(out, project.Teams[idx])
		}
	}
	return out
}

// StageTeams lists the teams assigned to a stage, in assignment order. The
// owning project is located by flow membership.
func StageTeams(state *store.State, flow domain.Flow, stageID string) []domain.Team {
	project, ok := state.ProjectOfFlow(flow.ID)
	if !ok {
		return nil
	}
	return resolveStageTeams(project, flow, stageID)
}

// CanUserWorkOnStage reports whether the user named userName belongs to a
// team assigned to the stage or is assigned to it directly. Opted-out users
// are not consulted.
func CanUserWorkOnStage(state *store.State, flow domain.Flow, stageID, userName string) bool {
	if flow.ID == "" || stageID == "" || userName == "" {
		return false
	}
	project, ok := state.ProjectOfFlow(flow.ID)
	if !ok {
		return false
	}
	named := func(userID string) bool {
		idx := slices.IndexFunc(project.Users, func(u domain.User) bool { return u.ID == userID })
		return idx >= 0 && project.Users[idx].Name == userName
	}
	for _, team := range resolveStageTeams(project, flow, stageID) {
		if slices.ContainsFunc(team.UserIDs, named) {
			return true
		}
	}
	cfg, ok := stageConfig(flow, stageID)
	if !ok {
		return false
	}
	return slices.ContainsFunc(cfg.AssignedUserIDs, named)
}
