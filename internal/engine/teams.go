package engine

import (
	"context"

	"stageline/internal/access"
	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/legacy"
	"stageline/internal/logging"
	"stageline/internal/teams"
)

// Teams returns the team registry bound to the engine's state and
// capabilities.
func (e Engine) Teams() teams.Registry {
	palette := e.Palette
	if palette == nil {
		palette = teams.NewRoundRobin()
	}
	return teams.Registry{State: e.State, Clock: e.clk(), Palette: palette}
}

func (e Engine) CreateTeam(ctx context.Context, projectID, name string, userIDs []string, actorID string) (domain.Team, error) {
	if _, err := e.State.Project(projectID); err != nil {
		return domain.Team{}, err
	}
	actor := e.actor(actorID)
	reg := e.Teams()
	team, err := reg.Build(projectID, name, userIDs)
	if err != nil {
		return domain.Team{}, err
	}
	if err := e.emit(ctx, e.now(), events.TeamCreated, projectID, "team", team.ID, actor, events.EventPayload{
		"name":     team.Name,
		"user_ids": team.UserIDs,
		"color":    team.Color,
	}); err != nil {
		return domain.Team{}, err
	}
	reg.Put(projectID, team)
	e.logger().Info("team created", logging.ProjectID(projectID), logging.TeamID(team.ID), logging.Actor(actor))
	return team, nil
}

// UpdateTeam merges upd into a team. It reports false when the project or
// team does not exist.
func (e Engine) UpdateTeam(ctx context.Context, projectID, teamID string, upd teams.TeamUpdate, actorID string) (domain.Team, bool, error) {
	reg := e.Teams()
	team, ok := reg.Merge(projectID, teamID, upd)
	if !ok {
		return domain.Team{}, false, nil
	}
	actor := e.actor(actorID)
	if err := e.emit(ctx, e.now(), events.TeamUpdated, projectID, "team", teamID, actor, events.EventPayload{
		"name":     team.Name,
		"user_ids": team.UserIDs,
		"color":    team.Color,
	}); err != nil {
		return domain.Team{}, false, err
	}
	reg.Put(projectID, team)
	return team, true, nil
}

// DeleteTeam removes a team and its assignments. It reports false when the
// project does not exist.
func (e Engine) DeleteTeam(ctx context.Context, projectID, teamID, actorID string) (bool, error) {
	if _, ok := e.State.Projects[projectID]; !ok {
		return false, nil
	}
	actor := e.actor(actorID)
	if err := e.emit(ctx, e.now(), events.TeamDeleted, projectID, "team", teamID, actor, nil); err != nil {
		return false, err
	}
	e.Teams().Delete(projectID, teamID)
	e.logger().Info("team deleted", logging.ProjectID(projectID), logging.TeamID(teamID), logging.Actor(actor))
	return true, nil
}

// CanUserWorkOnStage reports whether userName may act on a stage of a flow.
func (e Engine) CanUserWorkOnStage(projectID, flowID, stageID, userName string) (bool, error) {
	_, flow, err := e.State.ProjectFlow(projectID, flowID)
	if err != nil {
		return false, err
	}
	return access.CanUserWorkOnStage(e.State, flow, stageID, userName), nil
}

func (e Engine) StageTeams(projectID, flowID, stageID string) ([]domain.Team, error) {
	_, flow, err := e.State.ProjectFlow(projectID, flowID)
	if err != nil {
		return nil, err
	}
	out := access.StageTeams(e.State, flow, stageID)
	if out == nil {
		out = []domain.Team{}
	}
	return out, nil
}

// MigrateLegacyRoles converts every project from roles to teams.
func (e Engine) MigrateLegacyRoles(ctx context.Context, actorID string) (legacy.Report, error) {
	palette := e.Palette
	if palette == nil {
		palette = teams.NewRoundRobin()
	}
	report := legacy.MigrateRolesToTeams(e.State, palette)
	actor := e.actor(actorID)
	ts := e.now()
	for _, rep := range report.Projects {
		if !rep.Changed() {
			continue
		}
		if err := e.emit(ctx, ts, events.LegacyMigrated, rep.ProjectID, "project", rep.ProjectID, actor, events.EventPayload{
			"teams_created":        rep.TeamsCreated,
			"activities_rewritten": rep.ActivitiesRewritten,
			"roles_cleared":        rep.RolesCleared,
		}); err != nil {
			return legacy.Report{}, err
		}
		e.logger().Info("legacy roles migrated", logging.ProjectID(rep.ProjectID), "teams_created", len(rep.TeamsCreated))
	}
	return report, nil
}
