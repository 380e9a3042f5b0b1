// Package legacy converts the role-based assignment model into teams.
package legacy

import (
	"slices"
	"strings"

	"stageline/internal/domain"
	"stageline/internal/pipeline"
	"stageline/internal/store"
	"stageline/internal/teams"
)

const (
	rolePrefix = "role-"
	teamPrefix = "team-"
)

// ProjectReport summarizes what the migration changed in one project.
type ProjectReport struct {
	ProjectID           string   `json:"projectId"`
	ReferencedRoles     []string `json:"referencedRoles"`
	TeamsCreated        []string `json:"teamsCreated"`
	FlowsRewritten      int      `json:"flowsRewritten"`
	ActivitiesRewritten int      `json:"activitiesRewritten"`
	RolesCleared        int      `json:"rolesCleared"`
}

type Report struct {
	Projects []ProjectReport `json:"projects"`
}

// Changed reports whether the migration touched anything beyond flow
// configuration normalization.
func (r ProjectReport) Changed() bool {
	return len(r.TeamsCreated) > 0 || r.ActivitiesRewritten > 0 || r.RolesCleared > 0
}

// TeamID maps a legacy role id onto the id of the team replacing it.
func TeamID(roleID string) string {
	return strings.Replace(roleID, rolePrefix, teamPrefix, 1)
}

// MigrateRolesToTeams rewrites every project in state from legacy roles to
// teams. Running it again on migrated state changes nothing.
func MigrateRolesToTeams(state *store.State, palette teams.Palette) Report {
	var report Report
	for _, id := range state.ProjectIDs {
		report.Projects = append(report.Projects, migrateProject(state, id, palette))
	}
	return report
}

func migrateProject(state *store.State, projectID string, palette teams.Palette) ProjectReport {
	project := state.Projects[projectID]
	rep := ProjectReport{ProjectID: projectID, ReferencedRoles: []string{}, TeamsCreated: []string{}}
	flows := state.FlowsOf(projectID)

	var referenced []domain.LegacyRole
	register := func(roleID string) {
		if roleID == "" {
			return
		}
		idx := slices.IndexFunc(project.Roles, func(r domain.LegacyRole) bool { return r.ID == roleID })
		if idx < 0 || slices.ContainsFunc(referenced, func(r domain.LegacyRole) bool { return r.ID == roleID }) {
			return
		}
		referenced = append(referenced, project.Roles[idx])
	}
	for _, flow := range flows {
		for _, a := range state.ActivitiesOf(flow.ID) {
			register(a.RoleID)
		}
		for _, rec := range flow.StageConfig {
			register(rec.RoleID)
			for _, id := range rec.AssignedRoleIDs {
				register(id)
			}
			for _, id := range rec.RoleIDs {
				register(id)
			}
		}
	}
	for _, r := range referenced {
		rep.ReferencedRoles = append(rep.ReferencedRoles, r.ID)
	}

	// Projects that already use teams and reference no roles keep their teams.
	if len(project.Teams) == 0 && len(referenced) > 0 {
		created := make([]domain.Team, 0, len(referenced))
		for _, role := range referenced {
			team := domain.Team{
				ID:      TeamID(role.ID),
				Name:    role.Name,
				UserIDs: pipeline.UniqueIDs(role.UserIDs),
				Color:   palette.Next(),
			}
			created = append(created, team)
			rep.TeamsCreated = append(rep.TeamsCreated, team.ID)
		}
		project.Teams = created
	}

	for _, flow := range flows {
		entries := pipeline.FlowStageConfig(flow)
		for i := range entries {
			ids := make([]string, 0, len(entries[i].AssignedTeamIDs))
			for _, id := range entries[i].AssignedTeamIDs {
				if strings.HasPrefix(id, rolePrefix) {
					id = TeamID(id)
				}
				ids = append(ids, id)
			}
			entries[i].AssignedTeamIDs = pipeline.UniqueIDs(ids)
		}
		flow.StageConfig = pipeline.Records(entries)
		state.PutFlow(flow)
		rep.FlowsRewritten++

		for _, a := range state.ActivitiesOf(flow.ID) {
			if a.RoleID == "" {
				continue
			}
			a.TeamID = TeamID(a.RoleID)
			a.RoleID = ""
			state.PutActivity(a)
			rep.ActivitiesRewritten++
		}
	}

	rep.RolesCleared = len(project.Roles)
	project.Roles = []domain.LegacyRole{}
	state.PutProject(project)
	return rep
}
