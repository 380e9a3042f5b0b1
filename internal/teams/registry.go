package teams

import (
	"fmt"
	"slices"

	"stageline/internal/clock"
	"stageline/internal/domain"
	"stageline/internal/pipeline"
	"stageline/internal/store"
)

// Registry manages the teams of the projects held in State.
type Registry struct {
	State   *store.State
	Clock   clock.Clock
	Palette Palette
}

// TeamUpdate carries the fields to merge into a team. Nil fields are kept.
type TeamUpdate struct {
	Name    *string
	Color   *string
	UserIDs []string
}

func (r Registry) List(projectID string) ([]domain.Team, error) {
	p, err := r.State.Project(projectID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.Teams), nil
}

func (r Registry) Get(projectID, teamID string) (domain.Team, error) {
	p, err := r.State.Project(projectID)
	if err != nil {
		return domain.Team{}, err
	}
	for _, t := range p.Teams {
		if t.ID == teamID {
			return t, nil
		}
	}
	return domain.Team{}, &store.NotFoundError{Kind: "team", ID: teamID}
}

// Create adds a team with a generated id and the next palette color.
func (r Registry) Create(projectID, name string, userIDs []string) (domain.Team, error) {
	team, err := r.Build(projectID, name, userIDs)
	if err != nil {
		return domain.Team{}, err
	}
	r.Put(projectID, team)
	return team, nil
}

// Build prepares a new team record without storing it. The palette and
// clock still advance.
func (r Registry) Build(projectID, name string, userIDs []string) (domain.Team, error) {
	if _, err := r.State.Project(projectID); err != nil {
		return domain.Team{}, err
	}
	return domain.Team{
		ID:      fmt.Sprintf("team-%d", r.Clock.Now()),
		Name:    name,
		UserIDs: pipeline.UniqueIDs(userIDs),
		Color:   r.Palette.Next(),
	}, nil
}

// Put stores team in the project, replacing a team with the same id or
// appending it. Unknown projects are ignored.
func (r Registry) Put(projectID string, team domain.Team) {
	p, ok := r.State.Projects[projectID]
	if !ok {
		return
	}
	p.Teams = slices.Clone(p.Teams)
	if idx := slices.IndexFunc(p.Teams, func(t domain.Team) bool { return t.ID == team.ID }); idx >= 0 {
		p.Teams[idx] = team
	} else {
		p.Teams = append(p.Teams, team)
	}
	r.State.PutProject(p)
}

// Update merges upd into the team. It reports false, changing nothing, when
// the project or team does not exist.
func (r Registry) Update(projectID, teamID string, upd TeamUpdate) (domain.Team, bool) {
	team, ok := r.Merge(projectID, teamID, upd)
	if ok {
		r.Put(projectID, team)
	}
	return team, ok
}

// Merge returns the team with upd applied, without storing it.
func (r Registry) Merge(projectID, teamID string, upd TeamUpdate) (domain.Team, bool) {
	p, ok := r.State.Projects[projectID]
	if !ok {
		return domain.Team{}, false
	}
	idx := slices.IndexFunc(p.Teams, func(t domain.Team) bool { return t.ID == teamID })
	if idx < 0 {
		return domain.Team{}, false
	}
	team := p.Teams[idx]
	if upd.Name != nil {
		team.Name = *upd.Name
	}
	if upd.Color != nil {
		team.Color = *upd.Color
	}
	members := team.UserIDs
	if upd.UserIDs != nil {
		members = upd.UserIDs
	}
	team.UserIDs = pipeline.UniqueIDs(members)
	return team, true
}

// Delete removes the team and strips its id from the stage configuration
// of every flow in the project, rewriting each configuration into canonical
// form. It reports false when the project does not exist.
func (r Registry) Delete(projectID, teamID string) bool {
	p, ok := r.State.Projects[projectID]
	if !ok {
		return false
	}
	p.Teams = slices.DeleteFunc(slices.Clone(p.Teams), func(t domain.Team) bool { return t.ID == teamID })
	r.State.PutProject(p)

	for _, flow := range r.State.FlowsOf(projectID) {
		entries := pipeline.FlowStageConfig(flow)
		for i := range entries {
			entries[i].AssignedTeamIDs = slices.DeleteFunc(slices.Clone(entries[i].AssignedTeamIDs), func(id string) bool {
				return id == teamID
			})
		}
		flow.StageConfig = pipeline.Records(entries)
		r.State.PutFlow(flow)
	}
	return true
}
