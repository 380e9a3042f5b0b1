package store

import (
	"errors"
	"fmt"
	"slices"

	"stageline/internal/domain"
)

var ErrNotFound = errors.New("not found")

// NotFoundError names the entity a lookup failed on. It matches ErrNotFound
// under errors.Is.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// State is the in-memory arena of projects, flows and activities. Records
// are stored by value and reference each other by id only.
type State struct {
	Projects   map[string]domain.Project
	Flows      map[string]domain.Flow
	Activities map[string]domain.Activity
	ProjectIDs []string
}

func NewState() *State {
	return &State{
		Projects:   map[string]domain.Project{},
		Flows:      map[string]domain.Flow{},
		Activities: map[string]domain.Activity{},
	}
}

func (s *State) Project(id string) (domain.Project, error) {
	p, ok := s.Projects[id]
	if !ok {
		return domain.Project{}, notFound("project", id)
	}
	return p, nil
}

// ProjectFlow resolves a flow within the named project. A flow owned by a
// different project is reported as missing.
func (s *State) ProjectFlow(projectID, flowID string) (domain.Project, domain.Flow, error) {
	p, err := s.Project(projectID)
	if err != nil {
		return domain.Project{}, domain.Flow{}, err
	}
	if !slices.Contains(p.FlowIDs, flowID) {
		return domain.Project{}, domain.Flow{}, notFound("flow", flowID)
	}
	f, ok := s.Flows[flowID]
	if !ok {
		return domain.Project{}, domain.Flow{}, notFound("flow", flowID)
	}
	return p, f, nil
}

// FlowActivity resolves an activity within a flow of a project.
func (s *State) FlowActivity(projectID, flowID, activityID string) (domain.Flow, domain.Activity, error) {
	_, f, err := s.ProjectFlow(projectID, flowID)
	if err != nil {
		return domain.Flow{}, domain.Activity{}, err
	}
	if !slices.Contains(f.ActivityIDs, activityID) {
		return domain.Flow{}, domain.Activity{}, notFound("activity", activityID)
	}
	a, ok := s.Activities[activityID]
	if !ok {
		return domain.Flow{}, domain.Activity{}, notFound("activity", activityID)
	}
	return f, a, nil
}

// ProjectOfFlow finds the project whose flow list contains flowID.
func (s *State) ProjectOfFlow(flowID string) (domain.Project, bool) {
	for _, id := range s.ProjectIDs {
		p := s.Projects[id]
		if slices.Contains(p.FlowIDs, flowID) {
			return p, true
		}
	}
	return domain.Project{}, false
}

// ListProjects returns projects in insertion order.
func (s *State) ListProjects() []domain.Project {
	out := make([]domain.Project, 0, len(s.ProjectIDs))
	for _, id := range s.ProjectIDs {
		out = append(out, s.Projects[id])
	}
	return out
}

func (s *State) FlowsOf(projectID string) []domain.Flow {
	p, ok := s.Projects[projectID]
	if !ok {
		return nil
	}
	out := make([]domain.Flow, 0, len(p.FlowIDs))
	for _, id := range p.FlowIDs {
		if f, ok := s.Flows[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *State) ActivitiesOf(flowID string) []domain.Activity {
	f, ok := s.Flows[flowID]
	if !ok {
		return nil
	}
	out := make([]domain.Activity, 0, len(f.ActivityIDs))
	for _, id := range f.ActivityIDs {
		if a, ok := s.Activities[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// PutProject inserts or replaces a project record.
func (s *State) PutProject(p domain.Project) {
	if _, ok := s.Projects[p.ID]; !ok {
		s.ProjectIDs = append(s.ProjectIDs, p.ID)
	}
	s.Projects[p.ID] = p
}

func (s *State) PutFlow(f domain.Flow) {
	s.Flows[f.ID] = f
}

func (s *State) PutActivity(a domain.Activity) {
	s.Activities[a.ID] = a
}

// AddFlow stores f and links it to its project.
func (s *State) AddFlow(projectID string, f domain.Flow) error {
	p, err := s.Project(projectID)
	if err != nil {
		return err
	}
	if _, exists := s.Flows[f.ID]; exists {
		return fmt.Errorf("flow %q already exists", f.ID)
	}
	f.ProjectID = projectID
	p.FlowIDs = append(slices.Clone(p.FlowIDs), f.ID)
	s.Flows[f.ID] = f
	s.Projects[p.ID] = p
	return nil
}

// AddActivity stores a and links it to its flow.
func (s *State) AddActivity(flowID string, a domain.Activity) error {
	f, ok := s.Flows[flowID]
	if !ok {
		return notFound("flow", flowID)
	}
	if _, exists := s.Activities[a.ID]; exists {
		return fmt.Errorf("activity %q already exists", a.ID)
	}
	a.FlowID = flowID
	f.ActivityIDs = append(slices.Clone(f.ActivityIDs), a.ID)
	s.Activities[a.ID] = a
	s.Flows[f.ID] = f
	return nil
}
