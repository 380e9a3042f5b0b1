package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"stageline/internal/domain"
)

// Snapshot is the nested document form of the state tree, matching the
// collaborator shape: projects contain flows, flows contain activities.
type Snapshot struct {
	Projects []ProjectDocument `json:"projects"`
}

type ProjectDocument struct {
	domain.Project
	Flows []FlowDocument `json:"flows"`
}

type FlowDocument struct {
	domain.Flow
	Activities []domain.Activity `json:"activities"`
}

// Snapshot exports the whole state.
func (s *State) Snapshot() Snapshot {
	out := Snapshot{Projects: make([]ProjectDocument, 0, len(s.ProjectIDs))}
	for _, p := range s.ListProjects() {
		out.Projects = append(out.Projects, s.ProjectDocument(p.ID))
	}
	return out
}

// ProjectDocument exports one project with its flows and activities.
func (s *State) ProjectDocument(projectID string) ProjectDocument {
	doc := ProjectDocument{Project: s.Projects[projectID], Flows: []FlowDocument{}}
	for _, f := range s.FlowsOf(projectID) {
		acts := s.ActivitiesOf(f.ID)
		if acts == nil {
			acts = []domain.Activity{}
		}
		doc.Flows = append(doc.Flows, FlowDocument{Flow: f, Activities: acts})
	}
	return doc
}

// FromSnapshot builds an arena from nested documents. Duplicate ids are
// rejected.
func FromSnapshot(snap Snapshot) (*State, error) {
	st := NewState()
	for _, doc := range snap.Projects {
		if err := st.AddProjectDocument(doc); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// AddProjectDocument inserts a project and everything nested in it.
func (s *State) AddProjectDocument(doc ProjectDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if _, exists := s.Projects[doc.ID]; exists {
		return fmt.Errorf("project %q already exists", doc.ID)
	}
	p := doc.Project
	p.FlowIDs = nil
	s.PutProject(p)
	for _, fd := range doc.Flows {
		f := fd.Flow
		f.ActivityIDs = nil
		if err := s.AddFlow(p.ID, f); err != nil {
			return err
		}
		for _, a := range fd.Activities {
			if err := s.AddActivity(f.ID, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceProjectDocument drops a project's previous flows and activities
// and inserts doc in its place.
func (s *State) ReplaceProjectDocument(doc ProjectDocument) error {
	if old, ok := s.Projects[doc.ID]; ok {
		for _, fid := range old.FlowIDs {
			for _, aid := range s.Flows[fid].ActivityIDs {
				delete(s.Activities, aid)
			}
			delete(s.Flows, fid)
		}
		delete(s.Projects, doc.ID)
		ids := s.ProjectIDs[:0:0]
		for _, id := range s.ProjectIDs {
			if id != doc.ID {
				ids = append(ids, id)
			}
		}
		s.ProjectIDs = ids
	}
	return s.AddProjectDocument(doc)
}

// DecodeSnapshot reads a snapshot written as JSON or YAML.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var generic any
		if err := yaml.Unmarshal(trimmed, &generic); err != nil {
			return Snapshot{}, fmt.Errorf("decode yaml snapshot: %w", err)
		}
		converted, err := json.Marshal(generic)
		if err != nil {
			return Snapshot{}, fmt.Errorf("convert yaml snapshot: %w", err)
		}
		trimmed = converted
	}
	var snap Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
