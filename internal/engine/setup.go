package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/logging"
	"stageline/internal/pipeline"
)

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID      string
	Name    string
	ActorID string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	ts := e.now()
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("project-%d", ts)
	}
	if _, exists := e.State.Projects[id]; exists {
		return domain.Project{}, fmt.Errorf("project %q already exists", id)
	}
	p := domain.Project{
		ID:        id,
		Name:      opts.Name,
		Users:     []domain.User{},
		Teams:     []domain.Team{},
		CreatedAt: ts,
	}
	actor := e.actor(opts.ActorID)
	if err := e.emit(ctx, ts, events.ProjectCreated, id, "project", id, actor, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	e.State.PutProject(p)
	e.logger().Info("project created", logging.ProjectID(id), logging.Actor(actor))
	return p, nil
}

// AddUser registers a user in a project directory. User ids are unique per
// project; names are what stage access checks compare against.
func (e Engine) AddUser(ctx context.Context, projectID string, user domain.User, actorID string) (domain.User, error) {
	if strings.TrimSpace(user.Name) == "" {
		return domain.User{}, errors.New("user name is required")
	}
	p, err := e.State.Project(projectID)
	if err != nil {
		return domain.User{}, err
	}
	ts := e.now()
	if user.ID == "" {
		user.ID = "user-" + e.token()
	}
	if slices.ContainsFunc(p.Users, func(u domain.User) bool { return u.ID == user.ID }) {
		return domain.User{}, fmt.Errorf("user %q already exists", user.ID)
	}
	actor := e.actor(actorID)
	if err := e.emit(ctx, ts, events.UserAdded, projectID, "user", user.ID, actor, events.EventPayload{"name": user.Name}); err != nil {
		return domain.User{}, err
	}
	p.Users = append(slices.Clone(p.Users), user)
	e.State.PutProject(p)
	return user, nil
}

// FlowCreateOptions are parameters for creating a flow. Without explicit
// stages the flow receives the default nine-stage pipeline.
type FlowCreateOptions struct {
	ProjectID   string
	ID          string
	Name        string
	Description string
	Stages      []domain.Stage
	ActorID     string
}

func (e Engine) CreateFlow(ctx context.Context, opts FlowCreateOptions) (domain.Flow, error) {
	p, err := e.State.Project(opts.ProjectID)
	if err != nil {
		return domain.Flow{}, err
	}
	ts := e.now()
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("flow-%d", ts)
	}
	stages := slices.Clone(opts.Stages)
	if len(stages) == 0 {
		stages = pipeline.DefaultStages(ts)
	}
	flow := domain.Flow{
		ID:          id,
		Name:        opts.Name,
		Description: opts.Description,
		Stages:      stages,
		StageConfig: pipeline.DefaultStageConfig(),
		Edges:       []domain.Edge{},
	}
	actor := e.actor(opts.ActorID)
	if err := e.emit(ctx, ts, events.FlowCreated, p.ID, "flow", id, actor, events.EventPayload{"stages": len(stages)}); err != nil {
		return domain.Flow{}, err
	}
	if err := e.State.AddFlow(p.ID, flow); err != nil {
		return domain.Flow{}, err
	}
	e.logger().Info("flow created", logging.ProjectID(p.ID), logging.FlowID(id), logging.Actor(actor))
	return e.State.Flows[id], nil
}
