package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/teams"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*output[ProjectResponse], error) {
		var p domain.Project
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			p, err = e.CreateProject(ctx, engine.ProjectCreateOptions{ID: input.Body.ID, Name: input.Body.Name, ActorID: actor})
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(projectResponse(p)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*output[[]ProjectResponse], error) {
		res := []ProjectResponse{}
		err := h.view(ctx, func(e engine.Engine) error {
			for _, p := range e.State.ListProjects() {
				res = append(res, projectResponse(p))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[ProjectResponse], error) {
		var p domain.Project
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			p, err = e.State.Project(input.ProjectID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(projectResponse(p)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-user",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/users",
		Summary:       "Add a user to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Body      AddUserRequest `json:"body"`
	}) (*output[domain.User], error) {
		var u domain.User
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			u, err = e.AddUser(ctx, input.ProjectID, domain.User{ID: input.Body.ID, Name: input.Body.Name}, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(u), nil
	})
}

func registerTeams(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/teams",
		Summary:     "List teams",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[[]domain.Team], error) {
		var res []domain.Team
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			res, err = e.Teams().List(input.ProjectID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(nonNilSlice(res)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTeamRequest `json:"body"`
	}) (*output[domain.Team], error) {
		var team domain.Team
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			team, err = e.CreateTeam(ctx, input.ProjectID, input.Body.Name, input.Body.UserIDs, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(team), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-team",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/teams/{team_id}",
		Summary:     "Update team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TeamID    string            `path:"team_id"`
		Body      UpdateTeamRequest `json:"body"`
	}) (*output[domain.Team], error) {
		var (
			team domain.Team
			ok   bool
		)
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			team, ok, err = e.UpdateTeam(ctx, input.ProjectID, input.TeamID, teams.TeamUpdate{
				Name:    input.Body.Name,
				Color:   input.Body.Color,
				UserIDs: input.Body.UserIDs,
			}, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "team not found", map[string]any{"id": input.TeamID})
		}
		return respond(team), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-team",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/teams/{team_id}",
		Summary:       "Delete team and strip its stage assignments",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TeamID    string `path:"team_id"`
	}) (*struct{}, error) {
		var ok bool
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			ok, err = e.DeleteTeam(ctx, input.ProjectID, input.TeamID, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "project not found", map[string]any{"id": input.ProjectID})
		}
		return &struct{}{}, nil
	})
}
