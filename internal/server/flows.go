package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/pipeline"
)

type flowPath struct {
	ProjectID string `path:"project_id"`
	FlowID    string `path:"flow_id"`
}

type stagePath struct {
	ProjectID string `path:"project_id"`
	FlowID    string `path:"flow_id"`
	StageID   string `path:"stage_id"`
}

func registerFlows(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-flow",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/flows",
		Summary:       "Create flow",
		Description:   "Flows created without stages use the nine-stage default template.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateFlowRequest `json:"body"`
	}) (*output[FlowResponse], error) {
		var f domain.Flow
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			f, err = e.CreateFlow(ctx, engine.FlowCreateOptions{
				ProjectID:   input.ProjectID,
				ID:          input.Body.ID,
				Name:        input.Body.Name,
				Description: input.Body.Description,
				Stages:      stageRequests(input.Body.Stages),
				ActorID:     actor,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(flowResponse(f)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-flows",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows",
		Summary:     "List flows",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[[]FlowResponse], error) {
		res := []FlowResponse{}
		err := h.view(ctx, func(e engine.Engine) error {
			if _, err := e.State.Project(input.ProjectID); err != nil {
				return err
			}
			for _, f := range e.State.FlowsOf(input.ProjectID) {
				res = append(res, flowResponse(f))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-flow",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}",
		Summary:     "Get flow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *flowPath) (*output[FlowResponse], error) {
		var f domain.Flow
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			_, f, err = e.State.ProjectFlow(input.ProjectID, input.FlowID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(flowResponse(f)), nil
	})
}

func registerStages(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}/stages",
		Summary:     "Ordered stages of a flow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *flowPath) (*output[[]StageResponse], error) {
		var ordered []pipeline.ResolvedStage
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			ordered, err = e.OrderedStages(input.ProjectID, input.FlowID)
			return err
		})
		if err != nil {
			return nil, err
		}
		res := make([]StageResponse, 0, len(ordered))
		for _, s := range ordered {
			res = append(res, stageResponse(s))
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stage-config",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}/stage-config",
		Summary:     "Canonical stage configuration of a flow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *flowPath) (*output[[]domain.StageConfigEntry], error) {
		var entries []domain.StageConfigEntry
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			entries, err = e.StageConfig(input.ProjectID, input.FlowID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(nonNilSlice(entries)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-stage",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/flows/{flow_id}/stages/{stage_id}/assignment",
		Summary:     "Replace the teams and users assigned to a stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		stagePath
		Body AssignStageRequest `json:"body"`
	}) (*output[domain.StageConfigEntry], error) {
		var (
			entry domain.StageConfigEntry
			found bool
		)
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			entry, found, err = e.AssignTeamsToStage(ctx, input.ProjectID, input.FlowID, input.StageID, engine.StageAssignment{
				AssignedTeamIDs: input.Body.AssignedTeamIDs,
				AssignedUserIDs: input.Body.AssignedUserIDs,
			}, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, stageNotFound(input.StageID)
		}
		return respond(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-stage-active",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/flows/{flow_id}/stages/{stage_id}/active",
		Summary:     "Enable or disable a stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		stagePath
		Body SetStageActiveRequest `json:"body"`
	}) (*output[domain.StageConfigEntry], error) {
		var (
			entry domain.StageConfigEntry
			found bool
		)
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			entry, found, err = e.SetStageActive(ctx, input.ProjectID, input.FlowID, input.StageID, input.Body.Active, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, stageNotFound(input.StageID)
		}
		return respond(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-teams",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}/stages/{stage_id}/teams",
		Summary:     "Teams assigned to a stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *stagePath) (*output[[]domain.Team], error) {
		var res []domain.Team
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			res, err = e.StageTeams(input.ProjectID, input.FlowID, input.StageID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(nonNilSlice(res)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-access",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}/stages/{stage_id}/access",
		Summary:     "Check whether a user may work on a stage",
		Description: "Defaults to the authenticated actor when user is omitted.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		stagePath
		User string `query:"user"`
	}) (*output[AccessResponse], error) {
		user := input.User
		if user == "" {
			actor, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			user = actor
		}
		var allowed bool
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			allowed, err = e.CanUserWorkOnStage(input.ProjectID, input.FlowID, input.StageID, user)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(AccessResponse{User: user, StageID: input.StageID, Allowed: allowed}), nil
	})
}

func stageNotFound(stageID string) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", "stage not found", map[string]any{"kind": "stage", "id": stageID})
}
