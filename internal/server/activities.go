package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/pipeline"
)

type activityPath struct {
	ProjectID  string `path:"project_id"`
	FlowID     string `path:"flow_id"`
	ActivityID string `path:"activity_id"`
}

func registerActivities(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/flows/{flow_id}/activities",
		Summary:       "Create activity",
		Description:   "Places the activity on stageId when given, otherwise on the first active stage.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		flowPath
		Body CreateActivityRequest `json:"body"`
	}) (*output[ActivityResponse], error) {
		var a domain.Activity
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			a, err = e.CreateActivity(ctx, engine.ActivityCreateOptions{
				ProjectID:   input.ProjectID,
				FlowID:      input.FlowID,
				ID:          input.Body.ID,
				Title:       input.Body.Title,
				Deliverable: input.Body.Deliverable,
				StageID:     input.Body.StageID,
				ActorID:     actor,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(activityResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}/activities",
		Summary:     "List activities of a flow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		flowPath
		StageID string `query:"stage_id" doc:"Only activities currently on this stage"`
	}) (*output[[]ActivityResponse], error) {
		res := []ActivityResponse{}
		err := h.view(ctx, func(e engine.Engine) error {
			_, flow, err := e.State.ProjectFlow(input.ProjectID, input.FlowID)
			if err != nil {
				return err
			}
			ordered := pipeline.OrderedStages(flow)
			for _, a := range e.State.ActivitiesOf(input.FlowID) {
				if input.StageID != "" && !pipeline.ActivityOnStage(a, ordered, input.StageID) {
					continue
				}
				res = append(res, activityResponse(a))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/flows/{flow_id}/activities/{activity_id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*output[ActivityResponse], error) {
		var a domain.Activity
		err := h.view(ctx, func(e engine.Engine) error {
			var err error
			_, a, err = e.State.FlowActivity(input.ProjectID, input.FlowID, input.ActivityID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return respond(activityResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-activity",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/flows/{flow_id}/activities/{activity_id}/claim",
		Summary:     "Claim the current stage of an activity",
		Description: "Returns 409 claim_conflict when another actor holds the claim.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		activityPath
		Body ClaimActivityRequest `json:"body" required:"false"`
	}) (*output[ClaimResponse], error) {
		var (
			claimed bool
			a       domain.Activity
		)
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			claimed, err = e.ClaimActivity(ctx, input.ProjectID, input.FlowID, input.ActivityID, input.Body.Priority, actor)
			if err != nil {
				return err
			}
			a = e.State.Activities[input.ActivityID]
			return nil
		})
		if err != nil {
			return nil, err
		}
		if latest, ok := a.LatestEntry(); !claimed && ok && latest.ClaimedBy != "" {
			holder := latest.ClaimedBy
			return nil, newAPIError(http.StatusConflict, "claim_conflict",
				fmt.Sprintf("activity is claimed by %s", holder), map[string]any{"claimedBy": holder})
		}
		return respond(ClaimResponse{Claimed: claimed, Activity: activityResponse(a)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unclaim-activity",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/flows/{flow_id}/activities/{activity_id}/unclaim",
		Summary:     "Release the claim on the current stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*output[ActivityResponse], error) {
		var a domain.Activity
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			if _, err := e.UnclaimActivity(ctx, input.ProjectID, input.FlowID, input.ActivityID, actor); err != nil {
				return err
			}
			a = e.State.Activities[input.ActivityID]
			return nil
		})
		if err != nil {
			return nil, err
		}
		return respond(activityResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-activity",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/flows/{flow_id}/activities/{activity_id}/complete",
		Summary:     "Complete or skip the current stage and advance",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		activityPath
		Body CompleteActivityRequest `json:"body" required:"false"`
	}) (*output[CompleteResponse], error) {
		var (
			next string
			a    domain.Activity
		)
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			next, err = e.CompleteActivity(ctx, input.ProjectID, input.FlowID, input.ActivityID, engine.CompleteOptions{
				SkipStage: input.Body.SkipStage,
				Note:      input.Body.Note,
			}, actor)
			if err != nil {
				return err
			}
			a = e.State.Activities[input.ActivityID]
			return nil
		})
		if err != nil {
			return nil, err
		}
		return respond(CompleteResponse{NextStageID: next, Finished: a.CompletedAt != nil, Activity: activityResponse(a)}), nil
	})
}
