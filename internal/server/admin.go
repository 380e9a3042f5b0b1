package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/engine"
	"stageline/internal/legacy"
	"stageline/internal/repo"
	"stageline/internal/store"
)

func registerEvents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,flow,activity,team,user"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*output[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.ws.Events(ctx, repo.EventFilter{
			Limit:      limit + 1,
			Cursor:     cursorID,
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return respond(resp), nil
	})
}

func registerAdmin(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "migrate-legacy-roles",
		Method:      http.MethodPost,
		Path:        "/migrations/legacy-roles",
		Summary:     "Convert legacy roles into teams across every project",
	}, func(ctx context.Context, _ *struct{}) (*output[legacy.Report], error) {
		var report legacy.Report
		err := h.update(ctx, func(ctx context.Context, e engine.Engine, actor string) error {
			var err error
			report, err = e.MigrateLegacyRoles(ctx, actor)
			return err
		})
		if err != nil {
			return nil, err
		}
		if report.Projects == nil {
			report.Projects = []legacy.ProjectReport{}
		}
		return respond(report), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-snapshot",
		Method:      http.MethodGet,
		Path:        "/snapshot",
		Summary:     "Export every project as one JSON document",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		snap, err := h.ws.Export(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: "application/json", Body: data}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-snapshot",
		Method:      http.MethodPost,
		Path:        "/snapshot",
		Summary:     "Import projects from a JSON or YAML snapshot",
		Description: "Legacy field names are accepted. Existing projects are rejected unless replace is set.",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Replace bool `query:"replace"`
		RawBody []byte
	}) (*output[ImportResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		snap, err := store.DecodeSnapshot(input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		ids, err := h.ws.Import(ctx, snap, input.Replace)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ImportResponse{ProjectIDs: nonNilSlice(ids)}), nil
	})
}
