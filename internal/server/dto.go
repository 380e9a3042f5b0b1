package server

import (
	"stageline/internal/domain"
	"stageline/internal/pipeline"
)

// Request payloads

type CreateProjectRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type AddUserRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" minLength:"1"`
}

type CreateTeamRequest struct {
	Name    string   `json:"name" minLength:"1"`
	UserIDs []string `json:"userIds,omitempty"`
}

type UpdateTeamRequest struct {
	Name    *string  `json:"name,omitempty"`
	Color   *string  `json:"color,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

type StageRequest struct {
	ID                   string `json:"id,omitempty"`
	Key                  string `json:"key,omitempty"`
	OperatorKey          string `json:"operatorKey,omitempty"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	Order                *int   `json:"order,omitempty"`
	Tier                 string `json:"tier,omitempty" enum:"genesis,evaluation,continuity"`
	SupportsRevision     bool   `json:"supportsRevision,omitempty"`
	ExpectedDurationDays int    `json:"expectedDurationDays,omitempty"`
	Conditions           string `json:"conditions,omitempty"`
	Skipped              bool   `json:"skipped,omitempty"`
}

type CreateFlowRequest struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Stages      []StageRequest `json:"stages,omitempty"`
}

type AssignStageRequest struct {
	AssignedTeamIDs []string `json:"assignedTeamIds,omitempty"`
	AssignedUserIDs []string `json:"assignedUserIds,omitempty"`
}

type SetStageActiveRequest struct {
	Active bool `json:"active"`
}

type CreateActivityRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title" minLength:"1"`
	Deliverable string `json:"deliverable,omitempty"`
	StageID     string `json:"stageId,omitempty"`
}

type ClaimActivityRequest struct {
	Priority string `json:"priority,omitempty"`
}

type CompleteActivityRequest struct {
	SkipStage bool   `json:"skipStage,omitempty"`
	Note      string `json:"note,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actorId" minLength:"1"`
}

// Responses

type ProjectResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Users     []domain.User `json:"users"`
	Teams     []domain.Team `json:"teams"`
	FlowIDs   []string      `json:"flowIds"`
	CreatedAt int64         `json:"createdAt"`
}

type FlowResponse struct {
	ID          string                    `json:"id"`
	ProjectID   string                    `json:"projectId"`
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Stages      []StageResponse           `json:"stages"`
	StageConfig []domain.StageConfigEntry `json:"stageConfig"`
	ActivityIDs []string                  `json:"activityIds"`
}

type StageResponse struct {
	UID                  string                   `json:"uid"`
	ID                   string                   `json:"id,omitempty"`
	Key                  string                   `json:"key,omitempty"`
	OperatorKey          string                   `json:"operatorKey,omitempty"`
	Name                 string                   `json:"name"`
	Description          string                   `json:"description,omitempty"`
	Rank                 int                      `json:"rank"`
	Tier                 string                   `json:"tier,omitempty"`
	SupportsRevision     bool                     `json:"supportsRevision"`
	ExpectedDurationDays int                      `json:"expectedDurationDays"`
	Conditions           string                   `json:"conditions,omitempty"`
	Skipped              bool                     `json:"skipped"`
	Config               *domain.StageConfigEntry `json:"stageConfig,omitempty"`
}

type StageEntryResponse struct {
	ID          string        `json:"id"`
	StageID     string        `json:"stageId"`
	EnteredAt   int64         `json:"enteredAt"`
	ExitedAt    *int64        `json:"exitedAt,omitempty"`
	ClaimedBy   string        `json:"claimedBy,omitempty"`
	ClaimedAt   *int64        `json:"claimedAt,omitempty"`
	Priority    string        `json:"priority,omitempty"`
	CompletedAt *int64        `json:"completedAt,omitempty"`
	SkippedAt   *int64        `json:"skippedAt,omitempty"`
	Log         []domain.Line `json:"log"`
}

type ActivityResponse struct {
	ID             string                      `json:"id"`
	FlowID         string                      `json:"flowId"`
	Title          string                      `json:"title"`
	Deliverable    string                      `json:"deliverable,omitempty"`
	CurrentStageID string                      `json:"currentStageId,omitempty"`
	ClaimedBy      string                      `json:"claimedBy,omitempty"`
	SkippedStages  []string                    `json:"skippedStages"`
	StageHistory   []StageEntryResponse        `json:"stageHistory"`
	StageReadBy    map[string]map[string]int64 `json:"stageReadBy"`
	Comments       []domain.Comment            `json:"comments"`
	History        []domain.Line               `json:"history"`
	CreatedAt      int64                       `json:"createdAt"`
	CompletedAt    *int64                      `json:"completedAt,omitempty"`
	TeamID         string                      `json:"teamId,omitempty"`
}

type ClaimResponse struct {
	Claimed  bool             `json:"claimed"`
	Activity ActivityResponse `json:"activity"`
}

type CompleteResponse struct {
	NextStageID string           `json:"nextStageId,omitempty"`
	Finished    bool             `json:"finished"`
	Activity    ActivityResponse `json:"activity"`
}

type AccessResponse struct {
	User    string `json:"user"`
	StageID string `json:"stageId"`
	Allowed bool   `json:"allowed"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         int64          `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"projectId,omitempty"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

type ImportResponse struct {
	ProjectIDs []string `json:"projectIds"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Users:     nonNilSlice(p.Users),
		Teams:     nonNilSlice(p.Teams),
		FlowIDs:   nonNilSlice(p.FlowIDs),
		CreatedAt: int64(p.CreatedAt),
	}
}

func flowResponse(f domain.Flow) FlowResponse {
	ordered := pipeline.OrderedStages(f)
	stages := make([]StageResponse, 0, len(ordered))
	for _, s := range ordered {
		stages = append(stages, stageResponse(s))
	}
	return FlowResponse{
		ID:          f.ID,
		ProjectID:   f.ProjectID,
		Name:        f.Name,
		Description: f.Description,
		Stages:      stages,
		StageConfig: pipeline.FlowStageConfig(f),
		ActivityIDs: nonNilSlice(f.ActivityIDs),
	}
}

func stageResponse(s pipeline.ResolvedStage) StageResponse {
	return StageResponse{
		UID:                  s.UID,
		ID:                   s.ID,
		Key:                  s.Key,
		OperatorKey:          s.OperatorKey,
		Name:                 s.Name,
		Description:          s.Description,
		Rank:                 s.Rank,
		Tier:                 string(s.Tier),
		SupportsRevision:     s.SupportsRevision,
		ExpectedDurationDays: s.ExpectedDurationDays,
		Conditions:           s.Conditions,
		Skipped:              s.Skipped,
		Config:               s.Config,
	}
}

func stageRequests(in []StageRequest) []domain.Stage {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Stage, 0, len(in))
	for _, s := range in {
		out = append(out, domain.Stage{
			ID:                   s.ID,
			Key:                  s.Key,
			OperatorKey:          s.OperatorKey,
			Name:                 s.Name,
			Description:          s.Description,
			Order:                s.Order,
			Tier:                 domain.Tier(s.Tier),
			SupportsRevision:     s.SupportsRevision,
			ExpectedDurationDays: s.ExpectedDurationDays,
			Conditions:           s.Conditions,
			Skipped:              s.Skipped,
		})
	}
	return out
}

func activityResponse(a domain.Activity) ActivityResponse {
	res := ActivityResponse{
		ID:             a.ID,
		FlowID:         a.FlowID,
		Title:          a.Title,
		Deliverable:    a.Deliverable,
		CurrentStageID: a.CurrentStageID,
		SkippedStages:  nonNilSlice(a.SkippedStages),
		StageHistory:   make([]StageEntryResponse, 0, len(a.StageHistory)),
		StageReadBy:    map[string]map[string]int64{},
		Comments:       nonNilSlice(a.Comments.Items()),
		History:        nonNilSlice(a.History.Items()),
		CreatedAt:      int64(a.CreatedAt),
		CompletedAt:    millis(a.CompletedAt),
		TeamID:         a.TeamID,
	}
	for _, h := range a.StageHistory {
		res.StageHistory = append(res.StageHistory, StageEntryResponse{
			ID:          h.ID,
			StageID:     h.StageID,
			EnteredAt:   int64(h.EnteredAt),
			ExitedAt:    millis(h.ExitedAt),
			ClaimedBy:   h.ClaimedBy,
			ClaimedAt:   millis(h.ClaimedAt),
			Priority:    h.Priority,
			CompletedAt: millis(h.CompletedAt),
			SkippedAt:   millis(h.SkippedAt),
			Log:         nonNilSlice(h.Log.Items()),
		})
		if h.StageID == a.CurrentStageID && h.ExitedAt == nil {
			res.ClaimedBy = h.ClaimedBy
		}
	}
	for stage, readers := range a.StageReadBy {
		inner := make(map[string]int64, len(readers))
		for who, ts := range readers {
			inner[who] = int64(ts)
		}
		res.StageReadBy[stage] = inner
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         int64(e.TS),
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func millis(ts *domain.Timestamp) *int64 {
	if ts == nil {
		return nil
	}
	v := int64(*ts)
	return &v
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
