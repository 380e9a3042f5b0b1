package stagelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Stageline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ProjectID   string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set. The
	// server only honours it with legacy actor headers enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		BasePath:  "/v0",
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
	Color   string   `json:"color,omitempty"`
}

type Project struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Users     []User   `json:"users"`
	Teams     []Team   `json:"teams"`
	FlowIDs   []string `json:"flowIds"`
	CreatedAt int64    `json:"createdAt"`
}

// StageConfig is the canonical configuration of one stage.
type StageConfig struct {
	StageKey        string   `json:"stageKey"`
	Active          bool     `json:"active"`
	AssignedTeamIDs []string `json:"assignedTeamIds"`
	AssignedUserIDs []string `json:"assignedUserIds"`
	OptedOutUserIDs []string `json:"optedOutUserIds"`
}

// Stage is a stage definition. On responses UID and Rank are the resolved
// identity and position.
type Stage struct {
	UID                  string       `json:"uid,omitempty"`
	ID                   string       `json:"id,omitempty"`
	Key                  string       `json:"key,omitempty"`
	OperatorKey          string       `json:"operatorKey,omitempty"`
	Name                 string       `json:"name"`
	Description          string       `json:"description,omitempty"`
	Order                *int         `json:"order,omitempty"`
	Rank                 int          `json:"rank,omitempty"`
	SupportsRevision     bool         `json:"supportsRevision,omitempty"`
	ExpectedDurationDays int          `json:"expectedDurationDays,omitempty"`
	Skipped              bool         `json:"skipped,omitempty"`
	Config               *StageConfig `json:"stageConfig,omitempty"`
}

type Flow struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"projectId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Stages      []Stage       `json:"stages"`
	StageConfig []StageConfig `json:"stageConfig"`
	ActivityIDs []string      `json:"activityIds"`
}

type StageEntry struct {
	ID          string `json:"id"`
	StageID     string `json:"stageId"`
	EnteredAt   int64  `json:"enteredAt"`
	ExitedAt    *int64 `json:"exitedAt,omitempty"`
	ClaimedBy   string `json:"claimedBy,omitempty"`
	ClaimedAt   *int64 `json:"claimedAt,omitempty"`
	Priority    string `json:"priority,omitempty"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
	SkippedAt   *int64 `json:"skippedAt,omitempty"`
}

type Activity struct {
	ID             string       `json:"id"`
	FlowID         string       `json:"flowId"`
	Title          string       `json:"title"`
	Deliverable    string       `json:"deliverable,omitempty"`
	CurrentStageID string       `json:"currentStageId,omitempty"`
	ClaimedBy      string       `json:"claimedBy,omitempty"`
	SkippedStages  []string     `json:"skippedStages"`
	StageHistory   []StageEntry `json:"stageHistory"`
	CreatedAt      int64        `json:"createdAt"`
	CompletedAt    *int64       `json:"completedAt,omitempty"`
}

type ClaimResult struct {
	Claimed  bool     `json:"claimed"`
	Activity Activity `json:"activity"`
}

type CompleteResult struct {
	NextStageID string   `json:"nextStageId,omitempty"`
	Finished    bool     `json:"finished"`
	Activity    Activity `json:"activity"`
}

type Access struct {
	User    string `json:"user"`
	StageID string `json:"stageId"`
	Allowed bool   `json:"allowed"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         int64          `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"projectId"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// EventQuery narrows an event listing.
type EventQuery struct {
	Limit      int
	Cursor     string
	Type       string
	EntityKind string
	EntityID   string
}

// APIError wraps non-2xx responses. Code, Message and Details come from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project. The client keeps using its own ProjectID.
func (c *Client) CreateProject(ctx context.Context, id, name string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", map[string]any{"id": id, "name": name}, &resp)
	return resp, err
}

// Project fetches the client's project.
func (c *Client) Project(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(""), nil, &resp)
	return resp, err
}

func (c *Client) AddUser(ctx context.Context, id, name string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, c.projectPath("users"), map[string]any{"id": id, "name": name}, &resp)
	return resp, err
}

func (c *Client) CreateTeam(ctx context.Context, name string, userIDs []string) (Team, error) {
	var resp Team
	err := c.do(ctx, http.MethodPost, c.projectPath("teams"), map[string]any{"name": name, "userIds": userIDs}, &resp)
	return resp, err
}

func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var resp []Team
	err := c.do(ctx, http.MethodGet, c.projectPath("teams"), nil, &resp)
	return resp, err
}

// DeleteTeam removes a team and its stage assignments.
func (c *Client) DeleteTeam(ctx context.Context, teamID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath("teams/"+url.PathEscape(teamID)), nil, nil)
}

// CreateFlow creates a flow. Nil stages select the default pipeline.
func (c *Client) CreateFlow(ctx context.Context, id, name string, stages []Stage) (Flow, error) {
	body := map[string]any{"id": id, "name": name}
	if len(stages) > 0 {
		body["stages"] = stages
	}
	var resp Flow
	err := c.do(ctx, http.MethodPost, c.projectPath("flows"), body, &resp)
	return resp, err
}

func (c *Client) Flow(ctx context.Context, flowID string) (Flow, error) {
	var resp Flow
	err := c.do(ctx, http.MethodGet, c.flowPath(flowID, ""), nil, &resp)
	return resp, err
}

// Stages returns the ordered, resolved stages of a flow.
func (c *Client) Stages(ctx context.Context, flowID string) ([]Stage, error) {
	var resp []Stage
	err := c.do(ctx, http.MethodGet, c.flowPath(flowID, "stages"), nil, &resp)
	return resp, err
}

func (c *Client) AssignStage(ctx context.Context, flowID, stageID string, teamIDs, userIDs []string) (StageConfig, error) {
	body := map[string]any{"assignedTeamIds": teamIDs, "assignedUserIds": userIDs}
	var resp StageConfig
	err := c.do(ctx, http.MethodPut, c.flowPath(flowID, "stages/"+url.PathEscape(stageID)+"/assignment"), body, &resp)
	return resp, err
}

func (c *Client) SetStageActive(ctx context.Context, flowID, stageID string, active bool) (StageConfig, error) {
	var resp StageConfig
	err := c.do(ctx, http.MethodPut, c.flowPath(flowID, "stages/"+url.PathEscape(stageID)+"/active"), map[string]any{"active": active}, &resp)
	return resp, err
}

// StageAccess reports whether user may work on the stage. An empty user
// checks the authenticated actor.
func (c *Client) StageAccess(ctx context.Context, flowID, stageID, user string) (Access, error) {
	endpoint := c.flowPath(flowID, "stages/"+url.PathEscape(stageID)+"/access")
	if user != "" {
		endpoint += "?user=" + url.QueryEscape(user)
	}
	var resp Access
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateActivity(ctx context.Context, flowID, title, deliverable string) (Activity, error) {
	body := map[string]any{"title": title, "deliverable": deliverable}
	var resp Activity
	err := c.do(ctx, http.MethodPost, c.flowPath(flowID, "activities"), body, &resp)
	return resp, err
}

func (c *Client) Activities(ctx context.Context, flowID string) ([]Activity, error) {
	var resp []Activity
	err := c.do(ctx, http.MethodGet, c.flowPath(flowID, "activities"), nil, &resp)
	return resp, err
}

// ClaimActivity claims the current stage. A claim held by someone else
// surfaces as an *APIError with code claim_conflict.
func (c *Client) ClaimActivity(ctx context.Context, flowID, activityID, priority string) (ClaimResult, error) {
	var resp ClaimResult
	err := c.do(ctx, http.MethodPost, c.activityPath(flowID, activityID, "claim"), map[string]any{"priority": priority}, &resp)
	return resp, err
}

func (c *Client) UnclaimActivity(ctx context.Context, flowID, activityID string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, c.activityPath(flowID, activityID, "unclaim"), nil, &resp)
	return resp, err
}

func (c *Client) CompleteActivity(ctx context.Context, flowID, activityID string, skipStage bool, note string) (CompleteResult, error) {
	body := map[string]any{"skipStage": skipStage, "note": note}
	var resp CompleteResult
	err := c.do(ctx, http.MethodPost, c.activityPath(flowID, activityID, "complete"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, EventQuery{Limit: limit})
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, q EventQuery) (PaginatedEvents, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.EntityKind != "" {
		params.Set("entity_kind", q.EntityKind)
	}
	if q.EntityID != "" {
		params.Set("entity_id", q.EntityID)
	}
	endpoint := c.projectPath("events")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Snapshot downloads every project document as raw JSON.
func (c *Client) Snapshot(ctx context.Context) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodGet, "snapshot", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "projects/" + project
	}
	return fmt.Sprintf("projects/%s/%s", project, p)
}

func (c *Client) flowPath(flowID, p string) string {
	base := c.projectPath("flows/" + url.PathEscape(flowID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) activityPath(flowID, activityID, action string) string {
	return c.flowPath(flowID, "activities/"+url.PathEscape(activityID)+"/"+action)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
