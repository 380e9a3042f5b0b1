package stagelinesdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stageline/internal/app"
	"stageline/internal/config"
	"stageline/internal/server"
)

const secret = "sdk-secret"

func newClient(t *testing.T, actor string) (*Client, func(actor string) *Client) {
	t.Helper()
	ws, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: config.Default("")})
	require.NoError(t, err)
	handler, err := server.New(server.Config{
		Workspace: ws,
		BasePath:  "/v0",
		Auth:      server.AuthConfig{JWTSecret: secret},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		ws.Close()
	})
	forActor := func(actor string) *Client {
		token, err := server.SignToken(secret, actor, time.Hour)
		require.NoError(t, err)
		c := New(srv.URL, "demo")
		c.BearerToken = token
		return c
	}
	return forActor(actor), forActor
}

func TestClientDrivesActivityThroughStages(t *testing.T) {
	ctx := context.Background()
	alex, forActor := newClient(t, "Alex")

	p, err := alex.CreateProject(ctx, "demo", "Demo")
	require.NoError(t, err)
	require.Equal(t, "demo", p.ID)

	_, err = alex.AddUser(ctx, "u-alex", "Alex")
	require.NoError(t, err)
	team, err := alex.CreateTeam(ctx, "Builders", []string{"u-alex"})
	require.NoError(t, err)

	flow, err := alex.CreateFlow(ctx, "f1", "Launch", nil)
	require.NoError(t, err)
	stages, err := alex.Stages(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, stages, 9)
	require.Equal(t, "starter", stages[0].OperatorKey)

	cfg, err := alex.AssignStage(ctx, flow.ID, "starter", []string{team.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{team.ID}, cfg.AssignedTeamIDs)

	act, err := alex.CreateActivity(ctx, flow.ID, "Write brief", "brief.md")
	require.NoError(t, err)
	require.NotEmpty(t, act.CurrentStageID)

	access, err := alex.StageAccess(ctx, flow.ID, act.CurrentStageID, "")
	require.NoError(t, err)
	require.True(t, access.Allowed)
	access, err = alex.StageAccess(ctx, flow.ID, act.CurrentStageID, "Sam")
	require.NoError(t, err)
	require.False(t, access.Allowed)

	claim, err := alex.ClaimActivity(ctx, flow.ID, act.ID, "high")
	require.NoError(t, err)
	require.True(t, claim.Claimed)
	require.Equal(t, "Alex", claim.Activity.ClaimedBy)

	_, err = forActor("Sam").ClaimActivity(ctx, flow.ID, act.ID, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 409, apiErr.StatusCode)
	require.Equal(t, "claim_conflict", apiErr.Code)
	require.Equal(t, "Alex", apiErr.Details["claimedBy"])

	done, err := alex.CompleteActivity(ctx, flow.ID, act.ID, false, "")
	require.NoError(t, err)
	require.NotEmpty(t, done.NextStageID)
	require.NotEqual(t, act.CurrentStageID, done.NextStageID)
	require.False(t, done.Finished)

	for i := 0; i < len(stages) && !done.Finished; i++ {
		done, err = alex.CompleteActivity(ctx, flow.ID, act.ID, true, "not needed")
		require.NoError(t, err)
	}
	require.True(t, done.Finished)
	require.NotNil(t, done.Activity.CompletedAt)

	page, err := alex.EventsPage(ctx, EventQuery{Limit: 100, EntityKind: "activity", EntityID: act.ID})
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	for _, evt := range page.Items {
		require.Equal(t, act.ID, evt.EntityID)
	}

	snap, err := alex.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, string(snap), `"Write brief"`)
}

func TestClientReportsErrorEnvelope(t *testing.T) {
	c, _ := newClient(t, "Alex")
	c.ProjectID = "missing"
	_, err := c.Project(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 404, apiErr.StatusCode)
	require.Equal(t, "not_found", apiErr.Code)
	require.NotEmpty(t, apiErr.Message)
}

func TestClientWithoutCredentialsIsRejected(t *testing.T) {
	c, _ := newClient(t, "Alex")
	c.BearerToken = ""
	_, err := c.Teams(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 401, apiErr.StatusCode)
}
