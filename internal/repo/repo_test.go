package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/migrate"
	"stageline/internal/store"
)

func setupRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return Repo{DB: conn}
}

func sampleState(t *testing.T) *store.State {
	t.Helper()
	st := store.NewState()
	st.PutProject(domain.Project{ID: "p-b", Name: "Bravo", Users: []domain.User{{ID: "u1", Name: "Alex"}}, Teams: []domain.Team{}})
	st.PutProject(domain.Project{ID: "p-a", Name: "Alpha", Users: []domain.User{}, Teams: []domain.Team{}})
	require.NoError(t, st.AddFlow("p-b", domain.Flow{ID: "f1", Name: "Main"}))
	require.NoError(t, st.AddActivity("f1", domain.Activity{
		ID:             "a1",
		Title:          "Write intro",
		CurrentStageID: "starter",
		History:        domain.Seq[domain.Line]{}.Append(domain.Line{ID: "h1", Text: "created"}),
	}))
	return st
}

func TestSaveAndLoadStatePreservesOrderAndNesting(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	st := sampleState(t)

	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error { return r.SaveStateTx(ctx, tx, st) }))

	loaded, err := r.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-b", "p-a"}, loaded.ProjectIDs)
	assert.Equal(t, []string{"f1"}, loaded.Projects["p-b"].FlowIDs)
	assert.Equal(t, 1, loaded.Activities["a1"].History.Len())

	want, err := json.Marshal(st.Snapshot())
	require.NoError(t, err)
	got, err := json.Marshal(loaded.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestSaveStateUpserts(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	st := sampleState(t)
	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error { return r.SaveStateTx(ctx, tx, st) }))

	p := st.Projects["p-a"]
	p.Name = "Alpha Prime"
	st.PutProject(p)
	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error { return r.SaveStateTx(ctx, tx, st) }))

	summaries, err := r.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Alpha Prime", summaries[1].Name)

	doc, err := r.GetProjectDocument(ctx, "p-b")
	require.NoError(t, err)
	require.Len(t, doc.Flows, 1)
	assert.Equal(t, "a1", doc.Flows[0].Activities[0].ID)

	_, err = r.GetProjectDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventQueries(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	evts := []domain.Event{
		{TS: 10, Type: "activity.created", ProjectID: "p1", EntityKind: "activity", EntityID: "a1", ActorID: "Alex", Payload: map[string]any{"title": "Intro"}},
		{TS: 11, Type: "activity.claimed", ProjectID: "p1", EntityKind: "activity", EntityID: "a1", ActorID: "Alex"},
		{TS: 12, Type: "team.created", ProjectID: "p2", EntityKind: "team", EntityID: "t1", ActorID: "Beth"},
	}
	var stored []domain.Event
	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = r.InsertEventsTx(ctx, tx, evts)
		return err
	}))
	require.Len(t, stored, 3)
	assert.Less(t, stored[0].ID, stored[1].ID)

	latest, err := r.LatestEvents(ctx, EventFilter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "activity.claimed", latest[0].Type)
	assert.Equal(t, domain.Timestamp(11), latest[0].TS)
	assert.Equal(t, "Intro", latest[1].Payload["title"])

	page, err := r.LatestEvents(ctx, EventFilter{Limit: 1, Cursor: stored[2].ID})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, stored[1].ID, page[0].ID)

	after, err := r.EventsAfter(ctx, EventFilter{Cursor: stored[0].ID})
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "team.created", after[1].Type)

	byType, err := r.LatestEvents(ctx, EventFilter{Type: "team.created", EntityKind: "team", EntityID: "t1"})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	maxID, err := r.LatestEventID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, stored[2].ID, maxID)
	maxP1, err := r.LatestEventID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, stored[1].ID, maxP1)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.SaveStateTx(ctx, tx, sampleState(t)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	st, err := r.LoadState(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.ProjectIDs)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isBusy(errors.New("no such table")))
	assert.False(t, isBusy(nil))
}
