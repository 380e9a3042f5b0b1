package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/store"
)

// Repo persists project documents and the event log.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const busyRetryMaxElapsed = 10 * time.Second

func newBusyBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = busyRetryMaxElapsed
	return bo
}

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// WithTx runs fn inside a transaction, retrying the whole unit when SQLite
// reports contention.
func (r Repo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return backoff.Retry(func() error {
		err := r.runTx(ctx, fn)
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newBusyBackoff(), ctx))
}

func (r Repo) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadState rebuilds the arena from every stored project document.
func (r Repo) LoadState(ctx context.Context) (*store.State, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,doc_json FROM projects ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	st := store.NewState()
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var doc store.ProjectDocument
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", id, err)
		}
		if err := st.AddProjectDocument(doc); err != nil {
			return nil, fmt.Errorf("load project %s: %w", id, err)
		}
	}
	return st, rows.Err()
}

// SaveStateTx writes every project of st as one document row each.
func (r Repo) SaveStateTx(ctx context.Context, tx *sql.Tx, st *store.State) error {
	for i, id := range st.ProjectIDs {
		if err := r.saveProjectTx(ctx, tx, i, st.ProjectDocument(id)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) saveProjectTx(ctx context.Context, tx *sql.Tx, position int, doc store.ProjectDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", doc.ID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(id,position,name,doc_json,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET position=excluded.position, name=excluded.name, doc_json=excluded.doc_json, updated_at=excluded.updated_at`,
		doc.ID, position, doc.Name, string(payload), now, now)
	return err
}

// GetProjectDocument reads one stored project without loading the rest.
func (r Repo) GetProjectDocument(ctx context.Context, id string) (store.ProjectDocument, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM projects WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return store.ProjectDocument{}, ErrNotFound
	}
	if err != nil {
		return store.ProjectDocument{}, err
	}
	var doc store.ProjectDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return store.ProjectDocument{}, fmt.Errorf("decode project %s: %w", id, err)
	}
	return doc, nil
}

type ProjectSummary struct {
	ID        string
	Name      string
	UpdatedAt string
}

func (r Repo) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,updated_at FROM projects ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ProjectSummary
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// InsertEventsTx appends evts in order and returns them with their ids.
func (r Repo) InsertEventsTx(ctx context.Context, tx *sql.Tx, evts []domain.Event) ([]domain.Event, error) {
	w := events.Writer{}
	out := make([]domain.Event, 0, len(evts))
	for _, evt := range evts {
		id, err := w.Append(ctx, tx, evt)
		if err != nil {
			return nil, err
		}
		evt.ID = id
		out = append(out, evt)
	}
	return out, nil
}

// EventFilter narrows event queries. Zero values match everything.
type EventFilter struct {
	Limit      int
	Cursor     int64
	ProjectID  string
	Type       string
	EntityKind string
	EntityID   string
}

func (f EventFilter) where(cursorOp string) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id"+cursorOp+"?")
		args = append(args, f.Cursor)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// LatestEvents returns matching events newest first. A cursor excludes ids
// at or above it.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	where, args := f.where("<")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	return r.queryEvents(ctx, query, append(args, f.Limit)...)
}

// EventsAfter returns events with ids greater than the cursor in ascending
// order.
func (r Repo) EventsAfter(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	where, args := f.where(">")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	return r.queryEvents(ctx, query, append(args, f.Limit)...)
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE (?='' OR project_id=?)`, projectID, projectID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			ts      int64
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.TS = domain.Timestamp(ts)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
