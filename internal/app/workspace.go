// Package app binds the engine to a sqlite-backed workspace. Every mutation
// runs as one serialized session: load state, mutate, save state and events
// in a single transaction, then notify after-commit sinks.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"stageline/internal/clock"
	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/events"
	"stageline/internal/idgen"
	"stageline/internal/logging"
	"stageline/internal/migrate"
	"stageline/internal/repo"
	"stageline/internal/store"
	"stageline/internal/teams"
)

const (
	lockFile       = "write.lock"
	lockRetryDelay = 25 * time.Millisecond
)

type Options struct {
	Workspace string
	// Config overrides stageline.yml when set.
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock
	Tokens idgen.Source
	// Sinks receive events after they are committed.
	Sinks []events.Sink
}

// Workspace is the single writer for one .stageline directory.
type Workspace struct {
	Root   string
	Config *config.Config
	Repo   repo.Repo
	Logger *slog.Logger

	clock  clock.Clock
	tokens idgen.Source
	sinks  events.Multi
	conn   *sql.DB
	lock   *flock.Flock
	mu     sync.Mutex
}

// Open opens (and migrates) the workspace database.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	root := opts.Workspace
	if root == "" {
		root = "."
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(root)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	conn, err := db.Open(db.Config{Workspace: root})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	w := &Workspace{
		Root:   root,
		Config: cfg,
		Repo:   repo.Repo{DB: conn},
		Logger: logging.NewComponentLogger(opts.Logger, "workspace"),
		clock:  opts.Clock,
		tokens: opts.Tokens,
		sinks:  events.Multi(opts.Sinks),
		conn:   conn,
		lock:   flock.New(filepath.Join(db.Dir(root), lockFile)),
	}
	if w.clock == nil {
		w.clock = clock.NewMonotonic()
	}
	if w.tokens == nil {
		w.tokens = idgen.Random{}
	}
	return w, nil
}

func (w *Workspace) Close() error {
	return w.conn.Close()
}

// engine binds a fresh engine to st. The palette continues after the
// teams already stored so colors keep rotating across processes.
func (w *Workspace) engine(st *store.State, sink events.Sink) engine.Engine {
	e := engine.New(st, w.Config)
	e.Clock = w.clock
	e.Tokens = w.tokens
	e.Palette = teams.NewRoundRobinFrom(countTeams(st), w.Config.Teams.Palette...)
	e.Events = sink
	e.Logger = logging.NewComponentLogger(w.Logger, "engine")
	return e
}

func countTeams(st *store.State) int {
	n := 0
	for _, p := range st.Projects {
		n += len(p.Teams)
	}
	return n
}

// Update runs fn against freshly loaded state under the process mutex and
// the workspace file lock. When fn succeeds, state and the events it
// emitted are committed together and returned with their ids. When fn
// fails nothing is written.
func (w *Workspace) Update(ctx context.Context, fn func(ctx context.Context, e engine.Engine) error) ([]domain.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	locked, err := w.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !locked {
		return nil, errors.New("workspace is locked by another writer")
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			w.Logger.Warn("failed to release workspace lock", logging.Error(err))
		}
	}()

	st, err := w.Repo.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	rec := &events.Recorder{}
	if err := fn(ctx, w.engine(st, rec)); err != nil {
		return nil, err
	}

	var committed []domain.Event
	err = w.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := w.Repo.SaveStateTx(ctx, tx, st); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		stored, err := w.Repo.InsertEventsTx(ctx, tx, rec.Events())
		if err != nil {
			return err
		}
		committed = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, evt := range committed {
		if err := w.sinks.Append(ctx, evt); err != nil {
			w.Logger.Warn("event sink failed", slog.String("event_type", evt.Type), logging.Error(err))
		}
	}
	w.Logger.Debug("workspace updated", slog.Int("events", len(committed)))
	return committed, nil
}

// View runs fn against loaded state. Mutations made by fn are discarded.
func (w *Workspace) View(ctx context.Context, fn func(e engine.Engine) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, err := w.Repo.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	return fn(w.engine(st, events.Discard))
}

// Import merges snapshot projects into the workspace. Existing projects
// with the same id are replaced when replace is set and rejected otherwise.
func (w *Workspace) Import(ctx context.Context, snap store.Snapshot, replace bool) ([]string, error) {
	var ids []string
	_, err := w.Update(ctx, func(_ context.Context, e engine.Engine) error {
		for _, doc := range snap.Projects {
			var err error
			if replace {
				err = e.State.ReplaceProjectDocument(doc)
			} else {
				err = e.State.AddProjectDocument(doc)
			}
			if err != nil {
				return fmt.Errorf("import project %s: %w", doc.ID, err)
			}
			ids = append(ids, doc.ID)
		}
		return nil
	})
	return ids, err
}

// Export returns the whole state as a snapshot.
func (w *Workspace) Export(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := w.View(ctx, func(e engine.Engine) error {
		snap = e.State.Snapshot()
		return nil
	})
	return snap, err
}

// ResolveProject picks the project a command targets: the override, then
// the configured project, then the only stored project.
func (w *Workspace) ResolveProject(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if w.Config != nil && w.Config.Project.ID != "" {
		return w.Config.Project.ID, nil
	}
	projects, err := w.Repo.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	switch len(projects) {
	case 0:
		return "", errors.New("no projects exist; create one with sl project create")
	case 1:
		return projects[0].ID, nil
	default:
		return "", errors.New("multiple projects exist; specify --project")
	}
}

// Events lists committed events newest first.
func (w *Workspace) Events(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return w.Repo.LatestEvents(ctx, f)
}

// ExportProject returns a snapshot holding the stored document of a single
// project.
func (w *Workspace) ExportProject(ctx context.Context, projectID string) (store.Snapshot, error) {
	doc, err := w.Repo.GetProjectDocument(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return store.Snapshot{}, &store.NotFoundError{Kind: "project", ID: projectID}
	}
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Projects: []store.ProjectDocument{doc}}, nil
}

// FollowEvents reports events committed after the call starts, oldest first,
// polling every interval until ctx is done or fn fails.
func (w *Workspace) FollowEvents(ctx context.Context, f repo.EventFilter, interval time.Duration, fn func(domain.Event) error) error {
	cursor, err := w.Repo.LatestEventID(ctx, f.ProjectID)
	if err != nil {
		return err
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		f.Cursor = cursor
		evts, err := w.Repo.EventsAfter(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, evt := range evts {
			if err := fn(evt); err != nil {
				return err
			}
			cursor = evt.ID
		}
		if len(evts) == f.Limit {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
