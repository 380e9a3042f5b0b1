package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"stageline/internal/clock"
	"stageline/internal/config"
	"stageline/internal/domain"
	"stageline/internal/engine/auth"
	"stageline/internal/events"
	"stageline/internal/idgen"
	"stageline/internal/logging"
	"stageline/internal/store"
	"stageline/internal/teams"
)

const fallbackActor = "Someone"

// fallbackClock serves engines built without a Clock so that they still
// share one strictly increasing sequence.
var fallbackClock = clock.NewMonotonic()

// Engine drives every mutation of the state arena. It holds no state of
// its own beyond injected capabilities; callers serialize access to State.
type Engine struct {
	State        *store.State
	Clock        clock.Clock
	Tokens       idgen.Source
	Palette      teams.Palette
	Events       events.Sink
	Logger       *slog.Logger
	DefaultActor string
	Access       auth.Guard
}

func New(state *store.State, cfg *config.Config) Engine {
	e := Engine{
		State:   state,
		Clock:   clock.NewMonotonic(),
		Tokens:  idgen.Random{},
		Palette: teams.NewRoundRobin(),
		Events:  events.Discard,
		Logger:  logging.NewNop(),
	}
	if cfg != nil {
		e.Palette = teams.NewRoundRobin(cfg.Teams.Palette...)
		e.DefaultActor = cfg.Actor.Default
		e.Access = auth.Guard{Enforce: cfg.Access.EnforceStageAccess}
	}
	return e
}

func (e Engine) clk() clock.Clock {
	if e.Clock == nil {
		return fallbackClock
	}
	return e.Clock
}

func (e Engine) now() domain.Timestamp {
	return e.clk().Now()
}

func (e Engine) token() string {
	if e.Tokens == nil {
		return idgen.Random{}.Token()
	}
	return e.Tokens.Token()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.NewNop()
	}
	return e.Logger
}

// actor resolves the acting user name, falling back to the configured
// default.
func (e Engine) actor(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if e.DefaultActor != "" {
		return e.DefaultActor
	}
	return fallbackActor
}

func (e Engine) emit(ctx context.Context, ts domain.Timestamp, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	if e.Events == nil {
		return nil
	}
	evt := domain.Event{
		TS:         ts,
		Type:       evtType,
		ProjectID:  projectID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	if err := e.Events.Append(ctx, evt); err != nil {
		return fmt.Errorf("emit %s: %w", evtType, err)
	}
	return nil
}
