package events

import (
	"context"
	"errors"
	"slices"
	"sync"

	"stageline/internal/domain"
)

// Event types emitted by the engine.
const (
	ActivityCreated        = "activity.created"
	ActivityClaimed        = "activity.claimed"
	ActivityClaimBlocked   = "activity.claim_blocked"
	ActivityUnclaimed      = "activity.unclaimed"
	ActivityStageCompleted = "activity.stage_completed"
	ActivityStageSkipped   = "activity.stage_skipped"
	ActivityAdvanced       = "activity.advanced"
	ActivityFinished       = "activity.finished"
	ProjectCreated         = "project.created"
	UserAdded              = "user.added"
	FlowCreated            = "flow.created"
	StageAssigned          = "stage.assigned"
	TeamCreated            = "team.created"
	TeamUpdated            = "team.updated"
	TeamDeleted            = "team.deleted"
	LegacyMigrated         = "legacy.migrated"
)

// Sink receives events as mutations happen.
type Sink interface {
	Append(ctx context.Context, evt domain.Event) error
}

// Recorder buffers events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Append(_ context.Context, evt domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Append(ctx context.Context, evt domain.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Append(context.Context, domain.Event) error { return nil }

// Discard drops every event.
var Discard Sink = discard{}
