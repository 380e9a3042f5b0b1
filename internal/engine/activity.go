package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/logging"
	"stageline/internal/pipeline"
)

// ActivityCreateOptions are parameters for creating an activity.
type ActivityCreateOptions struct {
	ProjectID   string
	FlowID      string
	ID          string
	Title       string
	Deliverable string
	// StageID places the activity on a specific stage instead of the
	// flow's first active stage. It must match a stage identity.
	StageID string
	ActorID string
}

// CompleteOptions control how the current stage is left.
type CompleteOptions struct {
	SkipStage bool
	Note      string
}

// resolvable reports whether stageID names a stage of the flow. Activities
// whose stage was removed from the flow are left untouched.
func resolvable(ordered []pipeline.ResolvedStage, stageID string) bool {
	if stageID == "" {
		return false
	}
	_, ok := pipeline.StageByUID(ordered, stageID)
	return ok
}

func stageName(ordered []pipeline.ResolvedStage, stageID, fallback string) string {
	if s, ok := pipeline.StageByUID(ordered, stageID); ok && s.Name != "" {
		return s.Name
	}
	return fallback
}

func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Activity{}, errors.New("title is required")
	}
	project, flow, err := e.State.ProjectFlow(opts.ProjectID, opts.FlowID)
	if err != nil {
		return domain.Activity{}, err
	}
	ts := e.now()
	actor := e.actor(opts.ActorID)
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("a-%d", ts)
	}
	if _, exists := e.State.Activities[id]; exists {
		return domain.Activity{}, fmt.Errorf("activity %q already exists", id)
	}

	ordered := pipeline.OrderedStages(flow)
	var target pipeline.ResolvedStage
	var found bool
	if opts.StageID != "" {
		target, found = pipeline.StageByUID(ordered, opts.StageID)
	} else {
		target, found = pipeline.FirstActiveStage(ordered)
	}

	created := fmt.Sprintf("%s created this activity", actor)
	activity := domain.Activity{
		ID:            id,
		Title:         opts.Title,
		Deliverable:   opts.Deliverable,
		SkippedStages: []string{},
		StageHistory:  []domain.StageHistoryEntry{},
		StageReadBy:   map[string]map[string]domain.Timestamp{},
		History:       domain.SeqOf(line(fmt.Sprintf("h-%d", ts), created, ts)),
		CreatedAt:     ts,
	}
	if found {
		entry := e.newEntry(target.UID, ts)
		entry.Log = domain.SeqOf(line(fmt.Sprintf("log-%d", ts), created, ts))
		activity.CurrentStageID = target.UID
		activity.StageHistory = append(activity.StageHistory, entry)
		activity.StageReadBy[target.UID] = map[string]domain.Timestamp{}
	}

	if err := e.emit(ctx, ts, events.ActivityCreated, project.ID, "activity", id, actor, events.EventPayload{
		"flow_id":  flow.ID,
		"stage_id": activity.CurrentStageID,
		"title":    activity.Title,
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := e.State.AddActivity(flow.ID, activity); err != nil {
		return domain.Activity{}, err
	}
	e.logger().Info("activity created",
		logging.ProjectID(project.ID), logging.FlowID(flow.ID), logging.ActivityID(id),
		logging.StageID(activity.CurrentStageID), logging.Actor(actor))
	return e.State.Activities[id], nil
}

// ClaimActivity gives actor exclusive occupancy of the activity's current
// stage. It reports false, leaving state untouched, when another actor
// already holds the claim or no current stage can be resolved.
func (e Engine) ClaimActivity(ctx context.Context, projectID, flowID, activityID, priority, actorID string) (bool, error) {
	flow, a, err := e.State.FlowActivity(projectID, flowID, activityID)
	if err != nil {
		return false, err
	}
	ts := e.now()
	actor := e.actor(actorID)
	ordered := pipeline.OrderedStages(flow)
	tr := e.EnsureStageTracking(a, firstNonEmpty(a.CurrentStageID, a.LegacyStageID), ts)
	if !resolvable(ordered, tr.CurrentStageID) {
		return false, nil
	}
	if err := e.Access.Check(e.State, flow, tr.CurrentStageID, actor); err != nil {
		return false, err
	}
	idx := tr.Latest()
	entry := tr.StageHistory[idx]
	if entry.ClaimedBy != "" && entry.ClaimedBy != actor {
		e.logger().Info("claim blocked",
			logging.ActivityID(a.ID), logging.StageID(tr.CurrentStageID),
			logging.Actor(actor), "claimed_by", entry.ClaimedBy)
		return false, e.emit(ctx, ts, events.ActivityClaimBlocked, projectID, "activity", a.ID, actor, events.EventPayload{
			"stage_id":   tr.CurrentStageID,
			"claimed_by": entry.ClaimedBy,
		})
	}

	logText := actor + " claimed"
	name := stageName(ordered, tr.CurrentStageID, "stage")
	summary := fmt.Sprintf("%s claimed %s", actor, name)
	if priority != "" {
		logText += fmt.Sprintf(" (%s)", priority)
		summary += fmt.Sprintf(" (priority: %s)", priority)
	}
	entry.ClaimedBy = actor
	entry.ClaimedAt = ts.Ptr()
	entry.Priority = priority
	entry.Log = entry.Log.Append(line(fmt.Sprintf("log-%d", ts), logText, ts))
	tr.StageHistory[idx] = entry
	stamp(tr.StageReadBy, tr.CurrentStageID, actor, ts)

	a.CurrentStageID = tr.CurrentStageID
	a.StageHistory = tr.StageHistory
	a.StageReadBy = tr.StageReadBy
	a.Comments = a.Comments.Append(systemComment(fmt.Sprintf("c-%d", ts), actor, summary, ts))
	a.History = a.History.Append(line(fmt.Sprintf("h-%d", ts), summary, ts))

	if err := e.emit(ctx, ts, events.ActivityClaimed, projectID, "activity", a.ID, actor, events.EventPayload{
		"stage_id": tr.CurrentStageID,
		"priority": priority,
	}); err != nil {
		return false, err
	}
	e.State.PutActivity(a)
	e.logger().Info("activity claimed",
		logging.ActivityID(a.ID), logging.StageID(tr.CurrentStageID), logging.Actor(actor))
	return true, nil
}

// UnclaimActivity releases the current stage. Any actor may release a
// claim; the original claim time is kept.
func (e Engine) UnclaimActivity(ctx context.Context, projectID, flowID, activityID, actorID string) (bool, error) {
	flow, a, err := e.State.FlowActivity(projectID, flowID, activityID)
	if err != nil {
		return false, err
	}
	ts := e.now()
	actor := e.actor(actorID)
	ordered := pipeline.OrderedStages(flow)
	tr := e.EnsureStageTracking(a, firstNonEmpty(a.CurrentStageID, a.LegacyStageID), ts)
	if !resolvable(ordered, tr.CurrentStageID) {
		return false, nil
	}
	idx := tr.Latest()
	entry := tr.StageHistory[idx]
	previous := entry.ClaimedBy
	entry.ClaimedBy = ""
	entry.Priority = ""
	entry.Log = entry.Log.Append(line(fmt.Sprintf("log-%d", ts), actor+" unclaimed", ts))
	tr.StageHistory[idx] = entry
	stamp(tr.StageReadBy, tr.CurrentStageID, actor, ts)

	summary := fmt.Sprintf("%s unclaimed %s", actor, stageName(ordered, tr.CurrentStageID, "stage"))
	a.CurrentStageID = tr.CurrentStageID
	a.StageHistory = tr.StageHistory
	a.StageReadBy = tr.StageReadBy
	a.Comments = a.Comments.Append(systemComment(fmt.Sprintf("c-%d", ts), actor, summary, ts))
	a.History = a.History.Append(line(fmt.Sprintf("h-%d", ts), summary, ts))

	if err := e.emit(ctx, ts, events.ActivityUnclaimed, projectID, "activity", a.ID, actor, events.EventPayload{
		"stage_id":   tr.CurrentStageID,
		"claimed_by": previous,
	}); err != nil {
		return false, err
	}
	e.State.PutActivity(a)
	e.logger().Info("activity unclaimed",
		logging.ActivityID(a.ID), logging.StageID(tr.CurrentStageID), logging.Actor(actor))
	return true, nil
}

// CompleteActivity leaves the current stage, either completing or skipping
// it, and advances to the next eligible stage. It returns the new stage id,
// or "" once the pipeline is finished. Completing a finished activity is a
// no-op.
func (e Engine) CompleteActivity(ctx context.Context, projectID, flowID, activityID string, opts CompleteOptions, actorID string) (string, error) {
	flow, a, err := e.State.FlowActivity(projectID, flowID, activityID)
	if err != nil {
		return "", err
	}
	if a.CompletedAt != nil {
		return "", nil
	}
	ts := e.now()
	actor := e.actor(actorID)
	ordered := pipeline.OrderedStages(flow)
	tr := e.EnsureStageTracking(a, firstNonEmpty(a.CurrentStageID, a.LegacyStageID), ts)
	current := tr.CurrentStageID
	if !resolvable(ordered, current) {
		return "", nil
	}
	if err := e.Access.Check(e.State, flow, current, actor); err != nil {
		return "", err
	}
	name := stageName(ordered, current, "stage")
	verb := "completed"
	if opts.SkipStage {
		verb = "skipped"
	}
	message := fmt.Sprintf("%s %s %s", actor, verb, name)
	note := strings.TrimSpace(opts.Note)

	idx := tr.Latest()
	entry := tr.StageHistory[idx]
	entry.ExitedAt = ts.Ptr()
	if opts.SkipStage {
		entry.SkippedAt = ts.Ptr()
	} else {
		entry.CompletedAt = ts.Ptr()
	}
	entry.Log = entry.Log.Append(line(fmt.Sprintf("log-%d", ts), message, ts))
	if note != "" {
		entry.Log = entry.Log.Append(line(fmt.Sprintf("log-%d-note", ts), "Note: "+note, ts))
	}
	tr.StageHistory[idx] = entry

	skipped := slices.Clone(a.SkippedStages)
	if skipped == nil {
		skipped = []string{}
	}
	if opts.SkipStage {
		skipped = pipeline.UniqueIDs(skipped, []string{current})
	}
	next, advanced := pipeline.NextStageID(ordered, current, skipped)

	history := a.History.Append(line(fmt.Sprintf("h-%d", ts), message, ts))
	stamp(tr.StageReadBy, current, actor, ts)
	if advanced {
		nextName := stageName(ordered, next, "next stage")
		nextEntry := e.newEntry(next, ts)
		nextEntry.Log = domain.SeqOf(line(fmt.Sprintf("log-%d-enter", ts), fmt.Sprintf("%s moved to %s", actor, nextName), ts))
		tr.StageHistory = append(tr.StageHistory, nextEntry)
		if _, ok := tr.StageReadBy[next]; !ok {
			tr.StageReadBy[next] = map[string]domain.Timestamp{}
		}
		history = history.Append(line(fmt.Sprintf("h-%d-advance", ts), fmt.Sprintf("%s advanced to %s", actor, nextName), ts))
	} else {
		history = history.Append(line(fmt.Sprintf("h-%d-finish", ts), actor+" completed the activity", ts))
	}
	comments := a.Comments.Append(systemComment(fmt.Sprintf("c-%d", ts), actor, message, ts))
	if note != "" {
		history = history.Append(line(fmt.Sprintf("h-%d-note", ts), fmt.Sprintf("%s noted: %s", actor, note), ts))
		comments = comments.Append(systemComment(fmt.Sprintf("c-%d-note", ts), actor, fmt.Sprintf("Note on %s: %s", name, note), ts))
	}

	a.CurrentStageID = current
	if advanced {
		a.CurrentStageID = next
	} else {
		a.CompletedAt = ts.Ptr()
	}
	a.SkippedStages = skipped
	a.StageHistory = tr.StageHistory
	a.StageReadBy = tr.StageReadBy
	a.Comments = comments
	a.History = history

	stageEvent := events.ActivityStageCompleted
	if opts.SkipStage {
		stageEvent = events.ActivityStageSkipped
	}
	if err := e.emit(ctx, ts, stageEvent, projectID, "activity", a.ID, actor, events.EventPayload{
		"stage_id": current,
		"note":     note,
	}); err != nil {
		return "", err
	}
	if advanced {
		err = e.emit(ctx, ts, events.ActivityAdvanced, projectID, "activity", a.ID, actor, events.EventPayload{
			"from_stage_id": current,
			"to_stage_id":   next,
		})
	} else {
		err = e.emit(ctx, ts, events.ActivityFinished, projectID, "activity", a.ID, actor, events.EventPayload{
			"stage_id": current,
		})
	}
	if err != nil {
		return "", err
	}
	e.State.PutActivity(a)
	e.logger().Info("activity stage "+verb,
		logging.ActivityID(a.ID), logging.StageID(current), logging.Actor(actor), "next_stage_id", next)
	return next, nil
}
