package engine

import (
	"context"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/logging"
	"stageline/internal/pipeline"
)

// StageAssignment replaces the teams and users assigned to a stage. User
// ids left nil are cleared.
type StageAssignment struct {
	AssignedTeamIDs []string
	AssignedUserIDs []string
}

// AssignTeamsToStage resolves stageRef against the flow's ordered stages and
// replaces the assignment of its configuration entry. The flow's stored
// configuration is rewritten in canonical form. It reports false when the
// flow has no such stage or no configuration entry exists for its key.
func (e Engine) AssignTeamsToStage(ctx context.Context, projectID, flowID, stageRef string, asg StageAssignment, actorID string) (domain.StageConfigEntry, bool, error) {
	return e.updateStageConfig(ctx, projectID, flowID, stageRef, actorID, events.StageAssigned, func(entry domain.StageConfigEntry) domain.StageConfigEntry {
		entry.AssignedTeamIDs = pipeline.UniqueIDs(asg.AssignedTeamIDs)
		entry.AssignedUserIDs = pipeline.UniqueIDs(asg.AssignedUserIDs)
		return entry
	})
}

// SetStageActive toggles whether a stage takes part in traversal.
// Inactive stages are skipped when activities advance.
func (e Engine) SetStageActive(ctx context.Context, projectID, flowID, stageRef string, active bool, actorID string) (domain.StageConfigEntry, bool, error) {
	return e.updateStageConfig(ctx, projectID, flowID, stageRef, actorID, events.StageAssigned, func(entry domain.StageConfigEntry) domain.StageConfigEntry {
		entry.Active = active
		return entry
	})
}

func (e Engine) updateStageConfig(ctx context.Context, projectID, flowID, stageRef, actorID, evtType string, apply func(domain.StageConfigEntry) domain.StageConfigEntry) (domain.StageConfigEntry, bool, error) {
	_, flow, err := e.State.ProjectFlow(projectID, flowID)
	if err != nil {
		return domain.StageConfigEntry{}, false, err
	}
	ts := e.now()
	actor := e.actor(actorID)
	key := stageRef
	stage, resolved := pipeline.FindStage(pipeline.OrderedStages(flow), stageRef)
	if resolved {
		key = pipeline.StageKey(stage)
	}
	entries := pipeline.FlowStageConfig(flow)
	var updated domain.StageConfigEntry
	found := false
	for i, entry := range entries {
		if !resolved || entry.StageKey != key {
			continue
		}
		entries[i] = apply(entry)
		updated = entries[i]
		found = true
	}
	flow.StageConfig = pipeline.Records(entries)

	payload := events.EventPayload{"stage_key": key, "found": found}
	if found {
		payload["active"] = updated.Active
		payload["assigned_team_ids"] = updated.AssignedTeamIDs
		payload["assigned_user_ids"] = updated.AssignedUserIDs
	}
	if err := e.emit(ctx, ts, evtType, projectID, "flow", flowID, actor, payload); err != nil {
		return domain.StageConfigEntry{}, false, err
	}
	e.State.PutFlow(flow)
	e.logger().Info("stage configuration updated",
		logging.FlowID(flowID), logging.StageID(key), logging.Actor(actor))
	return updated, found, nil
}

// StageConfig returns the canonical configuration of a flow.
func (e Engine) StageConfig(projectID, flowID string) ([]domain.StageConfigEntry, error) {
	_, flow, err := e.State.ProjectFlow(projectID, flowID)
	if err != nil {
		return nil, err
	}
	return pipeline.FlowStageConfig(flow), nil
}

// OrderedStages returns the resolved stage list of a flow.
func (e Engine) OrderedStages(projectID, flowID string) ([]pipeline.ResolvedStage, error) {
	_, flow, err := e.State.ProjectFlow(projectID, flowID)
	if err != nil {
		return nil, err
	}
	return pipeline.OrderedStages(flow), nil
}
