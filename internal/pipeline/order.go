package pipeline

import (
	"sort"

	"stageline/internal/domain"
)

// ResolvedStage is a flow stage annotated with its resolved identity,
// position and configuration.
type ResolvedStage struct {
	domain.Stage
	UID    string                   `json:"uid"`
	Rank   int                      `json:"rank"`
	Config *domain.StageConfigEntry `json:"stageConfig"`
}

// Identity resolves a stage id: explicit id, then key, then name.
func Identity(s domain.Stage) string {
	return firstNonEmpty(s.ID, s.Key, s.Name)
}

// StageKey is the key used to match a stage against its configuration.
func StageKey(s ResolvedStage) string {
	return firstNonEmpty(s.OperatorKey, s.Key, s.UID)
}

// OrderedStages returns the effective stage list of flow sorted by order.
// Flows without stages of their own use the default template.
func OrderedStages(flow domain.Flow) []ResolvedStage {
	stages := flow.Stages
	if len(stages) == 0 {
		stages = templateStages()
	}
	config := FlowStageConfig(flow)
	byKey := make(map[string]domain.StageConfigEntry, len(config))
	for _, entry := range config {
		byKey[entry.StageKey] = entry
	}

	out := make([]ResolvedStage, 0, len(stages))
	for idx, stage := range stages {
		rs := ResolvedStage{Stage: stage}
		rs.Rank = idx
		if stage.Order != nil {
			rs.Rank = *stage.Order
		}
		order := rs.Rank
		rs.Order = &order
		rs.OperatorKey = firstNonEmpty(stage.OperatorKey, stage.Key)
		if rs.Tier == "" {
			rs.Tier = templateTier(idx)
		}
		rs.UID = Identity(stage)
		if entry, ok := byKey[rs.OperatorKey]; ok {
			entry := entry
			rs.Config = &entry
			rs.Skipped = stage.Skipped || !entry.Active
		}
		out = append(out, rs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// FirstActiveStage returns the first stage that is not skipped, falling back
// to the first stage. It reports false only for an empty list.
func FirstActiveStage(ordered []ResolvedStage) (ResolvedStage, bool) {
	for _, s := range ordered {
		if !s.Skipped {
			return s, true
		}
	}
	if len(ordered) == 0 {
		return ResolvedStage{}, false
	}
	return ordered[0], true
}

// NextStageID scans forward from currentID and returns the first stage that
// is neither skipped nor listed in skipped. It reports false when the
// pipeline has no further stage or currentID is unknown.
func NextStageID(ordered []ResolvedStage, currentID string, skipped []string) (string, bool) {
	if currentID == "" {
		return "", false
	}
	skippedSet := make(map[string]bool, len(skipped))
	for _, id := range skipped {
		skippedSet[id] = true
	}
	start := -1
	for i, s := range ordered {
		if s.UID == currentID {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}
	for _, candidate := range ordered[start+1:] {
		if candidate.Skipped || skippedSet[candidate.UID] {
			continue
		}
		return candidate.UID, true
	}
	return "", false
}

// StageByUID finds a stage by its resolved identity only.
func StageByUID(ordered []ResolvedStage, uid string) (ResolvedStage, bool) {
	for _, s := range ordered {
		if s.UID == uid {
			return s, true
		}
	}
	return ResolvedStage{}, false
}

// FindStage matches ref against a stage's identity, operator key or raw key.
func FindStage(ordered []ResolvedStage, ref string) (ResolvedStage, bool) {
	if ref == "" {
		return ResolvedStage{}, false
	}
	for _, s := range ordered {
		if s.UID == ref || s.OperatorKey == ref || s.Key == ref {
			return s, true
		}
	}
	return ResolvedStage{}, false
}

// ActivityStageID resolves the nominal stage of an activity: its current
// stage, the legacy stage field, the last history entry, then the flow's
// first active stage.
func ActivityStageID(a domain.Activity, ordered []ResolvedStage) string {
	if a.CurrentStageID != "" {
		return a.CurrentStageID
	}
	if a.LegacyStageID != "" {
		return a.LegacyStageID
	}
	if n := len(a.StageHistory); n > 0 && a.StageHistory[n-1].StageID != "" {
		return a.StageHistory[n-1].StageID
	}
	if first, ok := FirstActiveStage(ordered); ok {
		return first.UID
	}
	return ""
}

// ActivityOnStage reports whether the nominal stage of a is the stage ref
// names, matching ref by identity or key.
func ActivityOnStage(a domain.Activity, ordered []ResolvedStage, ref string) bool {
	nominal := ActivityStageID(a, ordered)
	if nominal == ref {
		return true
	}
	want, ok := FindStage(ordered, ref)
	if !ok {
		return false
	}
	got, ok := FindStage(ordered, nominal)
	return ok && got.UID == want.UID
}
