package pipeline

import (
	"stageline/internal/domain"
)

// NormalizeStageConfig maps any recognized historical shape of a stage
// configuration record onto the canonical entry. It returns false when the
// record names no stage.
func NormalizeStageConfig(rec domain.StageConfigRecord) (domain.StageConfigEntry, bool) {
	key := firstNonEmpty(rec.StageKey, rec.OperatorKey, rec.Key, rec.ID)
	if key == "" {
		return domain.StageConfigEntry{}, false
	}
	var roleID []string
	if rec.RoleID != "" {
		roleID = []string{rec.RoleID}
	}
	return domain.StageConfigEntry{
		StageKey:        key,
		Active:          rec.Active == nil || *rec.Active,
		AssignedTeamIDs: UniqueIDs(rec.AssignedTeamIDs, rec.AssignedRoleIDs, rec.RoleIDs, roleID),
		AssignedUserIDs: UniqueIDs(rec.AssignedUserIDs, rec.UserIDs),
		OptedOutUserIDs: UniqueIDs(rec.OptedOutUserIDs, rec.ExcludedUserIDs),
	}, true
}

// FlowStageConfig returns the canonical configuration of a flow: one entry
// per template stage in template order, followed by entries for any other
// stage keys in the order they were stored.
func FlowStageConfig(flow domain.Flow) []domain.StageConfigEntry {
	normalized := make([]domain.StageConfigEntry, 0, len(flow.StageConfig))
	byKey := make(map[string]domain.StageConfigEntry, len(flow.StageConfig))
	for _, rec := range flow.StageConfig {
		entry, ok := NormalizeStageConfig(rec)
		if !ok {
			continue
		}
		normalized = append(normalized, entry)
		byKey[entry.StageKey] = entry
	}
	out := make([]domain.StageConfigEntry, 0, len(template)+len(normalized))
	seen := make(map[string]bool, len(template)+len(normalized))
	for _, t := range template {
		entry, ok := byKey[t.Key]
		if !ok {
			entry = defaultEntry(t.Key)
		}
		out = append(out, entry)
		seen[t.Key] = true
	}
	for _, entry := range normalized {
		if seen[entry.StageKey] {
			continue
		}
		out = append(out, entry)
		seen[entry.StageKey] = true
	}
	return out
}

// ConfigFor returns the canonical entry for stageKey, if the flow has one.
func ConfigFor(flow domain.Flow, stageKey string) (domain.StageConfigEntry, bool) {
	for _, entry := range FlowStageConfig(flow) {
		if entry.StageKey == stageKey {
			return entry, true
		}
	}
	return domain.StageConfigEntry{}, false
}

// Records converts canonical entries into their stored shape.
func Records(entries []domain.StageConfigEntry) []domain.StageConfigRecord {
	out := make([]domain.StageConfigRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Record())
	}
	return out
}

// UniqueIDs concatenates the lists, drops empty ids and keeps the first
// occurrence of each id.
func UniqueIDs(lists ...[]string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, list := range lists {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
