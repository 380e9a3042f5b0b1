package engine

import (
	"fmt"
	"maps"
	"slices"

	"stageline/internal/domain"
)

// Tracking is the repaired view of an activity's occupancy of its current
// stage. The slices and maps are fresh copies owned by the caller.
type Tracking struct {
	CurrentStageID string
	StageHistory   []domain.StageHistoryEntry
	StageReadBy    map[string]map[string]domain.Timestamp
}

// Latest returns the index of the most recent history entry for the
// current stage, or -1.
func (t Tracking) Latest() int {
	return latestEntry(t.StageHistory, t.CurrentStageID)
}

// EnsureStageTracking resolves the activity's current stage (seed, then
// currentStageId, then the legacy stage field) and guarantees it has a
// history entry and a read-by map. A synthesized entry is anchored at the
// activity's creation time; the read-by map is seeded from the legacy flat
// readBy map.
func (e Engine) EnsureStageTracking(a domain.Activity, seed string, ts domain.Timestamp) Tracking {
	current := firstNonEmpty(seed, a.CurrentStageID, a.LegacyStageID)
	history := slices.Clone(a.StageHistory)
	if history == nil {
		history = []domain.StageHistoryEntry{}
	}
	if current != "" && latestEntry(history, current) < 0 {
		anchor := a.CreatedAt
		if anchor == 0 {
			anchor = ts
		}
		history = append(history, e.newEntry(current, anchor))
	}
	readBy := maps.Clone(a.StageReadBy)
	if readBy == nil {
		readBy = map[string]map[string]domain.Timestamp{}
	}
	if _, ok := readBy[current]; current != "" && !ok {
		seeded := maps.Clone(a.ReadBy)
		if seeded == nil {
			seeded = map[string]domain.Timestamp{}
		}
		readBy[current] = seeded
	}
	return Tracking{CurrentStageID: current, StageHistory: history, StageReadBy: readBy}
}

func (e Engine) newEntry(stageID string, ts domain.Timestamp) domain.StageHistoryEntry {
	return domain.StageHistoryEntry{
		ID:        fmt.Sprintf("stage-entry-%d-%s", ts, e.token()),
		StageID:   stageID,
		EnteredAt: ts,
	}
}

// latestEntry scans from the end so repeated visits resolve to the most
// recent one.
func latestEntry(history []domain.StageHistoryEntry, stageID string) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].StageID == stageID {
			return i
		}
	}
	return -1
}

// stamp records that actor read stageID at ts without touching maps shared
// with the previous activity value.
func stamp(readBy map[string]map[string]domain.Timestamp, stageID, actor string, ts domain.Timestamp) {
	inner := maps.Clone(readBy[stageID])
	if inner == nil {
		inner = map[string]domain.Timestamp{}
	}
	inner[actor] = ts
	readBy[stageID] = inner
}

func line(id, text string, ts domain.Timestamp) domain.Line {
	return domain.Line{ID: id, Text: text, Timestamp: ts}
}

func systemComment(id, author, content string, ts domain.Timestamp) domain.Comment {
	return domain.Comment{ID: id, Author: author, Content: content, CreatedAt: ts, Mentions: []string{}, System: true}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
