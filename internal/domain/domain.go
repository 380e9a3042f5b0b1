package domain

import (
	"encoding/json"
	"time"
)

// Timestamp is a logical clock reading in milliseconds. Values produced by
// one clock are strictly increasing.
type Timestamp int64

// Time converts the reading to wall-clock time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

func (t Timestamp) Ptr() *Timestamp {
	return &t
}

type Tier string

const (
	TierGenesis    Tier = "genesis"
	TierEvaluation Tier = "evaluation"
	TierContinuity Tier = "continuity"
)

// StageTemplate is one entry of the global default pipeline.
type StageTemplate struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Order            int    `json:"order"`
	Tier             Tier   `json:"tier"`
	SupportsRevision bool   `json:"supportsRevision"`
}

type Stage struct {
	ID                   string  `json:"id,omitempty"`
	Key                  string  `json:"key,omitempty"`
	OperatorKey          string  `json:"operatorKey,omitempty"`
	Name                 string  `json:"name"`
	Description          string  `json:"description,omitempty"`
	Order                *int    `json:"order,omitempty"`
	Tier                 Tier    `json:"tier,omitempty"`
	RoleID               *string `json:"roleId,omitempty"`
	SupportsRevision     bool    `json:"supportsRevision"`
	ExpectedDurationDays int     `json:"expectedDurationDays"`
	Conditions           string  `json:"conditions,omitempty"`
	Skipped              bool    `json:"skipped"`
}

// StageConfigRecord is the stored shape of a stage configuration entry.
// Besides the canonical fields it accepts every historical field name.
type StageConfigRecord struct {
	StageKey        string   `json:"stageKey,omitempty"`
	OperatorKey     string   `json:"operatorKey,omitempty"`
	Key             string   `json:"key,omitempty"`
	ID              string   `json:"id,omitempty"`
	Active          *bool    `json:"active,omitempty"`
	AssignedTeamIDs []string `json:"assignedTeamIds,omitempty"`
	AssignedRoleIDs []string `json:"assignedRoleIds,omitempty"`
	RoleIDs         []string `json:"roleIds,omitempty"`
	RoleID          string   `json:"roleId,omitempty"`
	AssignedUserIDs []string `json:"assignedUserIds,omitempty"`
	UserIDs         []string `json:"userIds,omitempty"`
	OptedOutUserIDs []string `json:"optedOutUserIds,omitempty"`
	ExcludedUserIDs []string `json:"excludedUserIds,omitempty"`
}

// StageConfigEntry is the canonical per-stage configuration.
type StageConfigEntry struct {
	StageKey        string   `json:"stageKey"`
	Active          bool     `json:"active"`
	AssignedTeamIDs []string `json:"assignedTeamIds"`
	AssignedUserIDs []string `json:"assignedUserIds"`
	OptedOutUserIDs []string `json:"optedOutUserIds"`
}

// Record converts the entry back into its stored shape.
func (e StageConfigEntry) Record() StageConfigRecord {
	active := e.Active
	return StageConfigRecord{
		StageKey:        e.StageKey,
		Active:          &active,
		AssignedTeamIDs: append([]string{}, e.AssignedTeamIDs...),
		AssignedUserIDs: append([]string{}, e.AssignedUserIDs...),
		OptedOutUserIDs: append([]string{}, e.OptedOutUserIDs...),
	}
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
	Color   string   `json:"color,omitempty"`
}

// LegacyRole predates Team and only survives until the role migration runs.
type LegacyRole struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
}

type Project struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Users     []User       `json:"users"`
	Teams     []Team       `json:"teams"`
	Roles     []LegacyRole `json:"roles,omitempty"`
	CreatedAt Timestamp    `json:"createdAt,omitempty"`
	FlowIDs   []string     `json:"-"`
}

// Edge is a flow graph edge. Stageline does not interpret edges; each one
// is kept as the JSON it was stored with so unknown fields survive.
type Edge = json.RawMessage

type Flow struct {
	ID          string              `json:"id"`
	ProjectID   string              `json:"projectId,omitempty"`
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Stages      []Stage             `json:"stages"`
	StageConfig []StageConfigRecord `json:"stageConfig"`
	Edges       []Edge              `json:"edges"`
	ActivityIDs []string            `json:"-"`
}

// Line is a timestamped text line used by stage logs and activity history.
type Line struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt"`
	Mentions  []string  `json:"mentions"`
	System    bool      `json:"system"`
}

// StageHistoryEntry records one visit of an activity to one stage.
type StageHistoryEntry struct {
	ID          string     `json:"id"`
	StageID     string     `json:"stageId"`
	EnteredAt   Timestamp  `json:"enteredAt"`
	ExitedAt    *Timestamp `json:"exitedAt"`
	ClaimedBy   string     `json:"claimedBy,omitempty"`
	ClaimedAt   *Timestamp `json:"claimedAt"`
	Priority    string     `json:"priority,omitempty"`
	CompletedAt *Timestamp `json:"completedAt"`
	SkippedAt   *Timestamp `json:"skippedAt"`
	Log         Seq[Line]  `json:"log"`
}

type Activity struct {
	ID             string                          `json:"id"`
	FlowID         string                          `json:"flowId,omitempty"`
	Title          string                          `json:"title"`
	Deliverable    string                          `json:"deliverable,omitempty"`
	CurrentStageID string                          `json:"currentStageId,omitempty"`
	LegacyStageID  string                          `json:"stageId,omitempty"`
	SkippedStages  []string                        `json:"skippedStages"`
	StageHistory   []StageHistoryEntry             `json:"stageHistory"`
	StageReadBy    map[string]map[string]Timestamp `json:"stageReadBy"`
	ReadBy         map[string]Timestamp            `json:"readBy,omitempty"`
	Comments       Seq[Comment]                    `json:"comments"`
	History        Seq[Line]                       `json:"history"`
	CreatedAt      Timestamp                       `json:"createdAt"`
	CompletedAt    *Timestamp                      `json:"completedAt"`
	RoleID         string                          `json:"roleId,omitempty"`
	TeamID         string                          `json:"teamId,omitempty"`
}

// OpenEntry returns the history entry of the current stage visit.
func (a Activity) OpenEntry() (StageHistoryEntry, bool) {
	for i := len(a.StageHistory) - 1; i >= 0; i-- {
		entry := a.StageHistory[i]
		if entry.StageID == a.CurrentStageID && entry.ExitedAt == nil {
			return entry, true
		}
	}
	return StageHistoryEntry{}, false
}

// LatestEntry returns the most recent history entry of the current stage,
// exited or not. Its claim is the one that blocks other actors.
func (a Activity) LatestEntry() (StageHistoryEntry, bool) {
	for i := len(a.StageHistory) - 1; i >= 0; i-- {
		if a.StageHistory[i].StageID == a.CurrentStageID {
			return a.StageHistory[i], true
		}
	}
	return StageHistoryEntry{}, false
}

// Event is an append-only notification record emitted by every mutation.
type Event struct {
	ID         int64          `json:"id,omitempty"`
	TS         Timestamp      `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"projectId,omitempty"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
}
