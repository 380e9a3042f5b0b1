package logging

import "log/slog"

const (
	FieldProjectID  = "project_id"
	FieldFlowID     = "flow_id"
	FieldActivityID = "activity_id"
	FieldStageID    = "stage_id"
	FieldTeamID     = "team_id"
	FieldActor      = "actor"
)

func ProjectID(id string) slog.Attr { return slog.String(FieldProjectID, id) }

func FlowID(id string) slog.Attr { return slog.String(FieldFlowID, id) }

func ActivityID(id string) slog.Attr { return slog.String(FieldActivityID, id) }

func StageID(id string) slog.Attr { return slog.String(FieldStageID, id) }

func TeamID(id string) slog.Attr { return slog.String(FieldTeamID, id) }

func Actor(name string) slog.Attr { return slog.String(FieldActor, name) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}
