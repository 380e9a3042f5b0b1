package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"stageline/internal/domain"
)

// Writer persists events into the events table inside a caller's
// transaction.
type Writer struct{}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt domain.Event) (int64, error) {
	payload := evt.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		int64(evt.TS), evt.Type, nullable(evt.ProjectID), evt.EntityKind, nullable(evt.EntityID), evt.ActorID, string(data))
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", evt.Type, err)
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
