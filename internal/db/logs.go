package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/types"
)

// InsertLogEvent persists one log event and returns it with its assigned ID
// and timestamp. Events are persisted before being published to listeners so
// history reads never miss an event a live stream has seen.
func (db *DB) InsertLogEvent(ctx context.Context, runID uuid.UUID, agentName, eventType string, payload map[string]any) (*types.LogEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log payload: %w", err)
	}

	var ev types.LogEvent
	var rawPayload []byte
	err = db.pool.QueryRow(ctx,
		`INSERT INTO run_logs (run_id, agent_name, event_type, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, run_id, agent_name, event_type, payload, created_at`,
		runID, agentName, eventType, payloadBytes,
	).Scan(&ev.ID, &ev.RunID, &ev.AgentName, &ev.EventType, &rawPayload, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert log event: %w", err)
	}
	if err := json.Unmarshal(rawPayload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log payload: %w", err)
	}
	return &ev, nil
}

// ListLogEvents retrieves the persisted log history of a run in insertion
// order.
func (db *DB) ListLogEvents(ctx context.Context, runID uuid.UUID) ([]types.LogEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, agent_name, event_type, payload, created_at
		 FROM run_logs WHERE run_id = $1 ORDER BY created_at ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log events: %w", err)
	}
	defer rows.Close()

	var events []types.LogEvent
	for rows.Next() {
		var ev types.LogEvent
		var rawPayload []byte
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.AgentName, &ev.EventType, &rawPayload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log event: %w", err)
		}
		if err := json.Unmarshal(rawPayload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
