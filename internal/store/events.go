package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/imkarma/taskhive/internal/apperr"
)

// GetEvents returns a task's history, oldest first.
func (s *Store) GetEvents(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent, event_type, content, timestamp FROM events WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, apperr.Internal("get events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Agent, &e.Type, &e.Content, &e.Timestamp); err != nil {
			return nil, apperr.Internal("get events", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentEvents returns the latest events across all tasks, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent, event_type, content, timestamp FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, apperr.Internal("recent events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Agent, &e.Type, &e.Content, &e.Timestamp); err != nil {
			return nil, apperr.Internal("recent events", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// addEvent appends an entry to a task's history inside the mutating
// transaction.
func addEvent(ctx context.Context, tx *sql.Tx, taskID, agent, eventType, content string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (task_id, agent, event_type, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		taskID, agent, eventType, content, at,
	)
	if err != nil {
		return apperr.Internal("add event", err)
	}
	return nil
}
