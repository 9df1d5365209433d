package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/engine"
)

// Store records and queries play events and coaching exchanges.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Record inserts a play event. If entry.ID is empty a UUID is generated;
// a zero Timestamp defaults to now.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	detail := "{}"
	if len(entry.Detail) > 0 {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshalling event detail: %w", err)
		}
		detail = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, type, session_id, scenario_id, user_id, node_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(time.DateTime),
		entry.Type,
		entry.SessionID,
		entry.ScenarioID,
		entry.UserID,
		entry.NodeID,
		detail,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// QueryFilter controls which events are returned by Query.
type QueryFilter struct {
	Type      string
	SessionID string
	UserID    string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Query returns events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}

	query := "SELECT id, timestamp, type, session_id, scenario_id, user_id, node_id, detail FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			ts, detail string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.SessionID, &e.ScenarioID, &e.UserID, &e.NodeID, &detail); err != nil {
			return nil, err
		}
		e.Timestamp = parseTimestamp(ts)
		if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
			e.Detail = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes events older than the given time and returns how
// many rows were deleted.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE timestamp < ?",
		before.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old events: %w", err)
	}
	return res.RowsAffected()
}

// Emit implements engine.Sink.
func (s *Store) Emit(ctx context.Context, ev engine.Event) error {
	return s.Record(ctx, Entry{
		Type:       ev.Type,
		SessionID:  ev.SessionID,
		ScenarioID: ev.ScenarioID,
		UserID:     ev.UserID,
		NodeID:     ev.NodeID,
		Detail:     ev.Detail,
	})
}

func parseTimestamp(ts string) time.Time {
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", ts); err == nil {
		return t
	}
	return time.Time{}
}
