package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/coach"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
)

// CoachingLog records coaching exchanges. It implements coach.AuditLog.
type CoachingLog struct {
	db *db.DB
}

// NewCoachingLog creates a CoachingLog backed by the given database.
func NewCoachingLog(database *db.DB) *CoachingLog {
	return &CoachingLog{db: database}
}

// LogExchange implements coach.AuditLog.
func (l *CoachingLog) LogExchange(ctx context.Context, entry coach.ExchangeLogEntry) error {
	fallback := 0
	if entry.Fallback {
		fallback = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO coaching_log (id, session_id, node_id, exchange_number, coach_message, user_text, fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		entry.SessionID,
		entry.NodeID,
		entry.ExchangeNumber,
		entry.CoachMessage,
		entry.UserText,
		fallback,
	)
	if err != nil {
		return fmt.Errorf("inserting coaching exchange: %w", err)
	}
	return nil
}

// BySession returns the coaching exchanges recorded for a session, in the
// order they happened.
func (l *CoachingLog) BySession(ctx context.Context, sessionID string) ([]CoachingEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session_id, node_id, exchange_number, user_text, coach_message, fallback, created_at
		FROM coaching_log WHERE session_id = ?
		ORDER BY created_at, exchange_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying coaching log: %w", err)
	}
	defer rows.Close()

	var entries []CoachingEntry
	for rows.Next() {
		var (
			e        CoachingEntry
			fallback int
			created  string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.NodeID, &e.ExchangeNumber, &e.UserText, &e.CoachMessage, &fallback, &created); err != nil {
			return nil, err
		}
		e.Fallback = fallback != 0
		e.CreatedAt = parseTimestamp(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
