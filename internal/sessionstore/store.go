// Package sessionstore persists session snapshots and reflection texts to
// SQLite. A session row is a JSON snapshot of engine state plus scalar
// columns for the fields worth indexing; the engine remains the single
// source of truth while play is live.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/engine"
)

// ErrNotFound is returned when a session ID does not exist.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. It implements engine.SessionStore.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// FindIncomplete returns the incomplete session for the (user, scenario)
// pair, or nil if there is none. At most one can exist because Checkpoint
// keys rows by session ID and the engine refuses to start a second run.
func (s *Store) FindIncomplete(ctx context.Context, userID, scenarioID string) (*engine.Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		FROM sessions
		WHERE user_id = ? AND scenario_id = ? AND completed_at IS NULL
		ORDER BY started_at DESC LIMIT 1`, userID, scenarioID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding incomplete session: %w", err)
	}
	return session, nil
}

// Get returns the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*engine.Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM sessions WHERE id = ?", id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return session, nil
}

// Checkpoint upserts the session snapshot. Called on the autosave path, so
// it must tolerate both first writes and repeats.
func (s *Store) Checkpoint(ctx context.Context, session *engine.Session) error {
	return s.upsert(ctx, session)
}

// FinalizeSave writes the completed session. The engine only calls this
// with CompletedAt set; refusing anything else keeps a buggy caller from
// recording a finished run as still open.
func (s *Store) FinalizeSave(ctx context.Context, session *engine.Session) error {
	if !session.Finalized() {
		return errors.New("refusing to finalize a session without a completion time")
	}
	return s.upsert(ctx, session)
}

// DeleteIncomplete removes the incomplete session for the (user, scenario)
// pair. Completed rows are never touched.
func (s *Store) DeleteIncomplete(ctx context.Context, userID, scenarioID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE user_id = ? AND scenario_id = ? AND completed_at IS NULL`, userID, scenarioID)
	if err != nil {
		return fmt.Errorf("deleting incomplete session: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, user_id, scenario_id, node_index, total_score, engagement_score,
	       culture_score, reflections, choices, positive_tags, negative_tags,
	       started_at, completed_at`

// upsert writes the session snapshot. Rows with completed_at set are
// immutable: a checkpoint that was already in flight when the session
// finalized must not clear the completion and resurrect the run as
// incomplete, so the update is guarded on the stored row still being open.
func (s *Store) upsert(ctx context.Context, session *engine.Session) error {
	reflections, err := json.Marshal(session.Reflections)
	if err != nil {
		return fmt.Errorf("marshalling reflections: %w", err)
	}
	choices, err := json.Marshal(session.Choices)
	if err != nil {
		return fmt.Errorf("marshalling choices: %w", err)
	}
	positive, err := json.Marshal(session.PositiveTags)
	if err != nil {
		return fmt.Errorf("marshalling positive tags: %w", err)
	}
	negative, err := json.Marshal(session.NegativeTags)
	if err != nil {
		return fmt.Errorf("marshalling negative tags: %w", err)
	}

	var completedAt sql.NullString
	if session.CompletedAt != nil {
		completedAt = sql.NullString{String: session.CompletedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_id, scenario_id, node_index, total_score, engagement_score,
			culture_score, reflections, choices, positive_tags, negative_tags,
			started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			node_index = excluded.node_index,
			total_score = excluded.total_score,
			engagement_score = excluded.engagement_score,
			culture_score = excluded.culture_score,
			reflections = excluded.reflections,
			choices = excluded.choices,
			positive_tags = excluded.positive_tags,
			negative_tags = excluded.negative_tags,
			completed_at = excluded.completed_at,
			updated_at = datetime('now')
		WHERE sessions.completed_at IS NULL`,
		session.ID,
		session.UserID,
		session.ScenarioID,
		session.NodeIndex,
		session.TotalScore,
		session.EngagementScore,
		session.CultureScore,
		string(reflections),
		string(choices),
		string(positive),
		string(negative),
		session.StartedAt.UTC().Format(time.RFC3339),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*engine.Session, error) {
	var (
		session                                 engine.Session
		reflections, choices, positive, negative string
		startedAt                               string
		completedAt                             sql.NullString
	)

	err := sc.Scan(
		&session.ID, &session.UserID, &session.ScenarioID, &session.NodeIndex,
		&session.TotalScore, &session.EngagementScore, &session.CultureScore,
		&reflections, &choices, &positive, &negative,
		&startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(reflections), &session.Reflections); err != nil {
		return nil, fmt.Errorf("decoding reflections: %w", err)
	}
	if err := json.Unmarshal([]byte(choices), &session.Choices); err != nil {
		return nil, fmt.Errorf("decoding choices: %w", err)
	}
	if err := json.Unmarshal([]byte(positive), &session.PositiveTags); err != nil {
		return nil, fmt.Errorf("decoding positive tags: %w", err)
	}
	if err := json.Unmarshal([]byte(negative), &session.NegativeTags); err != nil {
		return nil, fmt.Errorf("decoding negative tags: %w", err)
	}

	session.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("decoding started_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decoding completed_at: %w", err)
		}
		session.CompletedAt = &t
	}

	return &session, nil
}

// ReflectionLog persists reflection texts. It implements
// engine.ReflectionStore.
type ReflectionLog struct {
	db *db.DB
}

// NewReflectionLog creates a ReflectionLog backed by the given database.
func NewReflectionLog(database *db.DB) *ReflectionLog {
	return &ReflectionLog{db: database}
}

// Save records one reflection text.
func (l *ReflectionLog) Save(ctx context.Context, nodeID, userID, text string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO reflections (id, node_id, user_id, text)
		VALUES (?, ?, ?, ?)`,
		uuid.New().String(), nodeID, userID, text,
	)
	if err != nil {
		return fmt.Errorf("inserting reflection: %w", err)
	}
	return nil
}

// ByNode returns the reflection texts recorded for a node, oldest first.
func (l *ReflectionLog) ByNode(ctx context.Context, nodeID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT text FROM reflections WHERE node_id = ? ORDER BY created_at", nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying reflections: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}
