package engine

import (
	"context"
	"log"
	"time"
)

// SessionStore is the session persistence collaborator. Checkpoint is a
// best-effort operation: the engine swallows and logs its failures.
// FinalizeSave is not — losing a completed session record is unacceptable,
// so its error surfaces to the caller.
type SessionStore interface {
	// FindIncomplete returns the incomplete session for the (user, scenario)
	// pair, or nil if there is none.
	FindIncomplete(ctx context.Context, userID, scenarioID string) (*Session, error)
	Checkpoint(ctx context.Context, s *Session) error
	FinalizeSave(ctx context.Context, s *Session) error
	DeleteIncomplete(ctx context.Context, userID, scenarioID string) error
}

// ReflectionStore persists reflection texts. Saves are fire-and-forget:
// reflections are supplementary, not authoritative session state.
type ReflectionStore interface {
	Save(ctx context.Context, nodeID, userID, text string) error
}

// Event is a structured engine event offered to the audit sink.
type Event struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id,omitempty"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Event types emitted by the engine.
const (
	EventSessionStarted   = "session.started"
	EventSessionResumed   = "session.resumed"
	EventSessionDiscarded = "session.discarded"
	EventSessionFinalized = "session.finalized"
	EventNodeCompleted    = "node.completed"
	EventChoiceSelected   = "choice.selected"
)

// Sink receives engine events. Delivery is best-effort and never blocks
// the state machine.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// bestEffortTimeout bounds background saves and event deliveries so a hung
// collaborator cannot pile up goroutines indefinitely.
const bestEffortTimeout = 10 * time.Second

// bestEffort runs op in the background, detached from the caller's context
// and lifetime. Failures are logged, never returned: the contract makes the
// non-blocking guarantee explicit instead of burying a swallowed error at
// each call site.
func bestEffort(name string, op func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			log.Printf("best-effort %s failed: %v", name, err)
		}
	}()
}
