package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/scoring"
)

// Engine is the scenario execution engine: it advances sessions through a
// scenario's node chain, accrues the three scoring axes, and checkpoints
// progress through the persistence bridge.
//
// Engine methods are synchronous from the caller's perspective; the only
// asynchronous boundaries are best-effort saves and event emission.
type Engine struct {
	provider    content.Provider
	sessions    SessionStore
	reflections ReflectionStore
	sink        Sink
	saver       *Autosaver

	now   func() time.Time
	newID func() string
}

// New creates an Engine. checkpointDebounce controls how long the engine
// coalesces session mutations before offering a checkpoint to the store.
func New(provider content.Provider, sessions SessionStore, reflections ReflectionStore, sink Sink, checkpointDebounce time.Duration) *Engine {
	return &Engine{
		provider:    provider,
		sessions:    sessions,
		reflections: reflections,
		sink:        sink,
		saver:       NewAutosaver(sessions, checkpointDebounce),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Close flushes any pending checkpoints.
func (e *Engine) Close() {
	e.saver.Close()
}

// Incomplete reports the existing incomplete session for the pair, or nil.
// The surrounding application uses this to prompt resume vs discard; the
// engine never decides that on the user's behalf.
func (e *Engine) Incomplete(ctx context.Context, userID, scenarioID string) (*Session, error) {
	return e.sessions.FindIncomplete(ctx, userID, scenarioID)
}

// Start creates a fresh session at node 0. It refuses to run if an
// incomplete session already exists: the caller must Resume or Discard it
// first, never both.
func (e *Engine) Start(ctx context.Context, userID, scenarioID string) (*Session, error) {
	scenario, err := e.provider.Scenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s: %w", scenarioID, err)
	}
	if len(scenario.Nodes) == 0 {
		return nil, fmt.Errorf("scenario %s: %w", scenarioID, ErrInvalidScenario)
	}

	existing, err := e.sessions.FindIncomplete(ctx, userID, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("checking for incomplete session: %w", err)
	}
	if existing != nil {
		return nil, ErrIncompleteSessionExists
	}

	s := &Session{
		ID:         e.newID(),
		UserID:     userID,
		ScenarioID: scenarioID,
		StartedAt:  e.now(),
	}

	e.emit(Event{Type: EventSessionStarted, SessionID: s.ID, ScenarioID: scenarioID, UserID: userID})
	e.saver.Offer(s)
	return s, nil
}

// Resume restores the incomplete session for the pair from its last
// checkpoint.
func (e *Engine) Resume(ctx context.Context, userID, scenarioID string) (*Session, error) {
	s, err := e.sessions.FindIncomplete(ctx, userID, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("finding incomplete session: %w", err)
	}
	if s == nil {
		return nil, ErrNoIncompleteSession
	}

	e.emit(Event{Type: EventSessionResumed, SessionID: s.ID, ScenarioID: scenarioID, UserID: userID})
	return s, nil
}

// Discard deletes the incomplete session for the pair so a fresh Start can
// follow.
func (e *Engine) Discard(ctx context.Context, userID, scenarioID string) error {
	if err := e.sessions.DeleteIncomplete(ctx, userID, scenarioID); err != nil {
		return fmt.Errorf("discarding incomplete session: %w", err)
	}
	e.emit(Event{Type: EventSessionDiscarded, ScenarioID: scenarioID, UserID: userID})
	return nil
}

// currentNode validates that nodeID is the session's current node and
// returns it.
func (e *Engine) currentNode(scenario *content.Scenario, s *Session, nodeID string) (*content.Node, error) {
	if s.Finalized() {
		return nil, ErrSessionFinalized
	}
	node := scenario.NodeAt(s.NodeIndex)
	if node == nil {
		return nil, ErrSessionComplete
	}
	if node.ID != nodeID {
		return nil, fmt.Errorf("%w: current is %s, got %s", ErrOutOfOrder, node.ID, nodeID)
	}
	return node, nil
}

// CompleteReflection records a reflection and advances the session by one
// node. The reflection text is persisted fire-and-forget; a failed save
// never blocks advancement.
func (e *Engine) CompleteReflection(ctx context.Context, s *Session, nodeID, text string) error {
	scenario, err := e.provider.Scenario(ctx, s.ScenarioID)
	if err != nil {
		return fmt.Errorf("loading scenario %s: %w", s.ScenarioID, err)
	}

	node, err := e.currentNode(scenario, s, nodeID)
	if err != nil {
		return err
	}
	if node.Type != content.NodeReflection {
		return fmt.Errorf("%w: node %s is a %s", ErrWrongNodeType, nodeID, node.Type)
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyReflection
	}

	s.Reflections = append(s.Reflections, ReflectionRecord{
		NodeID:     nodeID,
		Text:       text,
		RecordedAt: e.now(),
	})
	s.TotalScore += ReflectionAward

	userID := s.UserID
	reflectionText := text
	bestEffort("reflection save", func(ctx context.Context) error {
		return e.reflections.Save(ctx, nodeID, userID, reflectionText)
	})

	s.NodeIndex++

	e.emit(Event{Type: EventNodeCompleted, SessionID: s.ID, ScenarioID: s.ScenarioID,
		UserID: s.UserID, NodeID: nodeID, Detail: map[string]any{"node_type": string(node.Type)}})
	e.saver.Offer(s)
	return nil
}

// CompleteOutcome acknowledges an outcome node and advances the session by
// one node. Outcome nodes carry no input and no award.
func (e *Engine) CompleteOutcome(ctx context.Context, s *Session, nodeID string) error {
	scenario, err := e.provider.Scenario(ctx, s.ScenarioID)
	if err != nil {
		return fmt.Errorf("loading scenario %s: %w", s.ScenarioID, err)
	}

	node, err := e.currentNode(scenario, s, nodeID)
	if err != nil {
		return err
	}
	if node.Type != content.NodeOutcome {
		return fmt.Errorf("%w: node %s is a %s", ErrWrongNodeType, nodeID, node.Type)
	}

	s.NodeIndex++

	e.emit(Event{Type: EventNodeCompleted, SessionID: s.ID, ScenarioID: s.ScenarioID,
		UserID: s.UserID, NodeID: nodeID, Detail: map[string]any{"node_type": string(node.Type)}})
	e.saver.Offer(s)
	return nil
}

// CompleteDecision records a choice selection, accrues all three scoring
// axes, unions the choice's behavior tags, and advances the session by one
// node. The full sibling set is retained on the record for post-hoc
// feedback.
func (e *Engine) CompleteDecision(ctx context.Context, s *Session, nodeID, choiceID string) (*ChoiceRecord, error) {
	scenario, err := e.provider.Scenario(ctx, s.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s: %w", s.ScenarioID, err)
	}

	node, err := e.currentNode(scenario, s, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Type != content.NodeDecision {
		return nil, fmt.Errorf("%w: node %s is a %s", ErrWrongNodeType, nodeID, node.Type)
	}

	var chosen *content.Choice
	for i := range node.Choices {
		if node.Choices[i].ID == choiceID {
			chosen = &node.Choices[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: choice %s on node %s", ErrInvalidChoice, choiceID, nodeID)
	}

	points := scoring.Score(*chosen)
	s.TotalScore += points
	s.EngagementScore += chosen.EngagementImpact
	for _, impact := range chosen.CultureImpacts {
		s.CultureScore += impact
	}
	s.PositiveTags = addTags(s.PositiveTags, chosen.PositiveTags)
	s.NegativeTags = addTags(s.NegativeTags, chosen.NegativeTags)

	record := ChoiceRecord{
		NodeID:     nodeID,
		ChoiceID:   choiceID,
		Points:     points,
		Siblings:   append([]content.Choice(nil), node.Choices...),
		RecordedAt: e.now(),
	}
	s.Choices = append(s.Choices, record)
	s.NodeIndex++

	e.emit(Event{Type: EventChoiceSelected, SessionID: s.ID, ScenarioID: s.ScenarioID,
		UserID: s.UserID, NodeID: nodeID,
		Detail: map[string]any{"choice_id": choiceID, "points": points}})
	e.saver.Offer(s)
	return &record, nil
}

// IsComplete reports whether the session's cursor has reached the end of
// the scenario's node sequence.
func (e *Engine) IsComplete(ctx context.Context, s *Session) (bool, error) {
	scenario, err := e.provider.Scenario(ctx, s.ScenarioID)
	if err != nil {
		return false, fmt.Errorf("loading scenario %s: %w", s.ScenarioID, err)
	}
	return s.NodeIndex >= len(scenario.Nodes), nil
}

// Finalize freezes a completed session and persists the final record. This
// is the one save that must succeed: its failure surfaces to the caller.
func (e *Engine) Finalize(ctx context.Context, s *Session) error {
	if s.Finalized() {
		return ErrSessionFinalized
	}
	done, err := e.IsComplete(ctx, s)
	if err != nil {
		return err
	}
	if !done {
		return ErrNotComplete
	}

	completed := e.now()
	s.CompletedAt = &completed

	// A stale checkpoint landing after the final save would resurrect the
	// session as incomplete.
	e.saver.Cancel(s.ID)

	if err := e.sessions.FinalizeSave(ctx, s); err != nil {
		s.CompletedAt = nil
		return fmt.Errorf("saving finalized session: %w", err)
	}

	e.emit(Event{Type: EventSessionFinalized, SessionID: s.ID, ScenarioID: s.ScenarioID,
		UserID: s.UserID,
		Detail: map[string]any{
			"total_score":      s.TotalScore,
			"engagement_score": s.EngagementScore,
			"culture_score":    s.CultureScore,
		}})
	return nil
}

// emit offers an event to the sink without ever blocking the state machine.
func (e *Engine) emit(ev Event) {
	if e.sink == nil {
		return
	}
	bestEffort("event emit", func(ctx context.Context) error {
		return e.sink.Emit(ctx, ev)
	})
}
