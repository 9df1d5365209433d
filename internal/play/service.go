// Package play is the interactive surface over the session engine: it keeps
// live sessions and their coaching dialogues in memory, exposes the play
// operations over HTTP, and finalizes runs the moment they complete.
package play

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/coach"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/engine"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/sessionstore"
)

var (
	// ErrSessionNotLive is returned when a mutating operation targets a
	// session that is not in the live registry. Completed sessions leave
	// the registry at finalize time; crashed ones come back via resume.
	ErrSessionNotLive = errors.New("session is not live on this server")

	// ErrNoDialogue is returned when a coaching reply arrives and no
	// dialogue is open for the session's current node.
	ErrNoDialogue = errors.New("no open coaching dialogue for this session")

	// ErrNoDecisionRecorded is returned when feedback is requested for a
	// node the session never made a decision at.
	ErrNoDecisionRecorded = errors.New("no decision recorded at this node")
)

// Service glues the engine, coach, and content store into the play flow.
// Operations on one session are serialized by a per-session lock, so
// distinct sessions proceed independently across concurrent HTTP requests.
type Service struct {
	engine   *engine.Engine
	coach    *coach.Coach
	content  content.Provider
	sessions *sessionstore.Store

	mu        sync.Mutex // guards the three registries below
	live      map[string]*engine.Session
	dialogues map[string]*coach.Dialogue // keyed by session ID, current node only
	locks     map[string]*sync.Mutex     // per-session operation locks
}

// NewService creates the play service.
func NewService(eng *engine.Engine, ch *coach.Coach, provider content.Provider, sessions *sessionstore.Store) *Service {
	return &Service{
		engine:    eng,
		coach:     ch,
		content:   provider,
		sessions:  sessions,
		live:      make(map[string]*engine.Session),
		dialogues: make(map[string]*coach.Dialogue),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockSession returns the mutex serializing operations on one session.
func (s *Service) lockSession(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// liveSession looks the session up in the live registry.
func (s *Service) liveSession(sessionID string) (*engine.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.live[sessionID]
	return session, ok
}

// ChoiceView is the playable projection of a choice. Scoring fields stay
// server-side; the learner sees them only through feedback.
type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NodeView is the playable projection of the session's current node.
type NodeView struct {
	ID      string           `json:"id"`
	Type    content.NodeType `json:"type"`
	Prompt  string           `json:"prompt"`
	Choices []ChoiceView     `json:"choices,omitempty"`
}

// View is the play state returned by every session operation.
type View struct {
	Session  *engine.Session `json:"session"`
	Node     *NodeView       `json:"node,omitempty"`
	Complete bool            `json:"complete"`
}

// Start begins a fresh run. It refuses while an incomplete run exists for
// the same user and scenario.
func (s *Service) Start(ctx context.Context, userID, scenarioID string) (*View, error) {
	session, err := s.engine.Start(ctx, userID, scenarioID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[session.ID] = session
	s.mu.Unlock()

	return s.viewFor(ctx, session)
}

// Resume picks up the incomplete run for the user and scenario.
func (s *Service) Resume(ctx context.Context, userID, scenarioID string) (*View, error) {
	session, err := s.engine.Resume(ctx, userID, scenarioID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[session.ID] = session
	s.mu.Unlock()

	return s.viewFor(ctx, session)
}

// Discard abandons the incomplete run for the user and scenario.
func (s *Service) Discard(ctx context.Context, userID, scenarioID string) error {
	if err := s.engine.Discard(ctx, userID, scenarioID); err != nil {
		return err
	}

	s.mu.Lock()
	for id, session := range s.live {
		if session.UserID == userID && session.ScenarioID == scenarioID {
			delete(s.live, id)
			delete(s.dialogues, id)
			delete(s.locks, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// Session returns the current play state. Live sessions come from memory;
// finalized ones are read back from storage. The session lock is held over
// the read so the view never observes a half-applied mutation.
func (s *Service) Session(ctx context.Context, sessionID string) (*View, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, ok := s.liveSession(sessionID)
	if !ok {
		stored, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		session = stored
	}
	return s.viewFor(ctx, session)
}

// ReflectResult is the outcome of submitting a reflection: the advanced
// play state, plus the opening coaching exchange when coaching was asked
// for.
type ReflectResult struct {
	View     *View           `json:"view"`
	Coaching *coach.Exchange `json:"coaching,omitempty"`
}

// Reflect completes the session's current reflection node with the given
// text. When wantCoaching is set, a dialogue opens for the node and the
// reflection itself is its first exchange; the dialogue stays available
// for replies until the session takes its next node action. Coaching never
// changes scoring.
func (s *Service) Reflect(ctx context.Context, sessionID, nodeID, text string, wantCoaching bool) (*ReflectResult, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	session, ok := s.liveSession(sessionID)
	if !ok {
		lock.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotLive, sessionID)
	}

	if err := s.engine.CompleteReflection(ctx, session, nodeID, text); err != nil {
		lock.Unlock()
		return nil, err
	}
	s.mu.Lock()
	delete(s.dialogues, sessionID)
	s.mu.Unlock()
	lock.Unlock()

	scenario, err := s.content.Scenario(ctx, session.ScenarioID)
	if err != nil {
		return nil, err
	}

	result := &ReflectResult{}
	if wantCoaching {
		// Generation happens outside the session lock so a slow provider
		// call cannot stall reads of this session.
		dialogue := s.coach.NewDialogue(scenario, sessionID, nodeID)
		if ex, err := dialogue.Respond(ctx, text); err == nil {
			s.mu.Lock()
			s.dialogues[sessionID] = dialogue
			s.mu.Unlock()
			result.Coaching = &ex
		}
	}

	lock.Lock()
	view, err := s.viewFor(ctx, session)
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	result.View = view
	return result, nil
}

// CoachReply continues the open coaching dialogue with the learner's reply.
func (s *Service) CoachReply(ctx context.Context, sessionID, text string) (*coach.Exchange, error) {
	s.mu.Lock()
	if _, ok := s.live[sessionID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotLive, sessionID)
	}
	dialogue, ok := s.dialogues[sessionID]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNoDialogue
	}

	// The dialogue gates concurrent exchanges itself; no session lock here.

	ex, err := dialogue.Respond(ctx, text)
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

// ChooseResult is the outcome of a decision: the advanced play state and
// the recorded choice.
type ChooseResult struct {
	View      *View                `json:"view"`
	Record    *engine.ChoiceRecord `json:"record"`
	Finalized bool                 `json:"finalized"`
}

// Choose completes the session's current decision node with the selected
// choice. When the choice lands on the final node boundary the session is
// finalized immediately.
func (s *Service) Choose(ctx context.Context, sessionID, nodeID, choiceID string) (*ChooseResult, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, ok := s.liveSession(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotLive, sessionID)
	}

	record, err := s.engine.CompleteDecision(ctx, session, nodeID, choiceID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.dialogues, sessionID)
	s.mu.Unlock()

	finalized, err := s.finalizeIfComplete(ctx, session)
	if err != nil {
		return nil, err
	}

	view, err := s.viewFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return &ChooseResult{View: view, Record: record, Finalized: finalized}, nil
}

// Advance completes the session's current outcome node. Outcome nodes carry
// no input; acknowledging them moves the cursor forward.
func (s *Service) Advance(ctx context.Context, sessionID, nodeID string) (*View, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, ok := s.liveSession(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotLive, sessionID)
	}

	if err := s.engine.CompleteOutcome(ctx, session, nodeID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.dialogues, sessionID)
	s.mu.Unlock()

	if _, err := s.finalizeIfComplete(ctx, session); err != nil {
		return nil, err
	}
	return s.viewFor(ctx, session)
}

// Feedback resolves decision feedback for a node the session decided at.
// It replays against the sibling set recorded with the decision, so it
// works identically for live and finalized sessions and can be called any
// number of times.
func (s *Service) Feedback(ctx context.Context, sessionID, nodeID string) (*coach.Feedback, error) {
	lock := s.lockSession(sessionID)
	lock.Lock()
	session, ok := s.liveSession(sessionID)
	if !ok {
		lock.Unlock()
		stored, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		session = stored
		lock.Lock()
	}

	// Copy the record out under the lock; generation runs outside it.
	var record engine.ChoiceRecord
	var found bool
	scenarioID := session.ScenarioID
	for i := range session.Choices {
		if session.Choices[i].NodeID == nodeID {
			record = session.Choices[i]
			found = true
			break
		}
	}
	lock.Unlock()

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoDecisionRecorded, nodeID)
	}

	scenario, err := s.content.Scenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	return s.coach.DecisionFeedback(ctx, scenario, record.ChoiceID, record.Siblings)
}

// finalizeIfComplete freezes the session when its cursor has passed the
// last node. Must be called with the session lock held.
func (s *Service) finalizeIfComplete(ctx context.Context, session *engine.Session) (bool, error) {
	complete, err := s.engine.IsComplete(ctx, session)
	if err != nil {
		return false, err
	}
	if !complete {
		return false, nil
	}
	if err := s.engine.Finalize(ctx, session); err != nil {
		return false, err
	}
	s.mu.Lock()
	delete(s.live, session.ID)
	delete(s.dialogues, session.ID)
	s.mu.Unlock()
	return true, nil
}

func (s *Service) viewFor(ctx context.Context, session *engine.Session) (*View, error) {
	scenario, err := s.content.Scenario(ctx, session.ScenarioID)
	if err != nil {
		return nil, err
	}

	view := &View{Session: session}
	if session.Finalized() || session.NodeIndex >= len(scenario.Nodes) {
		view.Complete = true
		return view, nil
	}

	node := scenario.NodeAt(session.NodeIndex)
	nv := &NodeView{
		ID:     node.ID,
		Type:   node.Type,
		Prompt: node.Prompt,
	}
	for _, c := range node.Choices {
		nv.Choices = append(nv.Choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	view.Node = nv
	return view, nil
}
