package play

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/coach"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/engine"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/llm"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/sessionstore"
)

type stubProvider struct {
	scenario *content.Scenario
}

func (p *stubProvider) Scenario(ctx context.Context, id string) (*content.Scenario, error) {
	if id != p.scenario.ID {
		return nil, fmt.Errorf("scenario %s: %w", id, content.ErrNotFound)
	}
	return p.scenario, nil
}

func (p *stubProvider) List(ctx context.Context) ([]content.Summary, error) {
	return []content.Summary{{ID: p.scenario.ID, Title: p.scenario.Title}}, nil
}

type stubLLM struct{ response string }

func (s *stubLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: s.response}, nil
}

func (s *stubLLM) Name() string { return "stub" }

func playScenario() *content.Scenario {
	return &content.Scenario{
		ID:          "scn-1",
		Title:       "The Quiet Standup",
		Description: "A team member has gone silent in standups for two weeks.",
		Difficulty:  content.DifficultyIntro,
		PrimaryDimension: content.EngagementDimension{
			ID: "dim-voice", Title: "Employee Voice",
			Description: "People believe speaking up is safe and worthwhile.",
		},
		CultureValue: content.CultureValue{
			ID: "cv-care", Name: "Care Personally",
			Description: "We invest in each other as whole people.",
		},
		Active: true,
		Nodes: []content.Node{
			{ID: "n0", Type: content.NodeReflection, Prompt: "What do you notice?", OrderIndex: 0},
			{
				ID: "n1", Type: content.NodeDecision, Prompt: "What do you do?", OrderIndex: 1,
				Choices: []content.Choice{
					{ID: "c-1on1", Text: "Raise it privately in your next 1:1.", BasePoints: 25, EngagementImpact: 2, CultureImpacts: map[string]int{"cv-care": 1}, PositiveTags: []string{"active-listening"}, NextNodeID: "n2"},
					{ID: "c-ignore", Text: "Give it another sprint.", BasePoints: 5, NextNodeID: "n2"},
					{ID: "c-callout", Text: "Ask them directly in the next standup.", BasePoints: -5, EngagementImpact: -1, NegativeTags: []string{"public-pressure"}, NextNodeID: "n2"},
				},
			},
			{ID: "n2", Type: content.NodeOutcome, Prompt: "They open up about burnout.", OrderIndex: 2},
		},
	}
}

type harness struct {
	srv      *httptest.Server
	svc      *Service
	store    *sessionstore.Store
	provider *stubProvider
	eng      *engine.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	provider := &stubProvider{scenario: playScenario()}
	store := sessionstore.NewStore(database)
	reflections := sessionstore.NewReflectionLog(database)

	eng := engine.New(provider, store, reflections, nil, 0)
	t.Cleanup(eng.Close)

	ch := coach.New(&stubLLM{response: "What might be underneath that?"}, "test-model", 2*time.Second, coach.NewFallbackDeck(1), nil)
	svc := NewService(eng, ch, provider, store)

	r := chi.NewRouter()
	RegisterRoutes(r, svc)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{srv: srv, svc: svc, store: store, provider: provider, eng: eng}
}

func (h *harness) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestFullPlaythroughOverHTTP(t *testing.T) {
	h := newHarness(t)

	var started View
	if code := h.post(t, "/api/play/start", startRequest{UserID: "alice", ScenarioID: "scn-1"}, &started); code != http.StatusCreated {
		t.Fatalf("start status = %d", code)
	}
	sessionID := started.Session.ID
	if started.Node == nil || started.Node.ID != "n0" || started.Node.Type != content.NodeReflection {
		t.Fatalf("start node = %+v", started.Node)
	}

	// Reflection with coaching: the node completes and a dialogue opens.
	var reflected ReflectResult
	code := h.post(t, "/api/play/sessions/"+sessionID+"/reflect",
		reflectRequest{NodeID: "n0", Text: "They seem withdrawn.", Coaching: true}, &reflected)
	if code != http.StatusOK {
		t.Fatalf("reflect status = %d", code)
	}
	if reflected.Coaching == nil || reflected.Coaching.Number != 1 {
		t.Fatalf("coaching exchange = %+v", reflected.Coaching)
	}
	if reflected.View.Node == nil || reflected.View.Node.ID != "n1" {
		t.Fatalf("node after reflect = %+v", reflected.View.Node)
	}
	if reflected.View.Session.TotalScore != engine.ReflectionAward {
		t.Errorf("score after reflect = %d", reflected.View.Session.TotalScore)
	}

	// Two more coaching rounds exhaust the dialogue.
	for i := 2; i <= 3; i++ {
		var ex coach.Exchange
		code := h.post(t, "/api/play/sessions/"+sessionID+"/coach", coachRequest{Text: "tell me more"}, &ex)
		if code != http.StatusOK {
			t.Fatalf("coach round %d status = %d", i, code)
		}
		if ex.Number != i {
			t.Errorf("coach round = %d, want %d", ex.Number, i)
		}
	}
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/coach", coachRequest{Text: "more"}, nil); code != http.StatusConflict {
		t.Errorf("fourth coach round status = %d, want 409", code)
	}

	// Decision node: choices are presented without scoring fields.
	if len(reflected.View.Node.Choices) != 3 {
		t.Fatalf("choices = %+v", reflected.View.Node.Choices)
	}

	var chosen ChooseResult
	code = h.post(t, "/api/play/sessions/"+sessionID+"/choose",
		chooseRequest{NodeID: "n1", ChoiceID: "c-1on1"}, &chosen)
	if code != http.StatusOK {
		t.Fatalf("choose status = %d", code)
	}
	if chosen.Record.Points != 28 {
		t.Errorf("recorded points = %d, want 28", chosen.Record.Points)
	}
	if chosen.Finalized {
		t.Error("session finalized before the outcome node")
	}
	if chosen.View.Node == nil || chosen.View.Node.Type != content.NodeOutcome {
		t.Fatalf("node after choose = %+v", chosen.View.Node)
	}

	// Outcome acknowledgement completes and finalizes the run.
	var final View
	code = h.post(t, "/api/play/sessions/"+sessionID+"/advance", advanceRequest{NodeID: "n2"}, &final)
	if code != http.StatusOK {
		t.Fatalf("advance status = %d", code)
	}
	if !final.Complete || final.Session.CompletedAt == nil {
		t.Fatalf("final view = %+v", final)
	}
	if final.Session.TotalScore != 38 {
		t.Errorf("final total = %d, want 38", final.Session.TotalScore)
	}

	// The finalized session is readable from storage.
	var stored View
	if code := h.get(t, "/api/play/sessions/"+sessionID, &stored); code != http.StatusOK {
		t.Fatalf("get stored session status = %d", code)
	}
	if !stored.Complete || stored.Session.EngagementScore != 2 || stored.Session.CultureScore != 1 {
		t.Errorf("stored session = %+v", stored.Session)
	}

	// Feedback replays against the recorded sibling set, repeatedly.
	for i := 0; i < 2; i++ {
		var fb coach.Feedback
		code = h.post(t, "/api/play/sessions/"+sessionID+"/feedback", feedbackRequest{NodeID: "n1"}, &fb)
		if code != http.StatusOK {
			t.Fatalf("feedback status = %d", code)
		}
		if fb.Classification != coach.Affirming || fb.OptimalID != "c-1on1" {
			t.Errorf("feedback = %+v", fb)
		}
	}
}

func TestStartRefusesWhileIncompleteExists(t *testing.T) {
	h := newHarness(t)

	var first View
	if code := h.post(t, "/api/play/start", startRequest{UserID: "alice", ScenarioID: "scn-1"}, &first); code != http.StatusCreated {
		t.Fatalf("start status = %d", code)
	}
	waitForCheckpoint(t, h, "alice")

	if code := h.post(t, "/api/play/start", startRequest{UserID: "alice", ScenarioID: "scn-1"}, nil); code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", code)
	}

	if code := h.post(t, "/api/play/discard", startRequest{UserID: "alice", ScenarioID: "scn-1"}, nil); code != http.StatusNoContent {
		t.Errorf("discard status = %d", code)
	}
	if code := h.post(t, "/api/play/start", startRequest{UserID: "alice", ScenarioID: "scn-1"}, nil); code != http.StatusCreated {
		t.Errorf("start after discard status = %d", code)
	}
}

func TestResumeRestoresFromCheckpoint(t *testing.T) {
	h := newHarness(t)

	var started View
	if code := h.post(t, "/api/play/start", startRequest{UserID: "alice", ScenarioID: "scn-1"}, &started); code != http.StatusCreated {
		t.Fatalf("start status = %d", code)
	}
	var reflected ReflectResult
	code := h.post(t, "/api/play/sessions/"+started.Session.ID+"/reflect",
		reflectRequest{NodeID: "n0", Text: "noticing things"}, &reflected)
	if code != http.StatusOK {
		t.Fatalf("reflect status = %d", code)
	}
	waitForCheckpointAt(t, h, "alice", 1)

	// A second service over the same stores stands in for a restart.
	ch := coach.New(&stubLLM{response: "ok"}, "test-model", time.Second, coach.NewFallbackDeck(1), nil)
	svc2 := NewService(h.eng, ch, h.provider, h.store)
	r := chi.NewRouter()
	RegisterRoutes(r, svc2)
	srv2 := httptest.NewServer(r)
	defer srv2.Close()

	raw, _ := json.Marshal(startRequest{UserID: "alice", ScenarioID: "scn-1"})
	resp, err := http.Post(srv2.URL+"/api/play/resume", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}
	var resumed View
	if err := json.NewDecoder(resp.Body).Decode(&resumed); err != nil {
		t.Fatalf("decode resume: %v", err)
	}
	if resumed.Session.NodeIndex != 1 || resumed.Node.ID != "n1" {
		t.Errorf("resumed at %+v", resumed)
	}
	if resumed.Session.TotalScore != engine.ReflectionAward {
		t.Errorf("resumed score = %d", resumed.Session.TotalScore)
	}
}

func TestPlayErrorMapping(t *testing.T) {
	h := newHarness(t)

	var started View
	if code := h.post(t, "/api/play/start", startRequest{UserID: "alice", ScenarioID: "scn-1"}, &started); code != http.StatusCreated {
		t.Fatalf("start status = %d", code)
	}
	sessionID := started.Session.ID

	// Reflecting at the wrong node is a state conflict.
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/reflect", reflectRequest{NodeID: "n1", Text: "x"}, nil); code != http.StatusConflict {
		t.Errorf("wrong-node reflect status = %d, want 409", code)
	}
	// Empty reflection text is bad input.
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/reflect", reflectRequest{NodeID: "n0", Text: "   "}, nil); code != http.StatusBadRequest {
		t.Errorf("empty reflect status = %d, want 400", code)
	}
	// Unknown sessions are not found.
	if code := h.post(t, "/api/play/sessions/nope/choose", chooseRequest{NodeID: "n1", ChoiceID: "c-1on1"}, nil); code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", code)
	}
	if code := h.get(t, "/api/play/sessions/nope", nil); code != http.StatusNotFound {
		t.Errorf("unknown session get status = %d, want 404", code)
	}
	// Coaching without a dialogue is not found.
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/coach", coachRequest{Text: "hi"}, nil); code != http.StatusNotFound {
		t.Errorf("no-dialogue coach status = %d, want 404", code)
	}
	// Unknown scenarios are not found.
	if code := h.post(t, "/api/play/start", startRequest{UserID: "bob", ScenarioID: "scn-missing"}, nil); code != http.StatusNotFound {
		t.Errorf("unknown scenario status = %d, want 404", code)
	}

	// A choice from another node is rejected.
	var reflected ReflectResult
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/reflect", reflectRequest{NodeID: "n0", Text: "ok"}, &reflected); code != http.StatusOK {
		t.Fatalf("reflect status = %d", code)
	}
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/choose", chooseRequest{NodeID: "n1", ChoiceID: "c-bogus"}, nil); code != http.StatusBadRequest {
		t.Errorf("invalid choice status = %d, want 400", code)
	}
	// Feedback before any decision at the node is not found.
	if code := h.post(t, "/api/play/sessions/"+sessionID+"/feedback", feedbackRequest{NodeID: "n1"}, nil); code != http.StatusNotFound {
		t.Errorf("premature feedback status = %d, want 404", code)
	}
}

// postJSON and getJSON return errors instead of failing the test, so they
// are safe to call from worker goroutines.
func (h *harness) postJSON(path string, body, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (h *harness) getJSON(path string, out any) (int, error) {
	resp, err := http.Get(h.srv.URL + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// playThrough drives one user's full run over HTTP, reading the view
// between mutations, and checks the final scores.
func (h *harness) playThrough(user string) error {
	var started View
	code, err := h.postJSON("/api/play/start", startRequest{UserID: user, ScenarioID: "scn-1"}, &started)
	if err != nil || code != http.StatusCreated {
		return fmt.Errorf("%s start: status %d, err %v", user, code, err)
	}
	id := started.Session.ID

	var reflected ReflectResult
	code, err = h.postJSON("/api/play/sessions/"+id+"/reflect",
		reflectRequest{NodeID: "n0", Text: "They seem withdrawn.", Coaching: false}, &reflected)
	if err != nil || code != http.StatusOK {
		return fmt.Errorf("%s reflect: status %d, err %v", user, code, err)
	}

	var mid View
	code, err = h.getJSON("/api/play/sessions/"+id, &mid)
	if err != nil || code != http.StatusOK {
		return fmt.Errorf("%s mid view: status %d, err %v", user, code, err)
	}
	if mid.Node == nil || mid.Node.ID != "n1" {
		return fmt.Errorf("%s mid view node = %+v", user, mid.Node)
	}

	var chosen ChooseResult
	code, err = h.postJSON("/api/play/sessions/"+id+"/choose",
		chooseRequest{NodeID: "n1", ChoiceID: "c-1on1"}, &chosen)
	if err != nil || code != http.StatusOK {
		return fmt.Errorf("%s choose: status %d, err %v", user, code, err)
	}

	var final View
	code, err = h.postJSON("/api/play/sessions/"+id+"/advance", advanceRequest{NodeID: "n2"}, &final)
	if err != nil || code != http.StatusOK {
		return fmt.Errorf("%s advance: status %d, err %v", user, code, err)
	}
	if !final.Complete {
		return fmt.Errorf("%s run did not finalize", user)
	}
	if final.Session.TotalScore != 38 || final.Session.EngagementScore != 2 || final.Session.CultureScore != 1 {
		return fmt.Errorf("%s final scores = %d/%d/%d", user,
			final.Session.TotalScore, final.Session.EngagementScore, final.Session.CultureScore)
	}
	return nil
}

// Runs are independent: one session's operations must not serialize or
// corrupt another's, and every concurrent run lands on the same totals.
func TestConcurrentSessionsProceedIndependently(t *testing.T) {
	h := newHarness(t)

	const players = 8
	var wg sync.WaitGroup
	errs := make(chan error, players)
	for i := 0; i < players; i++ {
		user := fmt.Sprintf("user-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.playThrough(user)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}

	for i := 0; i < players; i++ {
		user := fmt.Sprintf("user-%d", i)
		s, err := h.store.FindIncomplete(context.Background(), user, "scn-1")
		if err != nil {
			t.Fatalf("FindIncomplete: %v", err)
		}
		if s != nil {
			t.Errorf("%s still reported incomplete after finalize: %+v", user, s)
		}
	}
}

func waitForCheckpoint(t *testing.T, h *harness, userID string) {
	t.Helper()
	waitForCheckpointAt(t, h, userID, 0)
}

// waitForCheckpointAt polls until the store holds an incomplete session for
// the user at the given node index. Checkpoints are asynchronous.
func waitForCheckpointAt(t *testing.T, h *harness, userID string, nodeIndex int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := h.store.FindIncomplete(context.Background(), userID, "scn-1")
		if err != nil {
			t.Fatalf("FindIncomplete: %v", err)
		}
		if s != nil && s.NodeIndex >= nodeIndex {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("checkpoint for %s never reached node %d", userID, nodeIndex)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
