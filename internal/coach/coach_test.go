package coach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/llm"
)

type mockProvider struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
	response string
	err      error
	block    chan struct{}
}

func (m *mockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResponse{Content: m.response}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) lastRequest() llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []ExchangeLogEntry
}

func (a *memoryAudit) LogExchange(ctx context.Context, entry ExchangeLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memoryAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func coachScenario() *content.Scenario {
	return &content.Scenario{
		ID:          "scn-feedback",
		Title:       "The Missed Deadline",
		Description: "A senior engineer misses a sprint commitment for the second time.",
		Difficulty:  content.DifficultyIntermediate,
		PrimaryDimension: content.EngagementDimension{
			ID:          "dim-trust",
			Title:       "Trust in Leadership",
			Description: "Team members believe leaders act fairly and follow through.",
		},
		CultureValue: content.CultureValue{
			ID:          "cv-ownership",
			Name:        "Ownership",
			Description: "We take responsibility for outcomes, not just tasks.",
		},
		Active: true,
		Nodes: []content.Node{
			{ID: "n0", Type: content.NodeReflection, Prompt: "What is your first read?", OrderIndex: 0},
			{
				ID: "n1", Type: content.NodeDecision, Prompt: "How do you open the conversation?", OrderIndex: 1,
				Choices: []content.Choice{
					{
						ID: "c-ask", Text: "Ask what got in the way before judging.",
						Explanation:  "Curiosity before judgment preserves trust.",
						BasePoints:   25, EngagementImpact: 2,
						CultureImpacts: map[string]int{"cv-ownership": 1},
						PositiveTags:   []string{"active-listening"},
					},
					{
						ID: "c-defer", Text: "Wait and see if it happens a third time.",
						BasePoints: 5,
					},
					{
						ID: "c-blame", Text: "Call out the miss in the team channel.",
						Explanation:  "Public blame erodes psychological safety.",
						BasePoints:   -10, EngagementImpact: -2,
						NegativeTags: []string{"dismissiveness"},
					},
				},
			},
		},
	}
}

func newTestCoach(p llm.Provider, audit AuditLog) *Coach {
	return New(p, "test-model", 2*time.Second, NewFallbackDeck(1), audit)
}

func TestDialogueRunsThreeExchanges(t *testing.T) {
	provider := &mockProvider{response: "What do you think drove that reaction?"}
	c := newTestCoach(provider, nil)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	for i := 1; i <= MaxExchanges; i++ {
		ex, err := d.Respond(context.Background(), "my thoughts on round "+string(rune('0'+i)))
		if err != nil {
			t.Fatalf("Respond %d: %v", i, err)
		}
		if ex.Number != i {
			t.Errorf("exchange number = %d, want %d", ex.Number, i)
		}
		if ex.Fallback {
			t.Errorf("exchange %d marked fallback with healthy provider", i)
		}
		if ex.Message != "What do you think drove that reaction?" {
			t.Errorf("exchange %d message = %q", i, ex.Message)
		}
	}

	if !d.Closed() {
		t.Error("dialogue should be closed after three exchanges")
	}
	if _, err := d.Respond(context.Background(), "one more"); !errors.Is(err, ErrDialogueClosed) {
		t.Errorf("fourth Respond error = %v, want ErrDialogueClosed", err)
	}
	if got := len(d.Exchanges()); got != MaxExchanges {
		t.Errorf("transcript length = %d, want %d", got, MaxExchanges)
	}
}

func TestDialoguePromptCarriesScenarioContext(t *testing.T) {
	provider := &mockProvider{response: "Keep going."}
	c := newTestCoach(provider, nil)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	if _, err := d.Respond(context.Background(), "I noticed I got defensive."); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Respond(context.Background(), "Maybe I assumed bad intent."); err != nil {
		t.Fatal(err)
	}

	req := provider.lastRequest()
	if req.Model != "test-model" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("unexpected message shape: %+v", req.Messages)
	}
	prompt := req.Messages[1].Content
	for _, want := range []string{
		"The Missed Deadline",
		"Ownership: We take responsibility",
		"Trust in Leadership: Team members believe",
		"active-listening",
		"dismissiveness",
		"I noticed I got defensive.",
		"coach: Keep going.",
		"Maybe I assumed bad intent.",
		"exchange 2 of 3",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDialogueFinalExchangeAsksForClosing(t *testing.T) {
	provider := &mockProvider{response: "Well done."}
	c := newTestCoach(provider, nil)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	for i := 0; i < MaxExchanges; i++ {
		if _, err := d.Respond(context.Background(), "reflection"); err != nil {
			t.Fatal(err)
		}
	}
	prompt := provider.lastRequest().Messages[1].Content
	if !strings.Contains(prompt, "closing remarks") {
		t.Error("final exchange prompt should request closing remarks")
	}
}

func TestDialogueFallsBackOnProviderFailure(t *testing.T) {
	provider := &mockProvider{err: errors.New("upstream unavailable")}
	c := newTestCoach(provider, nil)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	seen := make(map[string]bool)
	for i := 1; i <= MaxExchanges; i++ {
		ex, err := d.Respond(context.Background(), "reflection")
		if err != nil {
			t.Fatalf("Respond %d: %v", i, err)
		}
		if !ex.Fallback {
			t.Errorf("exchange %d not marked fallback", i)
		}
		if strings.TrimSpace(ex.Message) == "" {
			t.Errorf("exchange %d fallback message is empty", i)
		}
		if !strings.Contains(ex.Message, "Ownership") && !strings.Contains(ex.Message, "Trust in Leadership") {
			t.Errorf("exchange %d fallback not parameterized: %q", i, ex.Message)
		}
		if seen[ex.Message] {
			t.Errorf("exchange %d repeated fallback text %q", i, ex.Message)
		}
		seen[ex.Message] = true
	}
}

func TestDialogueFallsBackOnBlankCompletion(t *testing.T) {
	provider := &mockProvider{response: "   \n"}
	c := newTestCoach(provider, nil)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	ex, err := d.Respond(context.Background(), "reflection")
	if err != nil {
		t.Fatal(err)
	}
	if !ex.Fallback {
		t.Error("blank completion should degrade to fallback")
	}
	if strings.TrimSpace(ex.Message) == "" {
		t.Error("fallback message is empty")
	}
}

func TestDialogueRejectsConcurrentExchange(t *testing.T) {
	provider := &mockProvider{response: "ok", block: make(chan struct{})}
	c := newTestCoach(provider, nil)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := d.Respond(context.Background(), "first"); err != nil {
			t.Errorf("blocked Respond: %v", err)
		}
	}()

	// Wait for the first round to reach the provider.
	deadline := time.Now().Add(2 * time.Second)
	for {
		provider.mu.Lock()
		started := len(provider.requests) > 0
		provider.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first exchange never reached the provider")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := d.Respond(context.Background(), "second"); !errors.Is(err, ErrExchangeInFlight) {
		t.Errorf("concurrent Respond error = %v, want ErrExchangeInFlight", err)
	}

	close(provider.block)
	<-done

	if got := len(d.Exchanges()); got != 1 {
		t.Errorf("transcript length = %d, want 1", got)
	}
}

func TestDialogueLogsExchanges(t *testing.T) {
	provider := &mockProvider{response: "Noted."}
	audit := &memoryAudit{}
	c := newTestCoach(provider, audit)
	d := c.NewDialogue(coachScenario(), "session-1", "n0")

	if _, err := d.Respond(context.Background(), "reflection"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for audit.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audit entry never arrived")
		}
		time.Sleep(time.Millisecond)
	}

	audit.mu.Lock()
	entry := audit.entries[0]
	audit.mu.Unlock()
	if entry.SessionID != "session-1" || entry.NodeID != "n0" || entry.ExchangeNumber != 1 {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	if entry.CoachMessage != "Noted." || entry.UserText != "reflection" {
		t.Errorf("audit entry text mismatch: %+v", entry)
	}
}
