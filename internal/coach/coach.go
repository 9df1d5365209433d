// Package coach runs the bounded coaching dialogue attached to reflection
// nodes and the post-decision feedback resolver. All text generation goes
// through an llm.Provider with a bounded timeout; any failure degrades to
// deterministic fallback text, never to an error the play flow can see.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/llm"
)

// MaxExchanges bounds a coaching dialogue to three rounds per node visit.
const MaxExchanges = 3

// maxBehaviorTags caps how many tag names are packed into coaching context.
const maxBehaviorTags = 6

var (
	// ErrExchangeInFlight is returned when a round is requested while a
	// prior one for the same node is still awaiting its response.
	ErrExchangeInFlight = errors.New("a coaching exchange is already in flight for this node")

	// ErrDialogueClosed is returned after the third exchange; the last
	// message is closing remarks and no further reply is solicited.
	ErrDialogueClosed = errors.New("coaching dialogue reached its final exchange")
)

// ExchangeLogEntry is the audit record of one coaching round.
type ExchangeLogEntry struct {
	SessionID      string
	NodeID         string
	ExchangeNumber int
	UserText       string
	CoachMessage   string
	Fallback       bool
}

// AuditLog records coaching exchanges. Delivery is best-effort; coaching
// never waits on the log.
type AuditLog interface {
	LogExchange(ctx context.Context, entry ExchangeLogEntry) error
}

// Coach generates coaching messages for dialogues and decision feedback.
type Coach struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
	fallback *FallbackDeck
	audit    AuditLog
}

// New creates a Coach. audit may be nil.
func New(provider llm.Provider, model string, timeout time.Duration, fallback *FallbackDeck, audit AuditLog) *Coach {
	return &Coach{
		provider: provider,
		model:    model,
		timeout:  timeout,
		fallback: fallback,
		audit:    audit,
	}
}

// Exchange is one completed coaching round.
type Exchange struct {
	Number   int    `json:"number"`
	UserText string `json:"user_text"`
	Message  string `json:"message"`
	Fallback bool   `json:"fallback"`
}

// Dialogue is the coaching state for one reflection-node visit within one
// session. It is ephemeral: advancing past the node discards it, and it is
// never resumable. Scoring is unaffected either way.
type Dialogue struct {
	coach     *Coach
	scenario  *content.Scenario
	sessionID string
	nodeID    string

	mu        sync.Mutex
	inFlight  bool
	exchanges []Exchange
}

// NewDialogue opens a dialogue for the given reflection node visit.
func (c *Coach) NewDialogue(scenario *content.Scenario, sessionID, nodeID string) *Dialogue {
	return &Dialogue{
		coach:     c,
		scenario:  scenario,
		sessionID: sessionID,
		nodeID:    nodeID,
	}
}

// Closed reports whether the dialogue has used all its exchanges.
func (d *Dialogue) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.exchanges) >= MaxExchanges
}

// Exchanges returns a copy of the transcript so far.
func (d *Dialogue) Exchanges() []Exchange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Exchange(nil), d.exchanges...)
}

// Respond runs one coaching round: the user's text (the initial reflection,
// or a reply to the previous coach message) goes out with full scenario
// context, and a coach message comes back. Exchange numbers run strictly
// 1, 2, 3; a fourth round is refused. Only one round may be in flight per
// dialogue at a time.
func (d *Dialogue) Respond(ctx context.Context, userText string) (Exchange, error) {
	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return Exchange{}, ErrExchangeInFlight
	}
	if len(d.exchanges) >= MaxExchanges {
		d.mu.Unlock()
		return Exchange{}, ErrDialogueClosed
	}
	number := len(d.exchanges) + 1
	transcript := append([]Exchange(nil), d.exchanges...)
	d.inFlight = true
	d.mu.Unlock()

	cc := newContext(d.scenario, transcript, userText, number)
	message, usedFallback := d.coach.generate(ctx, coachSystemPrompt, cc.prompt(), number, cc)

	ex := Exchange{
		Number:   number,
		UserText: userText,
		Message:  message,
		Fallback: usedFallback,
	}

	d.mu.Lock()
	d.exchanges = append(d.exchanges, ex)
	d.inFlight = false
	d.mu.Unlock()

	d.coach.logExchange(ExchangeLogEntry{
		SessionID:      d.sessionID,
		NodeID:         d.nodeID,
		ExchangeNumber: number,
		UserText:       userText,
		CoachMessage:   message,
		Fallback:       usedFallback,
	})

	return ex, nil
}

// generate produces one dialogue message, falling back to canned text when
// the provider cannot.
func (c *Coach) generate(ctx context.Context, system, prompt string, exchangeNumber int, cc dialogueContext) (string, bool) {
	message, err := c.complete(ctx, system, prompt)
	if err != nil {
		log.Printf("coaching generation failed (exchange %d): %v", exchangeNumber, err)
		return c.fallback.Exchange(exchangeNumber, cc.CultureValueName, cc.EngagementDimensionTitle), true
	}
	return message, false
}

// complete calls the provider under the coach's timeout. A blank response
// counts as a failure so callers always have text to fall back from.
func (c *Coach) complete(ctx context.Context, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Complete(callCtx, llm.CompletionRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	message := strings.TrimSpace(resp.Content)
	if message == "" {
		return "", errors.New("provider returned an empty completion")
	}
	return message, nil
}

func (c *Coach) logExchange(entry ExchangeLogEntry) {
	if c.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.audit.LogExchange(ctx, entry); err != nil {
			log.Printf("coaching audit log failed: %v", err)
		}
	}()
}

// dialogueContext carries everything the text-generation collaborator needs
// for one coaching round.
type dialogueContext struct {
	ScenarioTitle                  string
	ScenarioDescription            string
	CultureValueName               string
	CultureValueDescription        string
	EngagementDimensionTitle       string
	EngagementDimensionDescription string
	BehaviorTagNames               []string
	PriorTranscript                []Exchange
	LatestUserText                 string
	ExchangeNumber                 int
}

func newContext(s *content.Scenario, transcript []Exchange, latest string, number int) dialogueContext {
	return dialogueContext{
		ScenarioTitle:                  s.Title,
		ScenarioDescription:            s.Description,
		CultureValueName:               s.CultureValue.Name,
		CultureValueDescription:        s.CultureValue.Description,
		EngagementDimensionTitle:       s.PrimaryDimension.Title,
		EngagementDimensionDescription: s.PrimaryDimension.Description,
		BehaviorTagNames:               s.BehaviorTagNames(maxBehaviorTags),
		PriorTranscript:                transcript,
		LatestUserText:                 latest,
		ExchangeNumber:                 number,
	}
}

const coachSystemPrompt = `You are a management coach inside a leadership training scenario. Respond to the manager's reflection in 2-4 sentences: acknowledge what they noticed, connect it to the named culture value and engagement dimension, and end with one open question that deepens their thinking. On the final exchange, close with encouragement instead of a question. Never grade or score the reflection.`

func (cc dialogueContext) prompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Scenario\n%s\n%s\n", cc.ScenarioTitle, cc.ScenarioDescription)
	fmt.Fprintf(&b, "\n## Culture Value\n%s: %s\n", cc.CultureValueName, cc.CultureValueDescription)
	fmt.Fprintf(&b, "\n## Engagement Dimension\n%s: %s\n", cc.EngagementDimensionTitle, cc.EngagementDimensionDescription)

	if len(cc.BehaviorTagNames) > 0 {
		fmt.Fprintf(&b, "\n## Behaviors In Play\n%s\n", strings.Join(cc.BehaviorTagNames, ", "))
	}

	if len(cc.PriorTranscript) > 0 {
		b.WriteString("\n## Conversation So Far\n")
		for _, ex := range cc.PriorTranscript {
			fmt.Fprintf(&b, "manager: %s\ncoach: %s\n", ex.UserText, ex.Message)
		}
	}

	fmt.Fprintf(&b, "\n## Manager's Latest Reflection\n%s\n", cc.LatestUserText)
	fmt.Fprintf(&b, "\nThis is exchange %d of %d.", cc.ExchangeNumber, MaxExchanges)
	if cc.ExchangeNumber == MaxExchanges {
		b.WriteString(" Give closing remarks; do not ask another question.")
	}

	return b.String()
}
