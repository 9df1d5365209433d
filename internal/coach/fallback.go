package coach

import (
	"fmt"
	"math/rand"
	"sync"
)

// FallbackDeck supplies canned coaching text when the provider is
// unavailable. Templates are parameterized by culture value and engagement
// dimension so the text still names the scenario's framing, and selection
// is seedable so the rotation is reproducible.
type FallbackDeck struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackDeck creates a deck whose template rotation is driven by seed.
func NewFallbackDeck(seed int64) *FallbackDeck {
	return &FallbackDeck{rng: rand.New(rand.NewSource(seed))}
}

// Templates are grouped by exchange number: the first acknowledges and
// probes, the second deepens, the third closes out. %[1]s is the culture
// value name, %[2]s the engagement dimension title.
var exchangeTemplates = [MaxExchanges][]string{
	{
		"Thanks for putting that into words. Noticing your own reaction is where %[1]s starts to show up in practice. What do you think the other person in this situation needed from you most in that moment?",
		"That's a thoughtful place to begin. Situations like this one tend to test %[2]s more than anything else. If you replayed the moment, what is one thing you would pay closer attention to?",
	},
	{
		"You're building on your first read of the situation, which is exactly the habit %[1]s asks for. How might the other person describe what happened, in their own words?",
		"That adds a useful layer. Keep in mind that %[2]s is shaped by small moments like this one. What would acting on this insight look like the next time a similar situation comes up?",
	},
	{
		"You've worked through this reflection with real honesty, and that's the muscle %[1]s depends on. Carry this awareness into the decisions ahead; you're ready for them.",
		"This is a strong place to land. The connection you made to %[2]s will serve you well beyond this scenario. Take it with you into what comes next.",
	},
}

// Exchange returns fallback text for the given exchange number (1-based).
func (d *FallbackDeck) Exchange(number int, cultureValue, dimension string) string {
	if number < 1 || number > MaxExchanges {
		number = MaxExchanges
	}
	set := exchangeTemplates[number-1]
	return fmt.Sprintf(d.pick(set), cultureValue, dimension)
}

var affirmingTemplates = []string{
	"Good call. That choice reflects %[1]s directly, and it's the kind of move that strengthens %[2]s on a team. Keep reaching for it when the pressure is on.",
	"That was the strongest option here. It lines up with %[1]s and gives the people involved a reason to stay engaged. Notice what made it feel right so you can repeat it.",
}

var correctiveTemplates = []string{
	"There was a stronger option here. The better path leans harder into %[1]s; next time a moment like this comes up, slow down and ask what that value asks of you before acting.",
	"This choice cost some ground on %[2]s. That's recoverable, and the useful part is seeing why: the strongest option put the other person's experience first. Look for that framing next time.",
}

// Feedback returns fallback decision-feedback text for the classification.
func (d *FallbackDeck) Feedback(kind Classification, cultureValue, dimension string) string {
	set := correctiveTemplates
	if kind == Affirming {
		set = affirmingTemplates
	}
	return fmt.Sprintf(d.pick(set), cultureValue, dimension)
}

func (d *FallbackDeck) pick(set []string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return set[d.rng.Intn(len(set))]
}
