package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/scoring"
)

// Classification labels decision feedback by whether the learner picked the
// optimal choice.
type Classification string

const (
	Affirming  Classification = "affirming"
	Corrective Classification = "corrective"
)

// ErrChoiceNotInSet is returned when the chosen ID is absent from the
// sibling set it is being judged against.
var ErrChoiceNotInSet = errors.New("chosen option is not in the recorded choice set")

// Feedback is the resolved verdict on one recorded decision.
type Feedback struct {
	Classification Classification `json:"classification"`
	ChosenID       string         `json:"chosen_id"`
	OptimalID      string         `json:"optimal_id"`
	Message        string         `json:"message"`
	Fallback       bool           `json:"fallback"`
}

// DecisionFeedback classifies a recorded decision against the sibling set
// captured when it was made, and generates a feedback message. The chosen
// option is affirming only when it is identically the optimal one; an equal
// score on a different option is still corrective. The call is idempotent
// and touches no session state, so feedback can be replayed freely.
func (c *Coach) DecisionFeedback(ctx context.Context, scenario *content.Scenario, chosenID string, siblings []content.Choice) (*Feedback, error) {
	optimal, err := scoring.Optimal(siblings)
	if err != nil {
		return nil, fmt.Errorf("resolving optimal choice: %w", err)
	}

	var chosen *content.Choice
	for i := range siblings {
		if siblings[i].ID == chosenID {
			chosen = &siblings[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s", ErrChoiceNotInSet, chosenID)
	}

	kind := Corrective
	if chosen.ID == optimal.ID {
		kind = Affirming
	}

	prompt := feedbackPrompt(scenario, chosen, optimal, kind)
	message, usedFallback := c.generateFeedback(ctx, prompt, kind, scenario)

	return &Feedback{
		Classification: kind,
		ChosenID:       chosen.ID,
		OptimalID:      optimal.ID,
		Message:        message,
		Fallback:       usedFallback,
	}, nil
}

func (c *Coach) generateFeedback(ctx context.Context, prompt string, kind Classification, scenario *content.Scenario) (string, bool) {
	message, err := c.complete(ctx, feedbackSystemPrompt, prompt)
	if err != nil {
		log.Printf("decision feedback generation failed: %v", err)
		return c.fallback.Feedback(kind, scenario.CultureValue.Name, scenario.PrimaryDimension.Title), true
	}
	return message, false
}

const feedbackSystemPrompt = `You are a management coach debriefing a single decision inside a leadership training scenario. Write 2-4 sentences. If the learner picked the strongest option, name what made it strong and reinforce it. If they did not, explain what the strongest option did better, framed forward: what to reach for next time. Never shame, never list scores.`

func feedbackPrompt(s *content.Scenario, chosen, optimal *content.Choice, kind Classification) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Scenario\n%s\n%s\n", s.Title, s.Description)
	fmt.Fprintf(&b, "\n## Culture Value\n%s: %s\n", s.CultureValue.Name, s.CultureValue.Description)
	fmt.Fprintf(&b, "\n## Engagement Dimension\n%s: %s\n", s.PrimaryDimension.Title, s.PrimaryDimension.Description)

	fmt.Fprintf(&b, "\n## Learner's Choice\n%s\n", chosen.Text)
	if chosen.Explanation != "" {
		fmt.Fprintf(&b, "Why it matters: %s\n", chosen.Explanation)
	}

	if kind == Affirming {
		b.WriteString("\nThe learner picked the strongest option. Affirm it.")
	} else {
		fmt.Fprintf(&b, "\n## Strongest Option\n%s\n", optimal.Text)
		if optimal.Explanation != "" {
			fmt.Fprintf(&b, "Why it matters: %s\n", optimal.Explanation)
		}
		b.WriteString("\nThe learner did not pick the strongest option. Explain what the strongest option did better, framed forward.")
	}

	return b.String()
}
