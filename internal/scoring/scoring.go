// Package scoring computes choice point values and determines the optimal
// choice among siblings. Both live play and post-hoc feedback call into the
// same functions; the formula must never fork between the two.
package scoring

import (
	"errors"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
)

// ErrNoChoices is returned when Optimal is invoked on an empty choice set.
// A decision node without choices is an authoring error, not a normal
// runtime condition.
var ErrNoChoices = errors.New("decision node has no choices")

// Score returns the total point value of a choice: base points plus
// engagement impact plus the sum of all culture-value impacts.
func Score(c content.Choice) int {
	total := c.BasePoints + c.EngagementImpact
	for _, impact := range c.CultureImpacts {
		total += impact
	}
	return total
}

// Optimal returns the choice with the strictly greatest Score. Ties go to
// the first choice in authored order, keeping the result deterministic
// across calls.
func Optimal(choices []content.Choice) (*content.Choice, error) {
	if len(choices) == 0 {
		return nil, ErrNoChoices
	}

	best := 0
	bestScore := Score(choices[0])
	for i := 1; i < len(choices); i++ {
		if s := Score(choices[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return &choices[best], nil
}
