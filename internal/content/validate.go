package content

import (
	"fmt"
	"sort"
)

// Validate checks the data integrity of an authored scenario: contiguous
// unique order indices starting at 0, choices only on decision nodes, at
// least one choice per decision node, next-node references that point
// strictly forward, and culture-impact keys drawn from the known
// culture-value set. Violations are authoring errors and make the scenario
// unplayable; they must be caught here, at content-load time.
//
// As a side effect, Nodes are sorted by OrderIndex so that
// Nodes[i].OrderIndex == i holds afterwards.
func Validate(s *Scenario, cultureValueIDs map[string]bool) error {
	if s.ID == "" {
		return fmt.Errorf("scenario has no id")
	}
	if s.Title == "" {
		return fmt.Errorf("scenario %s: title is required", s.ID)
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("scenario %s: node sequence is empty", s.ID)
	}

	sort.Slice(s.Nodes, func(i, j int) bool {
		return s.Nodes[i].OrderIndex < s.Nodes[j].OrderIndex
	})

	orderByID := make(map[string]int, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.OrderIndex != i {
			return fmt.Errorf("scenario %s: order indices are not contiguous from 0 (node %s has index %d at position %d)",
				s.ID, n.ID, n.OrderIndex, i)
		}
		if _, dup := orderByID[n.ID]; dup {
			return fmt.Errorf("scenario %s: duplicate node id %s", s.ID, n.ID)
		}
		orderByID[n.ID] = n.OrderIndex
	}

	for _, n := range s.Nodes {
		switch n.Type {
		case NodeDecision:
			if len(n.Choices) == 0 {
				return fmt.Errorf("scenario %s: decision node %s has no choices", s.ID, n.ID)
			}
		case NodeReflection, NodeOutcome:
			if len(n.Choices) > 0 {
				return fmt.Errorf("scenario %s: %s node %s must not have choices", s.ID, n.Type, n.ID)
			}
		default:
			return fmt.Errorf("scenario %s: node %s has unknown type %q", s.ID, n.ID, n.Type)
		}

		for _, c := range n.Choices {
			if c.NextNodeID != "" {
				next, ok := orderByID[c.NextNodeID]
				if !ok {
					return fmt.Errorf("scenario %s: choice %s references unknown node %s", s.ID, c.ID, c.NextNodeID)
				}
				// Forward-only chain: a backward or self reference would
				// make the graph cyclic.
				if next <= n.OrderIndex {
					return fmt.Errorf("scenario %s: choice %s on node %s (index %d) must point forward, references index %d",
						s.ID, c.ID, n.ID, n.OrderIndex, next)
				}
			}
			for cvID := range c.CultureImpacts {
				if !cultureValueIDs[cvID] {
					return fmt.Errorf("scenario %s: choice %s has culture impact for unknown value %q", s.ID, c.ID, cvID)
				}
			}
		}
	}

	return nil
}
