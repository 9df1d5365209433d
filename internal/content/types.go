package content

import "context"

// NodeType identifies what kind of step a node is.
type NodeType string

const (
	NodeReflection NodeType = "reflection"
	NodeDecision   NodeType = "decision"
	NodeOutcome    NodeType = "outcome"
)

// Difficulty is the authored difficulty tier of a scenario.
type Difficulty string

const (
	DifficultyIntro        Difficulty = "intro"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// CultureValue is one of the fixed taxonomy of organizational values.
type CultureValue struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// EngagementDimension is one of the fixed taxonomy of workplace-engagement factors.
type EngagementDimension struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// BehaviorTag is a named, discrete leadership behavior a choice can
// positively activate or negatively flag.
type BehaviorTag struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Choice is one selectable option under a decision node. Choices are
// authored content and never mutated during play.
type Choice struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	Explanation      string         `json:"explanation"`
	BasePoints       int            `json:"base_points"`
	EngagementImpact int            `json:"engagement_impact"`
	CultureImpacts   map[string]int `json:"culture_impacts,omitempty"`
	// NextNodeID points at the node that follows this choice. Empty only
	// for the terminal decision in a scenario.
	NextNodeID   string   `json:"next_node_id,omitempty"`
	PositiveTags []string `json:"positive_tags,omitempty"`
	NegativeTags []string `json:"negative_tags,omitempty"`
}

// Node is a single step in a scenario. Only decision nodes carry choices,
// in authored order.
type Node struct {
	ID         string   `json:"id"`
	Type       NodeType `json:"type"`
	Prompt     string   `json:"prompt"`
	OrderIndex int      `json:"order_index"`
	Choices    []Choice `json:"choices,omitempty"`
}

// Scenario is a complete authored exercise: an ordered, forward-only chain
// of nodes. Nodes are kept sorted by OrderIndex, which Validate guarantees
// to be contiguous from 0, so Nodes[i].OrderIndex == i.
type Scenario struct {
	ID                 string               `json:"id"`
	Title              string               `json:"title"`
	Description        string               `json:"description"`
	Difficulty         Difficulty           `json:"difficulty"`
	EstimatedMinutes   int                  `json:"estimated_minutes"`
	PrimaryDimension   EngagementDimension  `json:"primary_dimension"`
	SecondaryDimension *EngagementDimension `json:"secondary_dimension,omitempty"`
	CultureValue       CultureValue         `json:"culture_value"`
	Active             bool                 `json:"active"`
	Nodes              []Node               `json:"nodes"`
}

// NodeAt returns the node at the given position, or nil if out of range.
func (s *Scenario) NodeAt(index int) *Node {
	if index < 0 || index >= len(s.Nodes) {
		return nil
	}
	return &s.Nodes[index]
}

// NodeByID returns the node with the given ID, or nil if absent.
func (s *Scenario) NodeByID(id string) *Node {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// BehaviorTagNames returns up to limit distinct behavior-tag names used
// by the scenario's choices, in first-appearance order.
func (s *Scenario) BehaviorTagNames(limit int) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(tags []string) {
		for _, name := range tags {
			if seen[name] || len(names) >= limit {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, n := range s.Nodes {
		for _, c := range n.Choices {
			add(c.PositiveTags)
			add(c.NegativeTags)
		}
	}
	return names
}

// Summary is the listing view of a scenario.
type Summary struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Difficulty       Difficulty `json:"difficulty"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Active           bool       `json:"active"`
	NodeCount        int        `json:"node_count"`
}

// Provider is the read-only scenario content boundary the engine consumes.
// Implementations resolve behavior-tag names onto choices; the engine never
// sees raw tag IDs.
type Provider interface {
	Scenario(ctx context.Context, id string) (*Scenario, error)
	List(ctx context.Context) ([]Summary, error)
}
