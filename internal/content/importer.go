package content

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scenarioFile is the authored YAML shape of a scenario. Node order in the
// file is the node order in play; choice order in the file is the authored
// sibling order used for optimal-choice tie-breaking.
type scenarioFile struct {
	ID               string     `yaml:"id"`
	Title            string     `yaml:"title"`
	Description      string     `yaml:"description"`
	Difficulty       Difficulty `yaml:"difficulty"`
	EstimatedMinutes int        `yaml:"estimated_minutes"`
	Active           *bool      `yaml:"active"`

	CultureValues        []CultureValue        `yaml:"culture_values"`
	CultureValue         string                `yaml:"culture_value"`
	EngagementDimensions []EngagementDimension `yaml:"engagement_dimensions"`
	PrimaryDimension     string                `yaml:"primary_dimension"`
	SecondaryDimension   string                `yaml:"secondary_dimension"`
	BehaviorTags         []BehaviorTag         `yaml:"behavior_tags"`

	Nodes []nodeFile `yaml:"nodes"`
}

type nodeFile struct {
	ID      string       `yaml:"id"`
	Type    NodeType     `yaml:"type"`
	Prompt  string       `yaml:"prompt"`
	Choices []choiceFile `yaml:"choices"`
}

type choiceFile struct {
	ID               string         `yaml:"id"`
	Text             string         `yaml:"text"`
	Explanation      string         `yaml:"explanation"`
	BasePoints       int            `yaml:"base_points"`
	EngagementImpact int            `yaml:"engagement_impact"`
	CultureImpacts   map[string]int `yaml:"culture_impacts"`
	NextNode         string         `yaml:"next_node"`
	PositiveTags     []string       `yaml:"positive_tags"`
	NegativeTags     []string       `yaml:"negative_tags"`
}

// LoadFile parses and validates one authored scenario YAML file, returning
// a bundle ready for Store.Save.
func LoadFile(path string) (*ImportBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	bundle, err := parseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bundle, nil
}

func parseScenario(data []byte) (*ImportBundle, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	cultureByID := make(map[string]CultureValue, len(f.CultureValues))
	cultureIDs := make(map[string]bool, len(f.CultureValues))
	for _, cv := range f.CultureValues {
		cultureByID[cv.ID] = cv
		cultureIDs[cv.ID] = true
	}
	scenarioValue, ok := cultureByID[f.CultureValue]
	if !ok {
		return nil, fmt.Errorf("scenario %s: culture_value %q is not declared in culture_values", f.ID, f.CultureValue)
	}

	dimByID := make(map[string]EngagementDimension, len(f.EngagementDimensions))
	for _, d := range f.EngagementDimensions {
		dimByID[d.ID] = d
	}
	primary, ok := dimByID[f.PrimaryDimension]
	if !ok {
		return nil, fmt.Errorf("scenario %s: primary_dimension %q is not declared in engagement_dimensions", f.ID, f.PrimaryDimension)
	}
	var secondary *EngagementDimension
	if f.SecondaryDimension != "" {
		d, ok := dimByID[f.SecondaryDimension]
		if !ok {
			return nil, fmt.Errorf("scenario %s: secondary_dimension %q is not declared in engagement_dimensions", f.ID, f.SecondaryDimension)
		}
		secondary = &d
	}

	tagNames := make(map[string]bool, len(f.BehaviorTags))
	for _, bt := range f.BehaviorTags {
		tagNames[bt.Name] = true
	}

	sc := &Scenario{
		ID:                 f.ID,
		Title:              f.Title,
		Description:        f.Description,
		Difficulty:         f.Difficulty,
		EstimatedMinutes:   f.EstimatedMinutes,
		PrimaryDimension:   primary,
		SecondaryDimension: secondary,
		CultureValue:       scenarioValue,
		Active:             f.Active == nil || *f.Active,
	}
	if sc.Difficulty == "" {
		sc.Difficulty = DifficultyIntro
	}
	if sc.EstimatedMinutes == 0 {
		sc.EstimatedMinutes = 15
	}

	for i, nf := range f.Nodes {
		node := Node{
			ID:         nf.ID,
			Type:       nf.Type,
			Prompt:     nf.Prompt,
			OrderIndex: i,
		}
		for _, cf := range nf.Choices {
			for _, name := range append(append([]string{}, cf.PositiveTags...), cf.NegativeTags...) {
				if !tagNames[name] {
					return nil, fmt.Errorf("scenario %s: choice %s references undeclared behavior tag %q", f.ID, cf.ID, name)
				}
			}
			node.Choices = append(node.Choices, Choice{
				ID:               cf.ID,
				Text:             cf.Text,
				Explanation:      cf.Explanation,
				BasePoints:       cf.BasePoints,
				EngagementImpact: cf.EngagementImpact,
				CultureImpacts:   cf.CultureImpacts,
				NextNodeID:       cf.NextNode,
				PositiveTags:     cf.PositiveTags,
				NegativeTags:     cf.NegativeTags,
			})
		}
		sc.Nodes = append(sc.Nodes, node)
	}

	if err := Validate(sc, cultureIDs); err != nil {
		return nil, err
	}

	return &ImportBundle{
		Scenario:      sc,
		CultureValues: f.CultureValues,
		Dimensions:    f.EngagementDimensions,
		BehaviorTags:  f.BehaviorTags,
	}, nil
}
