package engine

import (
	"time"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
)

// ReflectionAward is the flat point award for completing a reflection node.
// Reflections are coached, not graded, so the award is content-independent.
const ReflectionAward = 10

// ReflectionRecord is one completed reflection node within a session.
type ReflectionRecord struct {
	NodeID     string    `json:"node_id"`
	Text       string    `json:"text"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ChoiceRecord is one completed decision node within a session. Siblings
// retains the full choice set offered at selection time; post-hoc feedback
// replays against this snapshot, never against live content.
type ChoiceRecord struct {
	NodeID     string           `json:"node_id"`
	ChoiceID   string           `json:"choice_id"`
	Points     int              `json:"points"`
	Siblings   []content.Choice `json:"siblings"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// Session is one user's run through a scenario. The engine owns all
// mutation; a session is advanced serially by a single play flow.
type Session struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	ScenarioID      string             `json:"scenario_id"`
	NodeIndex       int                `json:"node_index"`
	TotalScore      int                `json:"total_score"`
	EngagementScore int                `json:"engagement_score"`
	CultureScore    int                `json:"culture_score"`
	Reflections     []ReflectionRecord `json:"reflections"`
	Choices         []ChoiceRecord     `json:"choices"`
	PositiveTags    []string           `json:"positive_tags"`
	NegativeTags    []string           `json:"negative_tags"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// Finalized reports whether the session has been frozen.
func (s *Session) Finalized() bool {
	return s.CompletedAt != nil
}

// Clone returns a deep copy of the session, safe to hand to asynchronous
// collaborators while play continues to mutate the original.
func (s *Session) Clone() *Session {
	c := *s
	c.Reflections = append([]ReflectionRecord(nil), s.Reflections...)
	c.Choices = make([]ChoiceRecord, len(s.Choices))
	for i, cr := range s.Choices {
		cr.Siblings = append([]content.Choice(nil), cr.Siblings...)
		c.Choices[i] = cr
	}
	c.PositiveTags = append([]string(nil), s.PositiveTags...)
	c.NegativeTags = append([]string(nil), s.NegativeTags...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// addTags unions tag names into dest, preserving first-seen order.
func addTags(dest []string, tags []string) []string {
	for _, tag := range tags {
		found := false
		for _, existing := range dest {
			if existing == tag {
				found = true
				break
			}
		}
		if !found {
			dest = append(dest, tag)
		}
	}
	return dest
}
