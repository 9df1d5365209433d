package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
)

// ErrNotFound is returned when a scenario does not exist.
var ErrNotFound = errors.New("scenario not found")

// Store provides read and import access to authored scenario content.
// It implements Provider.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// List returns summaries of all scenarios, active first, newest first within
// each group.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.description, s.difficulty, s.estimated_minutes, s.active,
		       (SELECT COUNT(*) FROM nodes n WHERE n.scenario_id = s.id)
		FROM scenarios s
		ORDER BY s.active DESC, s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying scenarios: %w", err)
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var sum Summary
		var active int
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Description, &sum.Difficulty,
			&sum.EstimatedMinutes, &active, &sum.NodeCount); err != nil {
			return nil, fmt.Errorf("scanning scenario summary: %w", err)
		}
		sum.Active = active != 0
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Scenario loads a full scenario: ordered nodes, each decision node's choices
// in authored order, culture impacts, and resolved behavior-tag names.
func (s *Store) Scenario(ctx context.Context, id string) (*Scenario, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.title, s.description, s.difficulty, s.estimated_minutes, s.active,
		       cv.id, cv.name, cv.description,
		       pd.id, pd.title, pd.description,
		       sd.id, sd.title, sd.description
		FROM scenarios s
		JOIN culture_values cv ON cv.id = s.culture_value_id
		JOIN engagement_dimensions pd ON pd.id = s.primary_dimension_id
		LEFT JOIN engagement_dimensions sd ON sd.id = s.secondary_dimension_id
		WHERE s.id = ?`, id)

	var (
		sc            Scenario
		active        int
		sdID, sdTitle, sdDesc sql.NullString
	)
	err := row.Scan(&sc.ID, &sc.Title, &sc.Description, &sc.Difficulty, &sc.EstimatedMinutes, &active,
		&sc.CultureValue.ID, &sc.CultureValue.Name, &sc.CultureValue.Description,
		&sc.PrimaryDimension.ID, &sc.PrimaryDimension.Title, &sc.PrimaryDimension.Description,
		&sdID, &sdTitle, &sdDesc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying scenario %s: %w", id, err)
	}
	sc.Active = active != 0
	if sdID.Valid {
		sc.SecondaryDimension = &EngagementDimension{
			ID: sdID.String, Title: sdTitle.String, Description: sdDesc.String,
		}
	}

	if err := s.loadNodes(ctx, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Store) loadNodes(ctx context.Context, sc *Scenario) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, prompt, order_index
		FROM nodes WHERE scenario_id = ?
		ORDER BY order_index`, sc.ID)
	if err != nil {
		return fmt.Errorf("querying nodes for %s: %w", sc.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Type, &n.Prompt, &n.OrderIndex); err != nil {
			return fmt.Errorf("scanning node: %w", err)
		}
		sc.Nodes = append(sc.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range sc.Nodes {
		if sc.Nodes[i].Type != NodeDecision {
			continue
		}
		choices, err := s.loadChoices(ctx, sc.Nodes[i].ID)
		if err != nil {
			return err
		}
		sc.Nodes[i].Choices = choices
	}
	return nil
}

func (s *Store) loadChoices(ctx context.Context, nodeID string) ([]Choice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, explanation, base_points, engagement_impact, next_node_id
		FROM choices WHERE node_id = ?
		ORDER BY position`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying choices for node %s: %w", nodeID, err)
	}
	defer rows.Close()

	var choices []Choice
	for rows.Next() {
		var (
			c    Choice
			next sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.Explanation, &c.BasePoints, &c.EngagementImpact, &next); err != nil {
			return nil, fmt.Errorf("scanning choice: %w", err)
		}
		if next.Valid {
			c.NextNodeID = next.String
		}
		choices = append(choices, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range choices {
		if err := s.loadChoiceDetail(ctx, &choices[i]); err != nil {
			return nil, err
		}
	}
	return choices, nil
}

func (s *Store) loadChoiceDetail(ctx context.Context, c *Choice) error {
	impactRows, err := s.db.QueryContext(ctx, `
		SELECT culture_value_id, impact
		FROM choice_culture_impacts WHERE choice_id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("querying culture impacts for choice %s: %w", c.ID, err)
	}
	defer impactRows.Close()

	for impactRows.Next() {
		var cvID string
		var impact int
		if err := impactRows.Scan(&cvID, &impact); err != nil {
			return fmt.Errorf("scanning culture impact: %w", err)
		}
		if c.CultureImpacts == nil {
			c.CultureImpacts = make(map[string]int)
		}
		c.CultureImpacts[cvID] = impact
	}
	if err := impactRows.Err(); err != nil {
		return err
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT bt.name, cbt.polarity
		FROM choice_behavior_tags cbt
		JOIN behavior_tags bt ON bt.id = cbt.tag_id
		WHERE cbt.choice_id = ?
		ORDER BY bt.name`, c.ID)
	if err != nil {
		return fmt.Errorf("querying behavior tags for choice %s: %w", c.ID, err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var name, polarity string
		if err := tagRows.Scan(&name, &polarity); err != nil {
			return fmt.Errorf("scanning behavior tag: %w", err)
		}
		if polarity == "positive" {
			c.PositiveTags = append(c.PositiveTags, name)
		} else {
			c.NegativeTags = append(c.NegativeTags, name)
		}
	}
	return tagRows.Err()
}

// ImportBundle is the unit of work for Save: a validated scenario plus the
// taxonomy entries it references.
type ImportBundle struct {
	Scenario      *Scenario
	CultureValues []CultureValue
	Dimensions    []EngagementDimension
	BehaviorTags  []BehaviorTag
}

// Save writes a validated scenario and its taxonomy to the database in one
// transaction, replacing any previous version of the scenario.
func (s *Store) Save(ctx context.Context, bundle ImportBundle) error {
	sc := bundle.Scenario

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	upsertValue := `INSERT INTO culture_values (id, name, description) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description`
	for _, cv := range bundle.CultureValues {
		if _, err := tx.ExecContext(ctx, upsertValue, cv.ID, cv.Name, cv.Description); err != nil {
			return fmt.Errorf("upserting culture value %s: %w", cv.ID, err)
		}
	}

	upsertDim := `INSERT INTO engagement_dimensions (id, title, description) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, description = excluded.description`
	for _, d := range bundle.Dimensions {
		if _, err := tx.ExecContext(ctx, upsertDim, d.ID, d.Title, d.Description); err != nil {
			return fmt.Errorf("upserting engagement dimension %s: %w", d.ID, err)
		}
	}

	upsertTag := `INSERT INTO behavior_tags (id, name, description) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description`
	tagIDByName := make(map[string]string, len(bundle.BehaviorTags))
	for _, bt := range bundle.BehaviorTags {
		if _, err := tx.ExecContext(ctx, upsertTag, bt.ID, bt.Name, bt.Description); err != nil {
			return fmt.Errorf("upserting behavior tag %s: %w", bt.ID, err)
		}
		tagIDByName[bt.Name] = bt.ID
	}

	// Replace the scenario wholesale, children first so the replacement
	// does not depend on cascade support.
	cleanup := []string{
		`DELETE FROM choice_behavior_tags WHERE choice_id IN
			(SELECT c.id FROM choices c JOIN nodes n ON n.id = c.node_id WHERE n.scenario_id = ?)`,
		`DELETE FROM choice_culture_impacts WHERE choice_id IN
			(SELECT c.id FROM choices c JOIN nodes n ON n.id = c.node_id WHERE n.scenario_id = ?)`,
		`DELETE FROM choices WHERE node_id IN (SELECT id FROM nodes WHERE scenario_id = ?)`,
		`DELETE FROM nodes WHERE scenario_id = ?`,
		`DELETE FROM scenarios WHERE id = ?`,
	}
	for _, stmt := range cleanup {
		if _, err := tx.ExecContext(ctx, stmt, sc.ID); err != nil {
			return fmt.Errorf("removing previous scenario version: %w", err)
		}
	}

	var secondary sql.NullString
	if sc.SecondaryDimension != nil {
		secondary = sql.NullString{String: sc.SecondaryDimension.ID, Valid: true}
	}
	active := 0
	if sc.Active {
		active = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scenarios (id, title, description, difficulty, estimated_minutes,
			primary_dimension_id, secondary_dimension_id, culture_value_id, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Title, sc.Description, string(sc.Difficulty), sc.EstimatedMinutes,
		sc.PrimaryDimension.ID, secondary, sc.CultureValue.ID, active)
	if err != nil {
		return fmt.Errorf("inserting scenario %s: %w", sc.ID, err)
	}

	for _, n := range sc.Nodes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, scenario_id, type, prompt, order_index)
			VALUES (?, ?, ?, ?, ?)`,
			n.ID, sc.ID, string(n.Type), n.Prompt, n.OrderIndex)
		if err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}

	// Choices reference next nodes, so they go in after all nodes exist.
	for _, n := range sc.Nodes {
		for pos, c := range n.Choices {
			var next sql.NullString
			if c.NextNodeID != "" {
				next = sql.NullString{String: c.NextNodeID, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO choices (id, node_id, position, text, explanation,
					base_points, engagement_impact, next_node_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, n.ID, pos, c.Text, c.Explanation, c.BasePoints, c.EngagementImpact, next)
			if err != nil {
				return fmt.Errorf("inserting choice %s: %w", c.ID, err)
			}

			for cvID, impact := range c.CultureImpacts {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO choice_culture_impacts (choice_id, culture_value_id, impact)
					VALUES (?, ?, ?)`, c.ID, cvID, impact)
				if err != nil {
					return fmt.Errorf("inserting culture impact for choice %s: %w", c.ID, err)
				}
			}

			insertTag := func(names []string, polarity string) error {
				for _, name := range names {
					tagID, ok := tagIDByName[name]
					if !ok {
						return fmt.Errorf("choice %s references undeclared behavior tag %q", c.ID, name)
					}
					_, err := tx.ExecContext(ctx, `
						INSERT INTO choice_behavior_tags (choice_id, tag_id, polarity)
						VALUES (?, ?, ?)`, c.ID, tagID, polarity)
					if err != nil {
						return fmt.Errorf("inserting behavior tag for choice %s: %w", c.ID, err)
					}
				}
				return nil
			}
			if err := insertTag(c.PositiveTags, "positive"); err != nil {
				return err
			}
			if err := insertTag(c.NegativeTags, "negative"); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}
