package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// OutcomeCard describes one business outcome a dashboard can be built
// around (for example "reduce missed calls"), with the metrics a spec
// should surface for it.
type OutcomeCard struct {
	Slug        string   `yaml:"slug" json:"slug"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Metrics     []string `yaml:"metrics" json:"metrics"`
	Platforms   []string `yaml:"platforms" json:"platforms"`
}

// OutcomeLookupTool serves the static outcome-card catalog to the agent.
type OutcomeLookupTool struct {
	path string

	once  sync.Once
	cards []OutcomeCard
	err   error
}

// NewOutcomeLookupTool creates the outcome_lookup tool backed by a YAML
// catalog file.
func NewOutcomeLookupTool(path string) *OutcomeLookupTool {
	return &OutcomeLookupTool{path: path}
}

func (t *OutcomeLookupTool) Name() string { return "outcome_lookup" }

func (t *OutcomeLookupTool) Description() string {
	return "Look up an outcome card by slug, or list cards matching a query."
}

func (t *OutcomeLookupTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"slug":  stringProp("Exact outcome slug to fetch."),
		"query": stringProp("Substring to match against titles and descriptions when no slug is given."),
	})
}

func (t *OutcomeLookupTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	cards, err := t.load()
	if err != nil {
		return nil, err
	}

	if slug, ok := input["slug"].(string); ok && slug != "" {
		for _, card := range cards {
			if card.Slug == slug {
				return map[string]interface{}{"card": cardToMap(card)}, nil
			}
		}
		return ErrorResult(fmt.Sprintf("no outcome card with slug %q", slug)), nil
	}

	query, _ := input["query"].(string)
	query = strings.ToLower(strings.TrimSpace(query))

	matches := make([]interface{}, 0, len(cards))
	for _, card := range cards {
		if query == "" ||
			strings.Contains(strings.ToLower(card.Title), query) ||
			strings.Contains(strings.ToLower(card.Description), query) {
			matches = append(matches, cardToMap(card))
		}
	}

	return map[string]interface{}{"cards": matches}, nil
}

func (t *OutcomeLookupTool) load() ([]OutcomeCard, error) {
	t.once.Do(func() {
		raw, err := os.ReadFile(t.path)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			t.err = fmt.Errorf("failed to read outcome catalog: %w", err)
			return
		}

		var catalog struct {
			Outcomes []OutcomeCard `yaml:"outcomes"`
		}
		if err := yaml.Unmarshal(raw, &catalog); err != nil {
			t.err = fmt.Errorf("failed to parse outcome catalog: %w", err)
			return
		}
		t.cards = catalog.Outcomes
	})
	return t.cards, t.err
}

func cardToMap(card OutcomeCard) map[string]interface{} {
	metrics := make([]interface{}, len(card.Metrics))
	for i, m := range card.Metrics {
		metrics[i] = m
	}
	platforms := make([]interface{}, len(card.Platforms))
	for i, p := range card.Platforms {
		platforms[i] = p
	}
	return map[string]interface{}{
		"slug":        card.Slug,
		"title":       card.Title,
		"description": card.Description,
		"metrics":     metrics,
		"platforms":   platforms,
	}
}
