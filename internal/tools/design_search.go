package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// designDomains maps a searchable domain to its knowledge-base CSV file.
var designDomains = map[string]string{
	"product":    "products.csv",
	"style":      "styles.csv",
	"color":      "colors.csv",
	"typography": "typography.csv",
	"landing":    "landing-pages.csv",
	"chart":      "charts.csv",
	"ux":         "ux-guidelines.csv",
}

const defaultMaxResults = 10

// DesignSearchTool ranks design knowledge-base entries against a free-text
// query so the agent can ground styling decisions. Each domain's CSV is
// indexed into an in-memory bleve index on first use. Besides ranked
// search it offers a design-system mode that aggregates the top hit per
// domain into one coherent recommendation.
type DesignSearchTool struct {
	dataDir string

	mu      sync.Mutex
	indices map[string]bleve.Index
	rows    map[string][]map[string]interface{}
}

// NewDesignSearchTool creates the design_search tool over a CSV data
// directory.
func NewDesignSearchTool(dataDir string) *DesignSearchTool {
	return &DesignSearchTool{
		dataDir: dataDir,
		indices: make(map[string]bleve.Index),
		rows:    make(map[string][]map[string]interface{}),
	}
}

func (t *DesignSearchTool) Name() string { return "design_search" }

func (t *DesignSearchTool) Description() string {
	return "Search the design knowledge base (products, styles, colors, typography, charts, UX guidelines) for ranked matches, or generate a full design-system recommendation."
}

func (t *DesignSearchTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query":  stringProp("Free-text search query."),
		"domain": stringProp("Optional domain: product, style, color, typography, landing, chart, or ux."),
		"max_results": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of results (default 10).",
		},
		"design_system": map[string]interface{}{
			"type":        "boolean",
			"description": "Aggregate the top hits across all domains into one design-system recommendation.",
		},
		"project_name": stringProp("Project name echoed in design-system output."),
	}, "query")
}

func (t *DesignSearchTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, ok := input["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return ErrorResult("query is required"), nil
	}

	if wantSystem, _ := input["design_system"].(bool); wantSystem {
		projectName, _ := input["project_name"].(string)
		if projectName == "" {
			projectName = "Project"
		}
		return t.designSystem(ctx, query, projectName)
	}

	maxResults := defaultMaxResults
	if n, ok := input["max_results"].(float64); ok && n > 0 {
		maxResults = int(n)
	}

	domains := make([]string, 0, len(designDomains))
	if domain, ok := input["domain"].(string); ok && domain != "" {
		if _, known := designDomains[domain]; !known {
			return ErrorResult(fmt.Sprintf("unknown design domain %q", domain)), nil
		}
		domains = append(domains, domain)
	} else {
		for d := range designDomains {
			domains = append(domains, d)
		}
	}

	var hits []scoredRow
	for _, domain := range domains {
		domainHits, err := t.searchDomain(ctx, domain, query, maxResults)
		if err != nil {
			return nil, err
		}
		hits = append(hits, domainHits...)
	}

	sortByScore(hits)
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	results := make([]interface{}, len(hits))
	for i, h := range hits {
		results[i] = map[string]interface{}{
			"domain":  h.domain,
			"score":   h.score,
			"content": h.content,
		}
	}

	return map[string]interface{}{
		"query":   query,
		"results": results,
	}, nil
}

// designSystem searches every domain and folds the best hits into one
// recommendation: a primary pick per domain, runner-up alternatives, the
// anti-patterns called out by the matched products, and a pre-delivery
// checklist drawn from the UX guidelines.
func (t *DesignSearchTool) designSystem(ctx context.Context, query, projectName string) (map[string]interface{}, error) {
	perDomain := make(map[string][]scoredRow, len(designDomains))
	for domain, count := range map[string]int{
		"product": 3, "style": 3, "color": 3, "typography": 3, "landing": 3,
		"chart": 5, "ux": 5,
	} {
		hits, err := t.searchDomain(ctx, domain, query, count)
		if err != nil {
			return nil, err
		}
		sortByScore(hits)
		perDomain[domain] = hits
	}

	first := func(domain string) map[string]interface{} {
		if hits := perDomain[domain]; len(hits) > 0 {
			return hits[0].content
		}
		return map[string]interface{}{}
	}
	rest := func(domain string) []interface{} {
		hits := perDomain[domain]
		alternatives := make([]interface{}, 0, 2)
		if len(hits) > 1 {
			for _, h := range hits[1:] {
				alternatives = append(alternatives, h.content)
				if len(alternatives) == 2 {
					break
				}
			}
		}
		return alternatives
	}
	top := func(domain string, n int) []interface{} {
		hits := perDomain[domain]
		if len(hits) > n {
			hits = hits[:n]
		}
		picked := make([]interface{}, len(hits))
		for i, h := range hits {
			picked[i] = h.content
		}
		return picked
	}

	return map[string]interface{}{
		"project_name": projectName,
		"query":        query,
		"recommendations": map[string]interface{}{
			"product":         first("product"),
			"style":           first("style"),
			"color_palette":   first("color"),
			"typography":      first("typography"),
			"landing_pattern": first("landing"),
			"charts":          top("chart", 3),
			"ux_guidelines":   top("ux", 5),
		},
		"alternatives": map[string]interface{}{
			"products":         rest("product"),
			"styles":           rest("style"),
			"colors":           rest("color"),
			"typography":       rest("typography"),
			"landing_patterns": rest("landing"),
		},
		"anti_patterns": extractAntiPatterns(perDomain["product"]),
		"checklist":     uxChecklist(perDomain["ux"]),
	}, nil
}

// extractAntiPatterns collects the semicolon-separated anti_patterns
// column from the matched products, deduplicated, capped at five.
func extractAntiPatterns(products []scoredRow) []interface{} {
	seen := make(map[string]bool)
	patterns := make([]interface{}, 0, 5)

	for _, hit := range products {
		if len(hit.content) == 0 {
			continue
		}
		raw, _ := hit.content["anti_patterns"].(string)
		for _, pattern := range strings.Split(raw, ";") {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" || seen[pattern] {
				continue
			}
			seen[pattern] = true
			patterns = append(patterns, pattern)
			if len(patterns) == 5 {
				return patterns
			}
		}
	}

	return patterns
}

// uxChecklist turns matched UX guideline rows into checkable items.
func uxChecklist(guidelines []scoredRow) []interface{} {
	checklist := make([]interface{}, 0, len(guidelines))
	for _, hit := range guidelines {
		name, _ := hit.content["name"].(string)
		rule, _ := hit.content["guidance"].(string)
		if name == "" || rule == "" {
			continue
		}
		category, _ := hit.content["category"].(string)
		if category == "" {
			category = "general"
		}
		checklist = append(checklist, map[string]interface{}{
			"item":     name,
			"rule":     rule,
			"category": category,
		})
	}
	return checklist
}

type scoredRow struct {
	domain  string
	score   float64
	content map[string]interface{}
}

// sortByScore orders hits highest score first.
func sortByScore(hits []scoredRow) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].score > hits[j-1].score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// searchDomain runs one ranked query against a domain's index.
func (t *DesignSearchTool) searchDomain(ctx context.Context, domain, query string, maxResults int) ([]scoredRow, error) {
	index, rows, err := t.domainIndex(domain)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), maxResults, 0, false)
	result, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("design search failed for domain %s: %w", domain, err)
	}

	hits := make([]scoredRow, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var row int
		if _, err := fmt.Sscanf(hit.ID, "%d", &row); err != nil || row >= len(rows) {
			continue
		}
		hits = append(hits, scoredRow{domain: domain, score: hit.Score, content: rows[row]})
	}
	return hits, nil
}

// domainIndex lazily builds the bleve index for a domain. A missing CSV is
// not an error; the domain just contributes no results.
func (t *DesignSearchTool) domainIndex(domain string) (bleve.Index, []map[string]interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index, ok := t.indices[domain]; ok {
		return index, t.rows[domain], nil
	}

	rows, err := loadCSV(filepath.Join(t.dataDir, designDomains[domain]))
	if err != nil {
		return nil, nil, err
	}
	if rows == nil {
		t.indices[domain] = nil
		return nil, nil, nil
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create design index: %w", err)
	}

	for i, row := range rows {
		if err := index.Index(fmt.Sprintf("%d", i), row); err != nil {
			return nil, nil, fmt.Errorf("failed to index design row: %w", err)
		}
	}

	t.indices[domain] = index
	t.rows[domain] = rows
	return index, rows, nil
}

// loadCSV reads a headered CSV into one map per row. Returns nil (no
// error) when the file does not exist.
func loadCSV(path string) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open design KB file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse design KB file %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]interface{}, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]interface{}, len(header))
		for i, field := range header {
			if i < len(record) {
				row[field] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
