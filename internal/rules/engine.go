// Package rules holds the deterministic side of compliance classification:
// keyword matching over product text and the merge of shipping restrictions
// across rules. Nothing in this package performs I/O.
package rules

import (
	"sort"
	"strings"

	"github.com/greenleaf/compliance-engine/internal/models"
)

// Result is the outcome of evaluating product text against the catalog.
type Result struct {
	TriggeredRules []models.ComplianceRule `json:"triggered_rules"`
	Action         *models.Action          `json:"action"`
	Category       *models.Category        `json:"category"`
	ShouldHide     bool                    `json:"should_hide"`
	Confidence     float64                 `json:"confidence"`
}

// Categories returns the distinct categories of the triggered rules in
// priority order.
func (r Result) Categories() []models.Category {
	seen := make(map[models.Category]bool)
	var out []models.Category
	for _, rule := range r.TriggeredRules {
		if seen[rule.Category] {
			continue
		}
		seen[rule.Category] = true
		out = append(out, rule.Category)
	}
	return out
}

type compiledRule struct {
	rule     models.ComplianceRule
	keywords []string
}

// Engine is an immutable, priority-sorted view of the rule catalog.
type Engine struct {
	rules []compiledRule
}

// NewEngine sorts rules by descending priority once. Ties keep catalog
// declaration order (CatalogOrder, then the order given).
func NewEngine(catalog []models.ComplianceRule) *Engine {
	sorted := make([]models.ComplianceRule, len(catalog))
	copy(sorted, catalog)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].CatalogOrder < sorted[j].CatalogOrder
	})

	compiled := make([]compiledRule, 0, len(sorted))
	for _, rule := range sorted {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		compiled = append(compiled, compiledRule{rule: rule, keywords: keywords})
	}
	return &Engine{rules: compiled}
}

// Rules returns the catalog in evaluation order.
func (e *Engine) Rules() []models.ComplianceRule {
	out := make([]models.ComplianceRule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// EvaluateProduct evaluates the product's name and description together.
func (e *Engine) EvaluateProduct(name, description string) Result {
	return e.Evaluate(name + " " + description)
}

// Evaluate collects every rule with a keyword contained in text.
func (e *Engine) Evaluate(text string) Result {
	haystack := strings.ToLower(text)
	result := Result{TriggeredRules: []models.ComplianceRule{}}

	var prioritySum float64
	for _, c := range e.rules {
		if !containsAny(haystack, c.keywords) {
			continue
		}
		result.TriggeredRules = append(result.TriggeredRules, c.rule)
		prioritySum += float64(c.rule.Priority) / 100
		if c.rule.Action.Hides() {
			result.ShouldHide = true
		}
	}

	if len(result.TriggeredRules) == 0 {
		return result
	}

	first := result.TriggeredRules[0]
	action := first.Action
	category := first.Category
	result.Action = &action
	result.Category = &category
	result.Confidence = clamp(prioritySum/float64(len(result.TriggeredRules)), 0, 1)
	return result
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
