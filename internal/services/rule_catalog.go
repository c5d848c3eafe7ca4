// internal/services/rule_catalog.go
package services

import (
	"context"
	"sync"

	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/rules"
)

// RuleCatalog caches the rule catalog and its priority-sorted engine. Rules
// change only through administrator edits, which call Invalidate.
type RuleCatalog struct {
	store   RuleStore
	metrics *metrics.Metrics

	mu     sync.RWMutex
	loaded bool
	rules  []models.ComplianceRule
	engine *rules.Engine
}

func NewRuleCatalog(store RuleStore, m *metrics.Metrics) *RuleCatalog {
	return &RuleCatalog{store: store, metrics: m}
}

// Engine returns the cached engine, loading the catalog on first use.
func (c *RuleCatalog) Engine(ctx context.Context) (*rules.Engine, error) {
	engine, _, err := c.snapshot(ctx)
	return engine, err
}

// Rules returns the cached rules in evaluation order. The slice is shared and
// must not be modified.
func (c *RuleCatalog) Rules(ctx context.Context) ([]models.ComplianceRule, error) {
	_, sorted, err := c.snapshot(ctx)
	return sorted, err
}

func (c *RuleCatalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.rules = nil
	c.engine = nil
}

func (c *RuleCatalog) snapshot(ctx context.Context) (*rules.Engine, []models.ComplianceRule, error) {
	c.mu.RLock()
	if c.loaded {
		engine, sorted := c.engine, c.rules
		c.mu.RUnlock()
		return engine, sorted, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.engine, c.rules, nil
	}

	catalog, err := c.store.GetAllComplianceRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	c.engine = rules.NewEngine(catalog)
	c.rules = c.engine.Rules()
	c.loaded = true
	c.metrics.IncRuleCatalogReload()
	return c.engine, c.rules, nil
}
