package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenleaf/compliance-engine/internal/llm"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/rules"
	"github.com/greenleaf/compliance-engine/internal/store"
)

// seededCatalog returns a memory catalog holding the default rules, keyed by
// rule name.
func seededCatalog(t *testing.T) (*store.MemoryCatalog, map[string]models.ComplianceRule) {
	t.Helper()
	catalog := store.NewMemoryCatalog()
	byName := make(map[string]models.ComplianceRule)
	for _, rule := range rules.DefaultRules() {
		require.NoError(t, catalog.CreateComplianceRule(context.Background(), &rule))
		byName[rule.Name] = rule
	}
	return catalog, byName
}

// stubLLM answers every request with the same payload and counts calls.
type stubLLM struct {
	calls    atomic.Int32
	response string
	err      error
	lastUser atomic.Value
}

func (s *stubLLM) GenerateJSON(_ context.Context, _, user, _ string, _ map[string]any) (json.RawMessage, error) {
	s.calls.Add(1)
	s.lastUser.Store(user)
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.response), nil
}

var _ llm.Client = (*stubLLM)(nil)

// countingRuleStore counts catalog loads.
type countingRuleStore struct {
	RuleStore
	loads atomic.Int32
}

func (c *countingRuleStore) GetAllComplianceRules(ctx context.Context) ([]models.ComplianceRule, error) {
	c.loads.Add(1)
	return c.RuleStore.GetAllComplianceRules(ctx)
}
