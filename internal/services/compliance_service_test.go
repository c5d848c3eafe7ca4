package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
)

func TestCreateRule_NormalizesAndInvalidates(t *testing.T) {
	catalog, _ := seededCatalog(t)
	rules := NewRuleCatalog(catalog, nil)
	service := NewComplianceService(catalog, rules)
	ctx := context.Background()

	engine, err := rules.Engine(ctx)
	require.NoError(t, err)
	assert.Empty(t, engine.Evaluate("Amanita Gummies").TriggeredRules)

	rule, err := service.CreateRule(ctx, CreateRuleRequest{
		Name: "amanita",
		RuleInput: RuleInput{
			Category:         models.CategoryOther,
			Keywords:         []string{" Amanita ", "amanita", "Muscimol"},
			Action:           models.ActionFlag,
			Priority:         30,
			RestrictedStates: []string{"la", "LA"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"amanita", "muscimol"}, []string(rule.Keywords))
	assert.Equal(t, []string{"LA"}, []string(rule.RestrictedStates))
	assert.Greater(t, rule.CatalogOrder, 7)

	engine, err = rules.Engine(ctx)
	require.NoError(t, err)
	result := engine.Evaluate("Amanita Gummies")
	require.Len(t, result.TriggeredRules, 1)
	assert.Equal(t, "amanita", result.TriggeredRules[0].Name)
}

func TestCreateRule_Rejects(t *testing.T) {
	catalog, _ := seededCatalog(t)
	service := NewComplianceService(catalog, NewRuleCatalog(catalog, nil))
	ctx := context.Background()

	valid := RuleInput{
		Category: models.CategoryCBD,
		Keywords: []string{"cbg"},
		Action:   models.ActionFlag,
		Priority: 10,
	}

	zero := &models.ShippingRestrictions{MaxQuantityPerOrder: models.IntPtr(0)}
	negative := &models.ShippingRestrictions{MaxQuantityPerOrder: models.IntPtr(-2)}

	cases := map[string]CreateRuleRequest{
		"bad name":          {Name: "Bad Name", RuleInput: valid},
		"bad category":      {Name: "x_rule", RuleInput: RuleInput{Category: "hemp", Keywords: []string{"a"}, Action: models.ActionFlag}},
		"bad action":        {Name: "x_rule", RuleInput: RuleInput{Category: models.CategoryCBD, Keywords: []string{"a"}, Action: "ban"}},
		"no keywords":       {Name: "x_rule", RuleInput: RuleInput{Category: models.CategoryCBD, Keywords: []string{"  "}, Action: models.ActionFlag}},
		"bad state":         {Name: "x_rule", RuleInput: RuleInput{Category: models.CategoryCBD, Keywords: []string{"a"}, Action: models.ActionFlag, RestrictedStates: []string{"utah"}}},
		"zero quantity":     {Name: "x_rule", RuleInput: RuleInput{Category: models.CategoryCBD, Keywords: []string{"a"}, Action: models.ActionFlag, ShippingRestrictions: zero}},
		"negative quantity": {Name: "x_rule", RuleInput: RuleInput{Category: models.CategoryCBD, Keywords: []string{"a"}, Action: models.ActionFlag, ShippingRestrictions: negative}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.CreateRule(ctx, req)
			assert.True(t, apierr.IsKind(err, apierr.KindValidation), "got %v", err)
		})
	}

	_, err := service.CreateRule(ctx, CreateRuleRequest{Name: "kratom", RuleInput: valid})
	assert.True(t, apierr.IsKind(err, apierr.KindConflict))
}

func TestUpdateRule(t *testing.T) {
	catalog, seeded := seededCatalog(t)
	rules := NewRuleCatalog(catalog, nil)
	service := NewComplianceService(catalog, rules)
	ctx := context.Background()

	cbd := seeded["cbd_products"]
	updated, err := service.UpdateRule(ctx, cbd.ID, RuleInput{
		Category: cbd.Category,
		Keywords: []string{"cbd", "cannabidiol"},
		Action:   models.ActionRestrict,
		Priority: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, "cbd_products", updated.Name)
	assert.Equal(t, cbd.CatalogOrder, updated.CatalogOrder)

	listed, err := service.ListRules(ctx)
	require.NoError(t, err)
	// priority 99 now sorts right after nicotine_obvious
	assert.Equal(t, "nicotine_obvious", listed[0].Name)
	assert.Equal(t, "cbd_products", listed[1].Name)

	_, err = service.UpdateRule(ctx, uuid.New(), RuleInput{
		Category: models.CategoryCBD, Keywords: []string{"a"}, Action: models.ActionFlag,
	})
	assert.ErrorIs(t, err, apierr.ErrRuleNotFound)
}

func TestUpdateRule_CategoryIsLocked(t *testing.T) {
	catalog, seeded := seededCatalog(t)
	rules := NewRuleCatalog(catalog, nil)
	service := NewComplianceService(catalog, rules)
	ctx := context.Background()

	p := catalog.PutProduct(models.Product{Name: "Calm Drops", VisibleOnMainSite: true})
	_, err := service.AssignCategory(ctx, p.ID, models.CategoryCBD)
	require.NoError(t, err)

	cbd := seeded["cbd_products"]
	_, err = service.UpdateRule(ctx, cbd.ID, RuleInput{
		Category: models.CategoryKratom,
		Keywords: []string{"cbd"},
		Action:   models.ActionFlag,
		Priority: cbd.Priority,
	})
	assert.True(t, apierr.IsKind(err, apierr.KindConflict), "got %v", err)

	stored, err := catalog.GetComplianceRule(ctx, cbd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryCBD, stored.Category)

	linked, err := catalog.GetProductRules(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, models.CategoryCBD, linked[0].Category)
}

func TestAssignCategory(t *testing.T) {
	catalog, _ := seededCatalog(t)
	service := NewComplianceService(catalog, NewRuleCatalog(catalog, nil))
	ctx := context.Background()

	t.Run("nicotine hides with the nicotine reason", func(t *testing.T) {
		p := catalog.PutProduct(models.Product{Name: "Mint Pouch", VisibleOnMainSite: true})

		summary, err := service.AssignCategory(ctx, p.ID, models.CategoryNicotine)
		require.NoError(t, err)
		assert.True(t, summary.Product.NicotineProduct)
		assert.False(t, summary.Product.VisibleOnMainSite)
		require.NotNil(t, summary.Product.HiddenReason)
		assert.Equal(t, models.NicotineHiddenReason, *summary.Product.HiddenReason)
		require.Len(t, summary.Rules, 1)
		assert.Equal(t, "nicotine_obvious", summary.Rules[0].Name)
	})

	t.Run("restricting rule hides and requires a lab test", func(t *testing.T) {
		p := catalog.PutProduct(models.Product{Name: "Leaf Powder", VisibleOnMainSite: true})

		summary, err := service.AssignCategory(ctx, p.ID, models.CategoryKratom)
		require.NoError(t, err)
		assert.False(t, summary.Product.VisibleOnMainSite)
		require.NotNil(t, summary.Product.HiddenReason)
		assert.Equal(t, "Restricted by compliance rule kratom", *summary.Product.HiddenReason)
		assert.True(t, summary.Product.RequiresLabTest)
		assert.True(t, summary.Product.HasCategory(models.CategoryKratom))
	})

	t.Run("flag rule keeps the product visible", func(t *testing.T) {
		p := catalog.PutProduct(models.Product{Name: "Glass Bubbler", VisibleOnMainSite: true})

		summary, err := service.AssignCategory(ctx, p.ID, models.CategoryOther)
		require.NoError(t, err)
		assert.True(t, summary.Product.VisibleOnMainSite)

		_, err = service.AssignCategory(ctx, p.ID, models.CategoryOther)
		require.NoError(t, err)
		assert.Equal(t, 1, catalog.AssociationCount(p.ID))
	})

	t.Run("unknown category", func(t *testing.T) {
		p := catalog.PutProduct(models.Product{Name: "Anything"})
		_, err := service.AssignCategory(ctx, p.ID, "hemp")
		assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	})
}

func TestRevealProduct(t *testing.T) {
	catalog, _ := seededCatalog(t)
	service := NewComplianceService(catalog, NewRuleCatalog(catalog, nil))
	ctx := context.Background()

	nicotine := catalog.PutProduct(models.Product{
		Name: "Vape", NicotineProduct: true, HiddenReason: models.StringPtr(models.NicotineHiddenReason),
	})
	_, err := service.RevealProduct(ctx, nicotine.ID, "admin")
	assert.ErrorIs(t, err, &apierr.Error{Code: apierr.CodeRevealNotPermitted})

	held := catalog.PutProduct(models.Product{Name: "Grinder", HiddenReason: models.StringPtr("manual hold")})
	revealed, err := service.RevealProduct(ctx, held.ID, "admin")
	require.NoError(t, err)
	assert.True(t, revealed.VisibleOnMainSite)

	stored, err := catalog.GetProduct(ctx, held.ID)
	require.NoError(t, err)
	assert.True(t, stored.VisibleOnMainSite)
	assert.Nil(t, stored.HiddenReason)
}

func TestGetProductSummary(t *testing.T) {
	catalog, seeded := seededCatalog(t)
	service := NewComplianceService(catalog, NewRuleCatalog(catalog, nil))
	audit := NewAuditService(catalog, NewRuleCatalog(catalog, nil), nil, 1, 1, nil)
	ctx := context.Background()

	p := catalog.PutProduct(models.Product{Name: "Salt Nic Pods", VisibleOnMainSite: true})
	require.NoError(t, catalog.CreateProductCompliance(ctx, p.ID, seeded["nicotine_obvious"].ID))
	_, err := audit.AuditProduct(ctx, p.ID)
	require.NoError(t, err)

	summary, err := service.GetProductSummary(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, summary.Product.ID)
	require.Len(t, summary.Rules, 1)
	assert.Nil(t, summary.LatestLabCertificate)
	assert.Equal(t, int64(2), summary.OpenViolations)

	_, err = service.GetProductSummary(ctx, uuid.New())
	assert.ErrorIs(t, err, apierr.ErrProductNotFound)
}

func TestRuleCatalogLoadsOnceUntilInvalidated(t *testing.T) {
	catalog, _ := seededCatalog(t)
	counting := &countingRuleStore{RuleStore: catalog}
	rules := NewRuleCatalog(counting, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rules.Engine(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), counting.loads.Load())

	rules.Invalidate()
	sorted, err := rules.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), counting.loads.Load())
	assert.Equal(t, "nicotine_obvious", sorted[0].Name)
	assert.Equal(t, "glass_paraphernalia", sorted[len(sorted)-1].Name)
}
