// internal/services/compliance_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

// RuleInput is the editable shape of a compliance rule.
type RuleInput struct {
	Category             models.Category              `json:"category" validate:"required,compliance_category"`
	Keywords             []string                     `json:"keywords" validate:"required,min=1,dive,required,max=100"`
	Action               models.Action                `json:"action" validate:"required,compliance_action"`
	Priority             int                          `json:"priority" validate:"min=0,max=1000"`
	ShippingRestrictions *models.ShippingRestrictions `json:"shipping_restrictions"`
	AgeRequirement       *int                         `json:"age_requirement" validate:"omitempty,min=0,max=99"`
	RestrictedStates     []string                     `json:"restricted_states" validate:"dive,us_state"`
	Description          string                       `json:"description" validate:"max=2000"`
}

type CreateRuleRequest struct {
	Name string `json:"name" validate:"required,rule_name"`
	RuleInput
}

type ProductSummary struct {
	Product              *models.Product         `json:"product"`
	Rules                []models.ComplianceRule `json:"rules"`
	LatestLabCertificate *models.LabCertificate  `json:"latest_lab_certificate"`
	OpenViolations       int64                   `json:"open_violations"`
}

// ComplianceService holds the administrator actions: rule edits and manual
// product decisions.
type ComplianceService struct {
	store   CatalogStore
	catalog *RuleCatalog
}

func NewComplianceService(store CatalogStore, catalog *RuleCatalog) *ComplianceService {
	return &ComplianceService{store: store, catalog: catalog}
}

func (s *ComplianceService) CreateRule(ctx context.Context, req CreateRuleRequest) (*models.ComplianceRule, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.RuleInput = normalizeRuleInput(req.RuleInput)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailure(err)
	}

	rule := &models.ComplianceRule{Name: req.Name}
	applyRuleInput(rule, req.RuleInput)
	if err := s.store.CreateComplianceRule(ctx, rule); err != nil {
		return nil, err
	}
	s.catalog.Invalidate()

	logrus.WithFields(logrus.Fields{
		"rule_id":  rule.ID,
		"name":     rule.Name,
		"category": rule.Category,
		"priority": rule.Priority,
	}).Info("Compliance rule created")
	return rule, nil
}

func (s *ComplianceService) UpdateRule(ctx context.Context, id uuid.UUID, input RuleInput) (*models.ComplianceRule, error) {
	input = normalizeRuleInput(input)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, validationFailure(err)
	}

	rule, err := s.store.GetComplianceRule(ctx, id)
	if err != nil {
		return nil, err
	}
	// Product associations are keyed on the category they were matched under.
	if input.Category != rule.Category {
		return nil, apierr.Conflict(apierr.CodeRuleCategoryLocked,
			fmt.Sprintf("rule %s belongs to category %s and cannot move to %s", rule.Name, rule.Category, input.Category))
	}
	applyRuleInput(rule, input)
	if err := s.store.UpdateComplianceRule(ctx, rule); err != nil {
		return nil, err
	}
	s.catalog.Invalidate()

	logrus.WithFields(logrus.Fields{
		"rule_id":  rule.ID,
		"name":     rule.Name,
		"priority": rule.Priority,
	}).Info("Compliance rule updated")
	return rule, nil
}

// ListRules returns the catalog in evaluation order.
func (s *ComplianceService) ListRules(ctx context.Context) ([]models.ComplianceRule, error) {
	cached, err := s.catalog.Rules(ctx)
	if err != nil {
		return nil, apierr.External(apierr.CodeRuleLoad, "failed to load compliance rules", err)
	}
	out := make([]models.ComplianceRule, len(cached))
	copy(out, cached)
	return out, nil
}

func (s *ComplianceService) GetProductSummary(ctx context.Context, productID uuid.UUID) (*ProductSummary, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	associated, err := s.store.GetProductRules(ctx, productID)
	if err != nil {
		return nil, err
	}
	cert, err := s.store.LatestLabCertificate(ctx, productID)
	if err != nil {
		return nil, err
	}
	open, err := s.store.CountOpenViolations(ctx, productID)
	if err != nil {
		return nil, err
	}

	if associated == nil {
		associated = []models.ComplianceRule{}
	}
	return &ProductSummary{
		Product:              product,
		Rules:                associated,
		LatestLabCertificate: cert,
		OpenViolations:       open,
	}, nil
}

// AssignCategory is a manual classification. It adds the category, links the
// product to the category's rules and hides it when a linked rule requires
// that. Existing categories are kept.
func (s *ComplianceService) AssignCategory(ctx context.Context, productID uuid.UUID, category models.Category) (*ProductSummary, error) {
	if !category.Valid() {
		return nil, apierr.Validation(apierr.CodeValidation, fmt.Sprintf("unknown category %q", category))
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	matched, err := s.store.GetComplianceRulesByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	for _, rule := range matched {
		if err := s.store.CreateProductCompliance(ctx, productID, rule.ID); err != nil {
			return nil, err
		}
	}

	next := *product
	if category == models.CategoryNicotine {
		next.ApplyClassificationVisibility(true, nil)
	}
	if category == models.CategoryTobacco {
		next.TobaccoProduct = true
	}
	requiresLabTest := product.RequiresLabTest || labTestCategories[category]
	for _, rule := range matched {
		if rule.Action.Hides() {
			next.Hide(fmt.Sprintf("Restricted by compliance rule %s", rule.Name))
		}
		if rule.Action == models.ActionRequireVerification {
			requiresLabTest = true
		}
	}

	categories := append([]models.Category{}, product.ClassifiedCategories...)
	if !product.HasCategory(category) {
		categories = append(categories, category)
	}

	patch := models.ProductPatch{
		NicotineProduct:      &next.NicotineProduct,
		TobaccoProduct:       &next.TobaccoProduct,
		RequiresLabTest:      &requiresLabTest,
		VisibleOnMainSite:    &next.VisibleOnMainSite,
		HiddenReason:         next.HiddenReason,
		ClassifiedCategories: categories,
	}
	if err := s.store.UpdateProduct(ctx, productID, patch); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"product_id": productID,
		"category":   category,
		"rules":      len(matched),
		"visible":    next.VisibleOnMainSite,
	}).Info("Category assigned to product")

	return s.GetProductSummary(ctx, productID)
}

// RevealProduct is the only way a hidden product becomes visible again.
func (s *ComplianceService) RevealProduct(ctx context.Context, productID uuid.UUID, revealedBy string) (*models.Product, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.VisibleOnMainSite {
		return product, nil
	}
	if !product.Reveal() {
		return nil, apierr.Conflict(apierr.CodeRevealNotPermitted, "nicotine products cannot be shown on the main site")
	}

	patch := models.ProductPatch{
		VisibleOnMainSite: models.BoolPtr(true),
		ClearHiddenReason: true,
	}
	if err := s.store.UpdateProduct(ctx, productID, patch); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"product_id":  productID,
		"revealed_by": revealedBy,
	}).Info("Product revealed on main site")
	return product, nil
}

func normalizeRuleInput(in RuleInput) RuleInput {
	seen := make(map[string]bool)
	keywords := make([]string, 0, len(in.Keywords))
	for _, kw := range in.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	in.Keywords = keywords

	seenState := make(map[string]bool)
	states := make([]string, 0, len(in.RestrictedStates))
	for _, st := range in.RestrictedStates {
		st = strings.ToUpper(strings.TrimSpace(st))
		if st == "" || seenState[st] {
			continue
		}
		seenState[st] = true
		states = append(states, st)
	}
	in.RestrictedStates = states
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func applyRuleInput(rule *models.ComplianceRule, in RuleInput) {
	rule.Category = in.Category
	rule.Keywords = in.Keywords
	rule.Action = in.Action
	rule.Priority = in.Priority
	rule.ShippingRestrictions = in.ShippingRestrictions
	rule.AgeRequirement = in.AgeRequirement
	rule.RestrictedStates = in.RestrictedStates
	rule.Description = in.Description
}

func validationFailure(err error) error {
	details := utils.GetValidationErrors(err)
	parts := make([]string, 0, len(details))
	for _, d := range details {
		parts = append(parts, d.Message)
	}
	if len(parts) == 0 {
		return apierr.Validation(apierr.CodeValidation, err.Error())
	}
	return apierr.Validation(apierr.CodeValidation, strings.Join(parts, "; "))
}
