// internal/services/classifier_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/llm"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/rules"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

const (
	SourceKeyword = "keyword"
	SourceAI      = "ai"
)

// Categories that call for a certificate of analysis before sale.
var labTestCategories = map[models.Category]bool{
	models.CategoryTHCA:         true,
	models.CategoryCBD:          true,
	models.CategoryKratom:       true,
	models.CategorySevenHydroxy: true,
}

const classifySystemPrompt = `You classify products sold by a retailer of age- and jurisdiction-restricted goods.
Assign every regulatory category that applies, drawn only from:
thca, kratom, seven_hydroxy, nicotine, tobacco, cbd, other.
Set nicotineProduct to true for anything that contains or delivers nicotine, including vapes, pods, e-liquids and pouches.
Set requiresLabTest to true when the product is a cannabinoid, kratom or 7-hydroxymitragynine product that must carry a certificate of analysis.
Set hiddenReason to a short explanation when the product must not be shown on the main storefront, otherwise null.
Return only JSON matching the schema.`

var classificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"categories": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "string",
				"enum": categoryEnum(),
			},
		},
		"nicotineProduct": map[string]any{"type": "boolean"},
		"requiresLabTest": map[string]any{"type": "boolean"},
		"hiddenReason":    map[string]any{"type": []string{"string", "null"}},
	},
	"required":             []string{"categories", "nicotineProduct", "requiresLabTest", "hiddenReason"},
	"additionalProperties": false,
}

func categoryEnum() []string {
	out := make([]string, len(models.AllCategories))
	for i, c := range models.AllCategories {
		out[i] = string(c)
	}
	return out
}

// aiClassification is the only accepted response shape.
type aiClassification struct {
	Categories      []string `json:"categories" validate:"required,min=1,dive,compliance_category"`
	NicotineProduct *bool    `json:"nicotineProduct" validate:"required"`
	RequiresLabTest *bool    `json:"requiresLabTest" validate:"required"`
	HiddenReason    *string  `json:"hiddenReason"`
}

type ClassificationResult struct {
	ProductID         uuid.UUID         `json:"product_id"`
	Source            string            `json:"source"`
	Categories        []models.Category `json:"categories"`
	NicotineProduct   bool              `json:"nicotine_product"`
	TobaccoProduct    bool              `json:"tobacco_product"`
	RequiresLabTest   bool              `json:"requires_lab_test"`
	HiddenReason      *string           `json:"hidden_reason"`
	VisibleOnMainSite bool              `json:"visible_on_main_site"`
	TriggeredRules    []string          `json:"triggered_rules,omitempty"`
	Confidence        float64           `json:"confidence"`
	AssociatedRuleIDs []uuid.UUID       `json:"associated_rule_ids"`
}

type ClassifierConfig struct {
	// KeywordShortCircuit is the keyword confidence at or above which the
	// completion service is skipped.
	KeywordShortCircuit float64
	BulkPause           time.Duration
	BulkPauseEvery      int
	BulkDefaultLimit    int
}

type ClassifierService struct {
	store   CatalogStore
	catalog *RuleCatalog
	llm     llm.Client
	cfg     ClassifierConfig
	metrics *metrics.Metrics
	now     func() time.Time
	pause   func(ctx context.Context, d time.Duration) bool
}

func NewClassifierService(store CatalogStore, catalog *RuleCatalog, client llm.Client, cfg ClassifierConfig, m *metrics.Metrics) *ClassifierService {
	if cfg.BulkPauseEvery <= 0 {
		cfg.BulkPauseEvery = 10
	}
	if cfg.BulkDefaultLimit <= 0 {
		cfg.BulkDefaultLimit = 100
	}
	return &ClassifierService{
		store:   store,
		catalog: catalog,
		llm:     client,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		pause:   sleepCtx,
	}
}

func (s *ClassifierService) ClassifyProduct(ctx context.Context, productID uuid.UUID) (*ClassificationResult, error) {
	start := time.Now()
	result, err := s.classify(ctx, productID)
	if err != nil {
		source := SourceAI
		if apierr.IsKind(err, apierr.KindNotFound) {
			source = "none"
		}
		s.metrics.ObserveClassification(source, "error", start)
		return nil, err
	}
	s.metrics.ObserveClassification(result.Source, "ok", start)
	return result, nil
}

func (s *ClassifierService) classify(ctx context.Context, productID uuid.UUID) (*ClassificationResult, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	result, keyword, err := s.evaluate(ctx, product)
	if err != nil {
		return nil, err
	}

	ruleIDs, err := s.syncAssociations(ctx, product.ID, result.Categories)
	if err != nil {
		return nil, err
	}
	result.AssociatedRuleIDs = ruleIDs

	if err := s.applyResult(ctx, product, result, keyword); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"source":     result.Source,
		"categories": result.Categories,
		"nicotine":   result.NicotineProduct,
		"visible":    result.VisibleOnMainSite,
	}).Info("Product classified")

	return result, nil
}

// Preview runs the same classification as ClassifyProduct against the current
// catalog and reports the outcome it would write. Nothing is persisted.
func (s *ClassifierService) Preview(ctx context.Context, product *models.Product) (*ClassificationResult, error) {
	result, keyword, err := s.evaluate(ctx, product)
	if err != nil {
		return nil, err
	}

	for _, category := range result.Categories {
		matched, err := s.store.GetComplianceRulesByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		for _, rule := range matched {
			result.AssociatedRuleIDs = append(result.AssociatedRuleIDs, rule.ID)
		}
	}
	projectResult(product, result, keyword)
	return result, nil
}

// evaluate runs the keyword pre-filter and, when it is not decisive, the
// completion service.
func (s *ClassifierService) evaluate(ctx context.Context, product *models.Product) (*ClassificationResult, rules.Result, error) {
	engine, err := s.catalog.Engine(ctx)
	if err != nil {
		return nil, rules.Result{}, apierr.External(apierr.CodeRuleLoad, "failed to load compliance rules", err)
	}

	keyword := engine.EvaluateProduct(product.Name, product.Description)
	var result *ClassificationResult
	if len(keyword.TriggeredRules) > 0 && keyword.Confidence >= s.cfg.KeywordShortCircuit {
		result = s.fromKeywords(product, keyword)
	} else {
		result, err = s.fromCompletion(ctx, product)
		if err != nil {
			return nil, rules.Result{}, err
		}
	}
	result.Confidence = keyword.Confidence
	return result, keyword, nil
}

func (s *ClassifierService) fromKeywords(product *models.Product, keyword rules.Result) *ClassificationResult {
	categories := keyword.Categories()
	result := &ClassificationResult{
		ProductID:  product.ID,
		Source:     SourceKeyword,
		Categories: categories,
	}
	for _, c := range categories {
		if c == models.CategoryNicotine {
			result.NicotineProduct = true
		}
		if labTestCategories[c] {
			result.RequiresLabTest = true
		}
	}
	for _, r := range keyword.TriggeredRules {
		result.TriggeredRules = append(result.TriggeredRules, r.Name)
		if r.Action == models.ActionRequireVerification {
			result.RequiresLabTest = true
		}
	}
	if result.NicotineProduct {
		reason := models.NicotineHiddenReason
		result.HiddenReason = &reason
	}
	return result
}

func (s *ClassifierService) fromCompletion(ctx context.Context, product *models.Product) (*ClassificationResult, error) {
	user := fmt.Sprintf("Product name: %s\nProduct description: %s", product.Name, product.Description)

	raw, err := s.llm.GenerateJSON(ctx, classifySystemPrompt, user, "product_classification", classificationSchema)
	if err != nil {
		return nil, apierr.External(apierr.CodeClassification, "completion service failed", err)
	}

	parsed, err := decodeClassification(raw)
	if err != nil {
		return nil, apierr.External(apierr.CodeClassification, "completion response did not match the classification schema", err)
	}

	result := &ClassificationResult{
		ProductID:       product.ID,
		Source:          SourceAI,
		NicotineProduct: *parsed.NicotineProduct,
		RequiresLabTest: *parsed.RequiresLabTest,
	}
	if parsed.HiddenReason != nil && strings.TrimSpace(*parsed.HiddenReason) != "" {
		reason := strings.TrimSpace(*parsed.HiddenReason)
		result.HiddenReason = &reason
	}

	seen := make(map[models.Category]bool)
	for _, c := range parsed.Categories {
		category := models.Category(c)
		if !seen[category] {
			seen[category] = true
			result.Categories = append(result.Categories, category)
		}
	}
	return result, nil
}

// decodeClassification rejects unknown fields, missing fields and values
// outside the category enum. Nothing is defaulted.
func decodeClassification(raw json.RawMessage) (*aiClassification, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var parsed aiClassification
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := utils.ValidateStruct(parsed); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &parsed, nil
}

// syncAssociations links the product to every rule in the returned
// categories and drops links whose rule category is no longer present.
func (s *ClassifierService) syncAssociations(ctx context.Context, productID uuid.UUID, categories []models.Category) ([]uuid.UUID, error) {
	keep := make(map[models.Category]bool, len(categories))
	var ruleIDs []uuid.UUID

	for _, category := range categories {
		keep[category] = true
		matched, err := s.store.GetComplianceRulesByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		for _, rule := range matched {
			if err := s.store.CreateProductCompliance(ctx, productID, rule.ID); err != nil {
				return nil, err
			}
			ruleIDs = append(ruleIDs, rule.ID)
		}
	}

	existing, err := s.store.GetProductRules(ctx, productID)
	if err != nil {
		return nil, err
	}
	var stale []uuid.UUID
	for _, rule := range existing {
		if !keep[rule.Category] {
			stale = append(stale, rule.ID)
		}
	}
	if err := s.store.DeleteProductCompliance(ctx, productID, stale); err != nil {
		return nil, err
	}
	return ruleIDs, nil
}

// projectResult fills the result's visibility fields with the state the
// product would be left in. Visibility only ever moves towards hidden here;
// revealing is a separate manual action.
func projectResult(product *models.Product, result *ClassificationResult, keyword rules.Result) models.Product {
	next := *product
	next.ApplyClassificationVisibility(result.NicotineProduct, result.HiddenReason)
	if result.Source == SourceKeyword && keyword.ShouldHide && next.VisibleOnMainSite {
		for _, r := range keyword.TriggeredRules {
			if r.Action.Hides() {
				next.Hide(fmt.Sprintf("Restricted by compliance rule %s", r.Name))
				break
			}
		}
	}

	result.TobaccoProduct = product.TobaccoProduct
	for _, c := range result.Categories {
		if c == models.CategoryTobacco {
			result.TobaccoProduct = true
		}
	}
	result.VisibleOnMainSite = next.VisibleOnMainSite
	result.HiddenReason = next.HiddenReason
	return next
}

func (s *ClassifierService) applyResult(ctx context.Context, product *models.Product, result *ClassificationResult, keyword rules.Result) error {
	next := projectResult(product, result, keyword)

	now := s.now()
	patch := models.ProductPatch{
		NicotineProduct:      &result.NicotineProduct,
		TobaccoProduct:       &result.TobaccoProduct,
		RequiresLabTest:      &result.RequiresLabTest,
		VisibleOnMainSite:    &next.VisibleOnMainSite,
		HiddenReason:         next.HiddenReason,
		ClearHiddenReason:    next.HiddenReason == nil,
		ClassifiedCategories: append([]models.Category{}, result.Categories...),
		LastClassifiedAt:     &now,
	}
	return s.store.UpdateProduct(ctx, product.ID, patch)
}

type BulkClassifyRequest struct {
	ProductIDs []uuid.UUID `json:"productIds" validate:"max=500"`
	Limit      int         `json:"limit" validate:"omitempty,min=1,max=500"`
}

type BulkSummary struct {
	Processed  int      `json:"processed"`
	Classified int      `json:"classified"`
	Errors     int      `json:"errors"`
	Messages   []string `json:"messages"`
	Aborted    bool     `json:"aborted"`
}

// BulkClassify classifies each candidate independently. A failing product is
// counted and logged, never fatal. The run pauses after every BulkPauseEvery
// products and stops early, keeping its counts, when ctx is cancelled.
func (s *ClassifierService) BulkClassify(ctx context.Context, req BulkClassifyRequest) (*BulkSummary, error) {
	ids := req.ProductIDs
	if len(ids) == 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = s.cfg.BulkDefaultLimit
		}
		products, err := s.store.ListProducts(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			ids = append(ids, p.ID)
		}
	}

	summary := &BulkSummary{Messages: []string{}}
	for i, id := range ids {
		if ctx.Err() != nil {
			summary.Aborted = true
			break
		}

		summary.Processed++
		if _, err := s.ClassifyProduct(ctx, id); err != nil {
			summary.Errors++
			summary.Messages = append(summary.Messages, fmt.Sprintf("%s: %v", id, err))
			logrus.WithError(err).WithField("product_id", id).Warn("Bulk classification failed for product")
		} else {
			summary.Classified++
		}

		if (i+1)%s.cfg.BulkPauseEvery == 0 && i+1 < len(ids) && s.cfg.BulkPause > 0 {
			if !s.pause(ctx, s.cfg.BulkPause) {
				summary.Aborted = true
				break
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"processed":  summary.Processed,
		"classified": summary.Classified,
		"errors":     summary.Errors,
		"aborted":    summary.Aborted,
	}).Info("Bulk classification finished")

	return summary, nil
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
