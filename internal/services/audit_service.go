// internal/services/audit_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

// Violation types raised by a product audit.
const (
	ViolationNicotineVisible        = "nicotine_visible"
	ViolationNicotineFlagMissing    = "nicotine_flag_missing"
	ViolationVisibilityMismatch     = "visibility_mismatch"
	ViolationMissingRuleAssociation = "missing_rule_association"
	ViolationLabTestMissing         = "lab_test_missing"
	ViolationCOAExpired             = "coa_expired"
	ViolationCategoryMismatch       = "category_mismatch"
)

const SourceProductAudit = "product_audit"

// Violation is a finding to be recorded.
type Violation struct {
	ProductID        *uuid.UUID      `json:"product_id"`
	ComplianceRuleID *uuid.UUID      `json:"compliance_rule_id"`
	ViolationType    string          `json:"violation_type" validate:"required,max=64"`
	Severity         models.Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	Message          string          `json:"message" validate:"required"`
	Details          models.JSONB    `json:"details,omitempty"`
}

type ProductAuditResult struct {
	ProductID         uuid.UUID                   `json:"product_id"`
	KeywordCategories []models.Category           `json:"keyword_categories"`
	Violations        []models.ComplianceAuditLog `json:"violations"`
	// AlreadyOpen counts findings that matched an unresolved violation and
	// were not recorded again.
	AlreadyOpen int `json:"already_open"`
	// Classification is what a fresh classification would write. It is nil
	// when no classifier is configured or the classifier failed.
	Classification  *ClassificationResult `json:"classification,omitempty"`
	ClassifierError string                `json:"classifier_error,omitempty"`
}

// ClassificationPreviewer classifies a product without persisting anything.
type ClassificationPreviewer interface {
	Preview(ctx context.Context, product *models.Product) (*ClassificationResult, error)
}

type AuditAllSummary struct {
	Audited        int      `json:"audited"`
	WithViolations int      `json:"with_violations"`
	Violations     int      `json:"violations"`
	Errors         int      `json:"errors"`
	Messages       []string `json:"messages"`
}

type AuditService struct {
	store        CatalogStore
	catalog      *RuleCatalog
	classifier   ClassificationPreviewer
	metrics      *metrics.Metrics
	concurrency  int
	defaultLimit int
	now          func() time.Time
}

// NewAuditService wires the audit. classifier may be nil, in which case audits
// rely on keyword rules alone.
func NewAuditService(store CatalogStore, catalog *RuleCatalog, classifier ClassificationPreviewer, concurrency, defaultLimit int, m *metrics.Metrics) *AuditService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if defaultLimit <= 0 {
		defaultLimit = 500
	}
	return &AuditService{
		store:        store,
		catalog:      catalog,
		classifier:   classifier,
		metrics:      m,
		concurrency:  concurrency,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// LogViolations records findings. Records are immutable afterwards except for
// their resolution stamp.
func (s *AuditService) LogViolations(ctx context.Context, violations []Violation, source string) ([]models.ComplianceAuditLog, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, apierr.Validation(apierr.CodeValidation, "violation source is required")
	}
	if len(violations) == 0 {
		return []models.ComplianceAuditLog{}, nil
	}

	logs := make([]models.ComplianceAuditLog, 0, len(violations))
	for i, v := range violations {
		if err := utils.ValidateStruct(v); err != nil {
			return nil, apierr.Validation(apierr.CodeValidation, fmt.Sprintf("violation %d: %v", i, err))
		}
		logs = append(logs, models.ComplianceAuditLog{
			ProductID:        v.ProductID,
			ComplianceRuleID: v.ComplianceRuleID,
			ViolationType:    v.ViolationType,
			Severity:         v.Severity,
			Message:          v.Message,
			Source:           source,
			Details:          v.Details,
		})
	}

	if err := s.store.CreateAuditLogs(ctx, logs); err != nil {
		return nil, err
	}

	for _, entry := range logs {
		s.metrics.IncViolation(string(entry.Severity))
		logrus.WithFields(logrus.Fields{
			"violation_id":   entry.ID,
			"product_id":     entry.ProductID,
			"violation_type": entry.ViolationType,
			"severity":       entry.Severity,
			"source":         source,
		}).Warn("Compliance violation recorded")
	}
	return logs, nil
}

// ResolveViolation applies the resolution stamp exactly once.
func (s *AuditService) ResolveViolation(ctx context.Context, id uuid.UUID, resolvedBy, notes string) (*models.ComplianceAuditLog, error) {
	if strings.TrimSpace(resolvedBy) == "" {
		return nil, apierr.Validation(apierr.CodeValidation, "resolvedBy is required")
	}

	entry, err := s.store.ResolveComplianceViolation(ctx, id, resolvedBy, strings.TrimSpace(notes), s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.metrics.IncViolationResolved()
	logrus.WithFields(logrus.Fields{
		"violation_id": id,
		"resolved_by":  resolvedBy,
	}).Info("Compliance violation resolved")
	return entry, nil
}

func (s *AuditService) GetAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.ComplianceAuditLog, int64, error) {
	params := utils.NormalizePagination(filter.Page, filter.Limit)
	filter.Page, filter.Limit = params.Page, params.Limit
	if filter.Severity != nil && !filter.Severity.Valid() {
		return nil, 0, apierr.Validation(apierr.CodeValidation, fmt.Sprintf("unknown severity %q", *filter.Severity))
	}
	return s.store.GetComplianceAuditLogs(ctx, filter)
}

// AuditProduct compares the product's stored flags with what the current
// catalog says about its text and with what a fresh classification would
// write. Mismatches are recorded as violations; the product itself is never
// changed here.
func (s *AuditService) AuditProduct(ctx context.Context, productID uuid.UUID) (*ProductAuditResult, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	engine, err := s.catalog.Engine(ctx)
	if err != nil {
		return nil, apierr.External(apierr.CodeRuleLoad, "failed to load compliance rules", err)
	}
	keyword := engine.EvaluateProduct(product.Name, product.Description)

	associated, err := s.store.GetProductRules(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	cert, err := s.store.LatestLabCertificate(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	findings := s.findings(product, keyword.TriggeredRules, associated, cert)

	result := &ProductAuditResult{
		ProductID:         product.ID,
		KeywordCategories: keyword.Categories(),
		Violations:        []models.ComplianceAuditLog{},
	}

	if s.classifier != nil {
		preview, err := s.classifier.Preview(ctx, product)
		switch {
		case err != nil:
			result.ClassifierError = err.Error()
			logrus.WithError(err).WithField("product_id", product.ID).Warn("Audit classification failed, using keyword findings only")
		default:
			result.Classification = preview
			findings = s.classificationFindings(product, preview, engine.Rules(), associated, cert, findings)
		}
	}

	open, err := s.openViolationKeys(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	var fresh []Violation
	for _, f := range findings {
		if open[violationKey(f.ViolationType, f.ComplianceRuleID)] {
			result.AlreadyOpen++
			continue
		}
		fresh = append(fresh, f)
	}

	if len(fresh) > 0 {
		logs, err := s.LogViolations(ctx, fresh, SourceProductAudit)
		if err != nil {
			return nil, err
		}
		result.Violations = logs
	}
	return result, nil
}

func newViolation(product *models.Product, kind string, severity models.Severity, rule *models.ComplianceRule, message string) Violation {
	productID := product.ID
	v := Violation{
		ProductID:     &productID,
		ViolationType: kind,
		Severity:      severity,
		Message:       message,
		Details:       models.JSONB{"product_name": product.Name},
	}
	if rule != nil {
		ruleID := rule.ID
		v.ComplianceRuleID = &ruleID
		v.Details["rule"] = rule.Name
	}
	return v
}

func (s *AuditService) findings(product *models.Product, triggered, associated []models.ComplianceRule, cert *models.LabCertificate) []Violation {
	var out []Violation
	add := func(kind string, severity models.Severity, rule *models.ComplianceRule, message string) {
		out = append(out, newViolation(product, kind, severity, rule, message))
	}

	var nicotineRule, hidingRule *models.ComplianceRule
	requiresVerification := false
	for i := range triggered {
		rule := &triggered[i]
		if rule.Category == models.CategoryNicotine && nicotineRule == nil {
			nicotineRule = rule
		}
		if rule.Action.Hides() && hidingRule == nil {
			hidingRule = rule
		}
		if rule.Action == models.ActionRequireVerification {
			requiresVerification = true
		}
	}

	if product.NicotineProduct && product.VisibleOnMainSite {
		add(ViolationNicotineVisible, models.SeverityCritical, nil,
			"Nicotine product is visible on the main site")
	}
	if nicotineRule != nil && !product.NicotineProduct {
		add(ViolationNicotineFlagMissing, models.SeverityHigh, nicotineRule,
			fmt.Sprintf("Product text matches rule %s but is not flagged as nicotine", nicotineRule.Name))
	}
	if hidingRule != nil && product.VisibleOnMainSite && !product.NicotineProduct {
		add(ViolationVisibilityMismatch, models.SeverityHigh, hidingRule,
			fmt.Sprintf("Rule %s requires the product to be hidden from the main site", hidingRule.Name))
	}

	linked := make(map[uuid.UUID]bool, len(associated))
	for _, rule := range associated {
		linked[rule.ID] = true
	}
	for i := range triggered {
		if !linked[triggered[i].ID] {
			add(ViolationMissingRuleAssociation, models.SeverityMedium, &triggered[i],
				fmt.Sprintf("Product matches rule %s but is not associated with it", triggered[i].Name))
		}
	}

	if (product.RequiresLabTest || requiresVerification) && cert == nil {
		add(ViolationLabTestMissing, models.SeverityLow, nil,
			"Product requires a certificate of analysis but none is on file")
	}

	expiration := product.ExpirationDate
	if cert != nil && cert.ExpirationDate != nil {
		expiration = cert.ExpirationDate
	}
	if expiration != nil && expiration.Before(s.now()) {
		add(ViolationCOAExpired, models.SeverityMedium, nil,
			fmt.Sprintf("Certificate of analysis expired on %s", expiration.Format("2006-01-02")))
	}
	return out
}

// classificationFindings adds what the classifier preview disagrees with.
// A finding already raised from the keyword rules is not repeated.
func (s *AuditService) classificationFindings(product *models.Product, preview *ClassificationResult, active, associated []models.ComplianceRule, cert *models.LabCertificate, out []Violation) []Violation {
	raised := make(map[string]bool, len(out))
	for _, v := range out {
		raised[v.ViolationType] = true
		raised[violationKey(v.ViolationType, v.ComplianceRuleID)] = true
	}
	add := func(kind string, severity models.Severity, rule *models.ComplianceRule, message string) {
		v := newViolation(product, kind, severity, rule, message)
		v.Details["classification_source"] = preview.Source
		out = append(out, v)
		raised[kind] = true
		raised[violationKey(kind, v.ComplianceRuleID)] = true
	}

	if preview.NicotineProduct && !product.NicotineProduct && !raised[ViolationNicotineFlagMissing] {
		add(ViolationNicotineFlagMissing, models.SeverityHigh, nil,
			"Classification marks the product as nicotine but it is not flagged")
	}
	if !preview.VisibleOnMainSite && product.VisibleOnMainSite &&
		!raised[ViolationVisibilityMismatch] && !raised[ViolationNicotineVisible] {
		add(ViolationVisibilityMismatch, models.SeverityHigh, nil,
			"Classification requires the product to be hidden from the main site")
	}

	byID := make(map[uuid.UUID]models.ComplianceRule, len(active))
	for _, rule := range active {
		byID[rule.ID] = rule
	}
	linked := make(map[uuid.UUID]bool, len(associated))
	for _, rule := range associated {
		linked[rule.ID] = true
	}
	for _, id := range preview.AssociatedRuleIDs {
		rule, ok := byID[id]
		if !ok || linked[id] {
			continue
		}
		ruleID := id
		if raised[violationKey(ViolationMissingRuleAssociation, &ruleID)] {
			continue
		}
		add(ViolationMissingRuleAssociation, models.SeverityMedium, &rule,
			fmt.Sprintf("Classification places the product under rule %s but it is not associated with it", rule.Name))
	}

	if preview.RequiresLabTest && !product.RequiresLabTest && cert == nil && !raised[ViolationLabTestMissing] {
		add(ViolationLabTestMissing, models.SeverityLow, nil,
			"Classification requires a certificate of analysis but none is on file")
	}

	if product.LastClassifiedAt != nil && !sameCategories(product.ClassifiedCategories, preview.Categories) {
		v := newViolation(product, ViolationCategoryMismatch, models.SeverityMedium, nil,
			"Stored categories differ from a fresh classification")
		v.Details["classification_source"] = preview.Source
		v.Details["stored_categories"] = categoryStrings(product.ClassifiedCategories)
		v.Details["classified_categories"] = categoryStrings(preview.Categories)
		out = append(out, v)
	}
	return out
}

func sameCategories(a, b []models.Category) bool {
	set := make(map[models.Category]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	other := make(map[models.Category]bool, len(b))
	for _, c := range b {
		if !set[c] {
			return false
		}
		other[c] = true
	}
	return len(set) == len(other)
}

func categoryStrings(categories []models.Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

func (s *AuditService) openViolationKeys(ctx context.Context, productID uuid.UUID) (map[string]bool, error) {
	resolved := false
	keys := make(map[string]bool)
	for page := 1; ; page++ {
		logs, total, err := s.store.GetComplianceAuditLogs(ctx, models.AuditLogFilter{
			Page:      page,
			Limit:     utils.MaxPageLimit,
			Resolved:  &resolved,
			ProductID: &productID,
		})
		if err != nil {
			return nil, err
		}
		for _, entry := range logs {
			keys[violationKey(entry.ViolationType, entry.ComplianceRuleID)] = true
		}
		if len(logs) == 0 || int64(page*utils.MaxPageLimit) >= total {
			return keys, nil
		}
	}
}

func violationKey(kind string, ruleID *uuid.UUID) string {
	if ruleID == nil {
		return kind
	}
	return kind + ":" + ruleID.String()
}

// AuditAll audits up to limit products with bounded concurrency. A failing
// product is counted and the batch continues.
func (s *AuditService) AuditAll(ctx context.Context, limit int) (*AuditAllSummary, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	products, err := s.store.ListProducts(ctx, limit)
	if err != nil {
		return nil, err
	}

	summary := &AuditAllSummary{Messages: []string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, product := range products {
		productID := product.ID
		g.Go(func() error {
			result, err := s.AuditProduct(gctx, productID)

			mu.Lock()
			defer mu.Unlock()
			summary.Audited++
			if err != nil {
				summary.Errors++
				summary.Messages = append(summary.Messages, fmt.Sprintf("%s: %v", productID, err))
				logrus.WithError(err).WithField("product_id", productID).Warn("Product audit failed")
				return nil
			}
			if len(result.Violations) > 0 {
				summary.WithViolations++
				summary.Violations += len(result.Violations)
			}
			return nil
		})
	}
	_ = g.Wait()

	logrus.WithFields(logrus.Fields{
		"audited":         summary.Audited,
		"with_violations": summary.WithViolations,
		"violations":      summary.Violations,
		"errors":          summary.Errors,
	}).Info("Compliance audit finished")

	return summary, nil
}
