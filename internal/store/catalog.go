// Package store holds the persistence adapters the compliance services read
// and write through: a gorm-backed catalog, the ZIP reference table with an
// optional Redis cache in front of it, and in-memory equivalents for
// development and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (s *GormCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func (s *GormCatalog) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	var products []models.Product
	query := s.db.WithContext(ctx).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *GormCatalog) UpdateProduct(ctx context.Context, id uuid.UUID, patch models.ProductPatch) error {
	updates := patch.Updates()
	if len(updates) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apierr.ErrProductNotFound
	}
	return nil
}

func (s *GormCatalog) GetAllComplianceRules(ctx context.Context) ([]models.ComplianceRule, error) {
	var rules []models.ComplianceRule
	if err := s.db.WithContext(ctx).Order("catalog_order ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load compliance rules: %w", err)
	}
	return rules, nil
}

func (s *GormCatalog) GetComplianceRulesByCategory(ctx context.Context, category models.Category) ([]models.ComplianceRule, error) {
	var rules []models.ComplianceRule
	err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Order("catalog_order ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules: %w", category, err)
	}
	return rules, nil
}

func (s *GormCatalog) GetComplianceRule(ctx context.Context, id uuid.UUID) (*models.ComplianceRule, error) {
	var rule models.ComplianceRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get compliance rule: %w", err)
	}
	return &rule, nil
}

// CreateComplianceRule appends the rule to the end of the catalog.
func (s *GormCatalog) CreateComplianceRule(ctx context.Context, rule *models.ComplianceRule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ComplianceRule{}).Where("name = ?", rule.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check rule name: %w", err)
		}
		if count > 0 {
			return apierr.Conflict(apierr.CodeDuplicateRule, fmt.Sprintf("compliance rule %q already exists", rule.Name))
		}

		var maxOrder int
		if err := tx.Unscoped().Model(&models.ComplianceRule{}).
			Select("COALESCE(MAX(catalog_order), 0)").
			Scan(&maxOrder).Error; err != nil {
			return fmt.Errorf("failed to read catalog order: %w", err)
		}
		rule.CatalogOrder = maxOrder + 1

		if err := tx.Create(rule).Error; err != nil {
			return fmt.Errorf("failed to create compliance rule: %w", err)
		}
		return nil
	})
}

// UpdateComplianceRule rewrites the editable fields. Name and catalog order
// are fixed at creation.
func (s *GormCatalog) UpdateComplianceRule(ctx context.Context, rule *models.ComplianceRule) error {
	result := s.db.WithContext(ctx).Model(&models.ComplianceRule{}).Where("id = ?", rule.ID).
		Select("category", "keywords", "action", "priority", "shipping_restrictions",
			"age_requirement", "restricted_states", "description", "updated_at").
		Updates(rule)
	if result.Error != nil {
		return fmt.Errorf("failed to update compliance rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apierr.ErrRuleNotFound
	}
	return nil
}

// CreateProductCompliance is idempotent: an existing association is left as is.
func (s *GormCatalog) CreateProductCompliance(ctx context.Context, productID, ruleID uuid.UUID) error {
	link := models.ProductCompliance{ProductID: productID, ComplianceRuleID: ruleID}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error
	if err != nil {
		return fmt.Errorf("failed to create product compliance: %w", err)
	}
	return nil
}

func (s *GormCatalog) DeleteProductCompliance(ctx context.Context, productID uuid.UUID, ruleIDs []uuid.UUID) error {
	if len(ruleIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND compliance_rule_id IN ?", productID, ruleIDs).
		Delete(&models.ProductCompliance{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete product compliance: %w", err)
	}
	return nil
}

// GetProductRules returns the rules associated with a product.
func (s *GormCatalog) GetProductRules(ctx context.Context, productID uuid.UUID) ([]models.ComplianceRule, error) {
	var rules []models.ComplianceRule
	err := s.db.WithContext(ctx).
		Joins("JOIN product_compliances pc ON pc.compliance_rule_id = compliance_rules.id").
		Where("pc.product_id = ?", productID).
		Order("compliance_rules.catalog_order ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load product rules: %w", err)
	}
	return rules, nil
}

func (s *GormCatalog) CreateLabCertificate(ctx context.Context, cert *models.LabCertificate) error {
	if err := s.db.WithContext(ctx).Create(cert).Error; err != nil {
		return fmt.Errorf("failed to create lab certificate: %w", err)
	}
	return nil
}

// LatestLabCertificate returns nil when the product has none.
func (s *GormCatalog) LatestLabCertificate(ctx context.Context, productID uuid.UUID) (*models.LabCertificate, error) {
	var cert models.LabCertificate
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lab certificate: %w", err)
	}
	return &cert, nil
}

func (s *GormCatalog) CreateAuditLogs(ctx context.Context, logs []models.ComplianceAuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("failed to create audit logs: %w", err)
	}
	return nil
}

func (s *GormCatalog) GetComplianceAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.ComplianceAuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ComplianceAuditLog{})
	if filter.Severity != nil {
		query = query.Where("severity = ?", *filter.Severity)
	}
	if filter.Resolved != nil {
		if *filter.Resolved {
			query = query.Where("resolved_at IS NOT NULL")
		} else {
			query = query.Where("resolved_at IS NULL")
		}
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var logs []models.ComplianceAuditLog
	err := query.Scopes(utils.Paginate(filter.Page, filter.Limit)).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

// ResolveComplianceViolation stamps an unresolved violation. The stamp is
// written at most once; a second attempt reports ErrAlreadyResolved.
func (s *GormCatalog) ResolveComplianceViolation(ctx context.Context, id uuid.UUID, resolvedBy, notes string, at time.Time) (*models.ComplianceAuditLog, error) {
	var resolvedNotes *string
	if strings.TrimSpace(notes) != "" {
		resolvedNotes = &notes
	}

	result := s.db.WithContext(ctx).Model(&models.ComplianceAuditLog{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_by":      resolvedBy,
			"resolved_at":      at,
			"resolution_notes": resolvedNotes,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to resolve violation: %w", result.Error)
	}

	var entry models.ComplianceAuditLog
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.ErrViolationNotFound
		}
		return nil, fmt.Errorf("failed to load violation: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, apierr.ErrAlreadyResolved
	}
	return &entry, nil
}

func (s *GormCatalog) CountOpenViolations(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ComplianceAuditLog{}).
		Where("product_id = ? AND resolved_at IS NULL", productID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count open violations: %w", err)
	}
	return count, nil
}

// CreateRequestLog records one administrative request.
func (s *GormCatalog) CreateRequestLog(ctx context.Context, entry *models.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create request log: %w", err)
	}
	return nil
}
