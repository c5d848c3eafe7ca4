// internal/services/store.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/store"
)

// ProductStore is the slice of the external catalog this service may touch.
type ProductStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, limit int) ([]models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, patch models.ProductPatch) error
}

type RuleStore interface {
	GetAllComplianceRules(ctx context.Context) ([]models.ComplianceRule, error)
	GetComplianceRulesByCategory(ctx context.Context, category models.Category) ([]models.ComplianceRule, error)
	GetComplianceRule(ctx context.Context, id uuid.UUID) (*models.ComplianceRule, error)
	CreateComplianceRule(ctx context.Context, rule *models.ComplianceRule) error
	UpdateComplianceRule(ctx context.Context, rule *models.ComplianceRule) error
}

// AssociationStore manages ProductCompliance links. Creating an existing
// link must succeed without duplicating it.
type AssociationStore interface {
	CreateProductCompliance(ctx context.Context, productID, ruleID uuid.UUID) error
	DeleteProductCompliance(ctx context.Context, productID uuid.UUID, ruleIDs []uuid.UUID) error
	GetProductRules(ctx context.Context, productID uuid.UUID) ([]models.ComplianceRule, error)
}

type LabCertificateStore interface {
	CreateLabCertificate(ctx context.Context, cert *models.LabCertificate) error
	LatestLabCertificate(ctx context.Context, productID uuid.UUID) (*models.LabCertificate, error)
}

type ViolationStore interface {
	CreateAuditLogs(ctx context.Context, logs []models.ComplianceAuditLog) error
	GetComplianceAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.ComplianceAuditLog, int64, error)
	ResolveComplianceViolation(ctx context.Context, id uuid.UUID, resolvedBy, notes string, at time.Time) (*models.ComplianceAuditLog, error)
	CountOpenViolations(ctx context.Context, productID uuid.UUID) (int64, error)
}

// CatalogStore is everything the compliance services need from persistence.
type CatalogStore interface {
	ProductStore
	RuleStore
	AssociationStore
	LabCertificateStore
	ViolationStore
}

type ZipResolver = store.ZipResolver

var (
	_ CatalogStore = (*store.GormCatalog)(nil)
	_ CatalogStore = (*store.MemoryCatalog)(nil)
	_ ZipResolver  = (*store.ZipStore)(nil)
	_ ZipResolver  = (*store.CachedZipResolver)(nil)
	_ ZipResolver  = (*store.MemoryZipStore)(nil)
)
