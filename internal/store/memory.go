package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
)

type linkKey struct {
	productID uuid.UUID
	ruleID    uuid.UUID
}

// MemoryCatalog is an in-process catalog used by STORE_DRIVER=memory and by
// service tests. Values are copied in and out so callers never share state
// with the store.
type MemoryCatalog struct {
	mu           sync.RWMutex
	products     map[uuid.UUID]models.Product
	productOrder []uuid.UUID
	rules        map[uuid.UUID]models.ComplianceRule
	links        map[linkKey]time.Time
	certificates []models.LabCertificate
	auditLogs    []models.ComplianceAuditLog
	requestLogs  []models.AuditLog
	nextOrder    int
	now          func() time.Time

	// FailRuleLoad makes rule reads fail, for exercising degraded paths.
	FailRuleLoad error
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: make(map[uuid.UUID]models.Product),
		rules:    make(map[uuid.UUID]models.ComplianceRule),
		links:    make(map[linkKey]time.Time),
		now:      time.Now,
	}
}

// PutProduct inserts or replaces a product, standing in for the external
// catalog that owns product lifecycle.
func (s *MemoryCatalog) PutProduct(product models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if _, exists := s.products[product.ID]; !exists {
		s.productOrder = append(s.productOrder, product.ID)
		product.CreatedAt = s.now()
	}
	product.UpdatedAt = s.now()
	s.products[product.ID] = cloneProduct(product)
	return product
}

func (s *MemoryCatalog) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, apierr.ErrProductNotFound
	}
	out := cloneProduct(product)
	return &out, nil
}

func (s *MemoryCatalog) ListProducts(_ context.Context, limit int) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Product
	for _, id := range s.productOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneProduct(s.products[id]))
	}
	return out, nil
}

func (s *MemoryCatalog) UpdateProduct(_ context.Context, id uuid.UUID, patch models.ProductPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return apierr.ErrProductNotFound
	}
	patch.Apply(&product)
	product.UpdatedAt = s.now()
	s.products[id] = cloneProduct(product)
	return nil
}

func (s *MemoryCatalog) GetAllComplianceRules(_ context.Context) ([]models.ComplianceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailRuleLoad != nil {
		return nil, s.FailRuleLoad
	}
	return s.sortedRules(func(models.ComplianceRule) bool { return true }), nil
}

func (s *MemoryCatalog) GetComplianceRulesByCategory(_ context.Context, category models.Category) ([]models.ComplianceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailRuleLoad != nil {
		return nil, s.FailRuleLoad
	}
	return s.sortedRules(func(r models.ComplianceRule) bool { return r.Category == category }), nil
}

func (s *MemoryCatalog) GetComplianceRule(_ context.Context, id uuid.UUID) (*models.ComplianceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, apierr.ErrRuleNotFound
	}
	out := cloneRule(rule)
	return &out, nil
}

func (s *MemoryCatalog) CreateComplianceRule(_ context.Context, rule *models.ComplianceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rules {
		if existing.Name == rule.Name {
			return apierr.Conflict(apierr.CodeDuplicateRule, fmt.Sprintf("compliance rule %q already exists", rule.Name))
		}
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	s.nextOrder++
	rule.CatalogOrder = s.nextOrder
	rule.CreatedAt = s.now()
	rule.UpdatedAt = rule.CreatedAt
	s.rules[rule.ID] = cloneRule(*rule)
	return nil
}

func (s *MemoryCatalog) UpdateComplianceRule(_ context.Context, rule *models.ComplianceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[rule.ID]
	if !ok {
		return apierr.ErrRuleNotFound
	}
	updated := cloneRule(*rule)
	updated.Name = existing.Name
	updated.CatalogOrder = existing.CatalogOrder
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()
	s.rules[rule.ID] = updated
	return nil
}

func (s *MemoryCatalog) CreateProductCompliance(_ context.Context, productID, ruleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := linkKey{productID: productID, ruleID: ruleID}
	if _, exists := s.links[key]; !exists {
		s.links[key] = s.now()
	}
	return nil
}

func (s *MemoryCatalog) DeleteProductCompliance(_ context.Context, productID uuid.UUID, ruleIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ruleID := range ruleIDs {
		delete(s.links, linkKey{productID: productID, ruleID: ruleID})
	}
	return nil
}

func (s *MemoryCatalog) GetProductRules(_ context.Context, productID uuid.UUID) ([]models.ComplianceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedRules(func(r models.ComplianceRule) bool {
		_, linked := s.links[linkKey{productID: productID, ruleID: r.ID}]
		return linked
	}), nil
}

// AssociationCount reports how many rules are linked to a product.
func (s *MemoryCatalog) AssociationCount(productID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.links {
		if key.productID == productID {
			count++
		}
	}
	return count
}

func (s *MemoryCatalog) CreateLabCertificate(_ context.Context, cert *models.LabCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}
	cert.CreatedAt = s.now()
	cert.UpdatedAt = cert.CreatedAt
	s.certificates = append(s.certificates, *cert)
	return nil
}

func (s *MemoryCatalog) LatestLabCertificate(_ context.Context, productID uuid.UUID) (*models.LabCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.certificates) - 1; i >= 0; i-- {
		if s.certificates[i].ProductID == productID {
			cert := s.certificates[i]
			return &cert, nil
		}
	}
	return nil, nil
}

func (s *MemoryCatalog) CreateAuditLogs(_ context.Context, logs []models.ComplianceAuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range logs {
		if logs[i].ID == uuid.Nil {
			logs[i].ID = uuid.New()
		}
		logs[i].CreatedAt = s.now()
		logs[i].UpdatedAt = logs[i].CreatedAt
		s.auditLogs = append(s.auditLogs, logs[i])
	}
	return nil
}

func (s *MemoryCatalog) GetComplianceAuditLogs(_ context.Context, filter models.AuditLogFilter) ([]models.ComplianceAuditLog, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.ComplianceAuditLog
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if filter.Severity != nil && entry.Severity != *filter.Severity {
			continue
		}
		if filter.Resolved != nil && entry.Resolved() != *filter.Resolved {
			continue
		}
		if filter.ProductID != nil && (entry.ProductID == nil || *entry.ProductID != *filter.ProductID) {
			continue
		}
		matched = append(matched, entry)
	}

	total := int64(len(matched))
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = len(matched)
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []models.ComplianceAuditLog{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryCatalog) ResolveComplianceViolation(_ context.Context, id uuid.UUID, resolvedBy, notes string, at time.Time) (*models.ComplianceAuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.auditLogs {
		if s.auditLogs[i].ID != id {
			continue
		}
		if s.auditLogs[i].Resolved() {
			return nil, apierr.ErrAlreadyResolved
		}
		s.auditLogs[i].ResolvedBy = &resolvedBy
		s.auditLogs[i].ResolvedAt = &at
		if strings.TrimSpace(notes) != "" {
			s.auditLogs[i].ResolutionNotes = &notes
		}
		entry := s.auditLogs[i]
		return &entry, nil
	}
	return nil, apierr.ErrViolationNotFound
}

func (s *MemoryCatalog) CountOpenViolations(_ context.Context, productID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, entry := range s.auditLogs {
		if entry.ProductID != nil && *entry.ProductID == productID && !entry.Resolved() {
			count++
		}
	}
	return count, nil
}

// sortedRules must be called with the lock held.
func (s *MemoryCatalog) CreateRequestLog(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = s.now()
	s.requestLogs = append(s.requestLogs, *entry)
	return nil
}

// RequestLogs returns a copy of the recorded request trail.
func (s *MemoryCatalog) RequestLogs() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditLog(nil), s.requestLogs...)
}

func (s *MemoryCatalog) sortedRules(keep func(models.ComplianceRule) bool) []models.ComplianceRule {
	out := []models.ComplianceRule{}
	for _, rule := range s.rules {
		if keep(rule) {
			out = append(out, cloneRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CatalogOrder < out[j].CatalogOrder })
	return out
}

func cloneProduct(p models.Product) models.Product {
	if p.ClassifiedCategories != nil {
		p.ClassifiedCategories = append(p.ClassifiedCategories[:0:0], p.ClassifiedCategories...)
	}
	return p
}

func cloneRule(r models.ComplianceRule) models.ComplianceRule {
	r.Keywords = append(r.Keywords[:0:0], r.Keywords...)
	r.RestrictedStates = append(r.RestrictedStates[:0:0], r.RestrictedStates...)
	if r.ShippingRestrictions != nil {
		sr := *r.ShippingRestrictions
		sr.CarrierRestrictions = append([]string(nil), sr.CarrierRestrictions...)
		r.ShippingRestrictions = &sr
	}
	return r
}

// MemoryZipStore resolves ZIPs from a fixed table and counts lookups.
type MemoryZipStore struct {
	mu    sync.Mutex
	zips  map[string]models.ZipCode
	calls int
}

func NewMemoryZipStore(rows ...models.ZipCode) *MemoryZipStore {
	zips := make(map[string]models.ZipCode, len(rows))
	for _, row := range rows {
		zips[row.Zip] = row
	}
	return &MemoryZipStore{zips: zips}
}

func (s *MemoryZipStore) ResolveZip(_ context.Context, zip string) (*models.ZipCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	row, ok := s.zips[zip]
	if !ok {
		return nil, apierr.ErrZipNotFound
	}
	return &row, nil
}

func (s *MemoryZipStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
