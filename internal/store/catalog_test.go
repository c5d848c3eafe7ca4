package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
)

type GormCatalogTestSuite struct {
	suite.Suite
	db      *gorm.DB
	catalog *GormCatalog
	ctx     context.Context
}

func (s *GormCatalogTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(
		&models.Product{},
		&models.ComplianceRule{},
		&models.ProductCompliance{},
		&models.LabCertificate{},
		&models.ComplianceAuditLog{},
		&models.ZipCode{},
	))
	s.db = db
	s.catalog = NewGormCatalog(db)
	s.ctx = context.Background()
}

func (s *GormCatalogTestSuite) seedProduct(name string) models.Product {
	product := models.Product{Name: name, Description: "test", VisibleOnMainSite: true}
	s.Require().NoError(s.db.Create(&product).Error)
	return product
}

func (s *GormCatalogTestSuite) seedRule(name string, category models.Category) models.ComplianceRule {
	rule := models.ComplianceRule{
		Name:             name,
		Category:         category,
		Keywords:         []string{name},
		Action:           models.ActionFlag,
		Priority:         50,
		RestrictedStates: []string{"UT"},
		ShippingRestrictions: &models.ShippingRestrictions{
			MaxQuantityPerOrder: models.IntPtr(3),
		},
	}
	s.Require().NoError(s.catalog.CreateComplianceRule(s.ctx, &rule))
	return rule
}

func (s *GormCatalogTestSuite) TestGetProduct_NotFound() {
	_, err := s.catalog.GetProduct(s.ctx, uuid.New())
	s.ErrorIs(err, apierr.ErrProductNotFound)
}

func (s *GormCatalogTestSuite) TestUpdateProduct_WritesOnlyPatchedFields() {
	product := s.seedProduct("Kratom Capsules")
	batch := "B-1001"

	err := s.catalog.UpdateProduct(s.ctx, product.ID, models.ProductPatch{
		RequiresLabTest:      models.BoolPtr(true),
		BatchNumber:          &batch,
		ClassifiedCategories: []models.Category{models.CategoryKratom},
	})
	s.Require().NoError(err)

	got, err := s.catalog.GetProduct(s.ctx, product.ID)
	s.Require().NoError(err)
	s.True(got.RequiresLabTest)
	s.True(got.VisibleOnMainSite)
	s.Equal("B-1001", *got.BatchNumber)
	s.Equal([]models.Category{models.CategoryKratom}, []models.Category(got.ClassifiedCategories))
	s.Nil(got.ExpirationDate)
}

func (s *GormCatalogTestSuite) TestUpdateProduct_Unknown() {
	err := s.catalog.UpdateProduct(s.ctx, uuid.New(), models.ProductPatch{NicotineProduct: models.BoolPtr(true)})
	s.ErrorIs(err, apierr.ErrProductNotFound)
}

func (s *GormCatalogTestSuite) TestCreateComplianceRule_AssignsCatalogOrder() {
	first := s.seedRule("first", models.CategoryCBD)
	second := s.seedRule("second", models.CategoryKratom)

	s.Equal(1, first.CatalogOrder)
	s.Equal(2, second.CatalogOrder)

	rules, err := s.catalog.GetAllComplianceRules(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rules, 2)
	s.Equal("first", rules[0].Name)
	s.Equal([]string{"UT"}, []string(rules[0].RestrictedStates))
	s.Require().NotNil(rules[0].ShippingRestrictions)
	s.Equal(3, *rules[0].ShippingRestrictions.MaxQuantityPerOrder)
}

func (s *GormCatalogTestSuite) TestCreateComplianceRule_DuplicateName() {
	s.seedRule("dup", models.CategoryCBD)

	rule := models.ComplianceRule{Name: "dup", Category: models.CategoryCBD, Action: models.ActionFlag}
	err := s.catalog.CreateComplianceRule(s.ctx, &rule)

	s.True(apierr.IsKind(err, apierr.KindConflict))
}

func (s *GormCatalogTestSuite) TestUpdateComplianceRule() {
	rule := s.seedRule("editable", models.CategoryCBD)
	rule.Priority = 75
	rule.RestrictedStates = []string{"ID", "NE"}
	rule.Name = "renamed"

	s.Require().NoError(s.catalog.UpdateComplianceRule(s.ctx, &rule))

	got, err := s.catalog.GetComplianceRule(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal(75, got.Priority)
	s.Equal("editable", got.Name)
	s.Equal([]string{"ID", "NE"}, []string(got.RestrictedStates))
}

func (s *GormCatalogTestSuite) TestGetComplianceRulesByCategory() {
	s.seedRule("a", models.CategoryCBD)
	s.seedRule("b", models.CategoryKratom)
	s.seedRule("c", models.CategoryCBD)

	rules, err := s.catalog.GetComplianceRulesByCategory(s.ctx, models.CategoryCBD)
	s.Require().NoError(err)
	s.Len(rules, 2)
	s.Equal("a", rules[0].Name)
	s.Equal("c", rules[1].Name)
}

func (s *GormCatalogTestSuite) TestCreateProductCompliance_IsIdempotent() {
	product := s.seedProduct("CBD Tincture")
	rule := s.seedRule("cbd", models.CategoryCBD)

	s.Require().NoError(s.catalog.CreateProductCompliance(s.ctx, product.ID, rule.ID))
	s.Require().NoError(s.catalog.CreateProductCompliance(s.ctx, product.ID, rule.ID))

	var count int64
	s.db.Model(&models.ProductCompliance{}).Where("product_id = ?", product.ID).Count(&count)
	s.Equal(int64(1), count)

	rules, err := s.catalog.GetProductRules(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Len(rules, 1)

	s.Require().NoError(s.catalog.DeleteProductCompliance(s.ctx, product.ID, []uuid.UUID{rule.ID}))
	rules, err = s.catalog.GetProductRules(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Empty(rules)
}

func (s *GormCatalogTestSuite) TestLabCertificates() {
	product := s.seedProduct("THCA Flower")

	none, err := s.catalog.LatestLabCertificate(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Nil(none)

	cert := models.LabCertificate{
		ProductID:          product.ID,
		URL:                "https://labs.example/coa.pdf",
		Potency:            models.PotencyMap{"thca": 24.1},
		ContaminantResults: models.ContaminantResults{models.PanelPesticides: models.ContaminantPass},
		ValidationErrors:   []string{},
		IsValid:            true,
		ParsedByAI:         true,
	}
	s.Require().NoError(s.catalog.CreateLabCertificate(s.ctx, &cert))
	s.NotEqual(uuid.Nil, cert.ID)

	latest, err := s.catalog.LatestLabCertificate(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(24.1, latest.Potency["thca"])
	s.Equal(models.ContaminantPass, latest.ContaminantResults[models.PanelPesticides])
}

func (s *GormCatalogTestSuite) TestAuditLogs_FilterPaginateAndResolveOnce() {
	product := s.seedProduct("Vape Kit")
	logs := []models.ComplianceAuditLog{
		{ProductID: &product.ID, ViolationType: "nicotine_visible", Severity: models.SeverityCritical, Message: "m1", Source: "test"},
		{ProductID: &product.ID, ViolationType: "lab_test_missing", Severity: models.SeverityLow, Message: "m2", Source: "test"},
		{ViolationType: "visibility_mismatch", Severity: models.SeverityHigh, Message: "m3", Source: "test"},
	}
	s.Require().NoError(s.catalog.CreateAuditLogs(s.ctx, logs))

	critical := models.SeverityCritical
	got, total, err := s.catalog.GetComplianceAuditLogs(s.ctx, models.AuditLogFilter{Page: 1, Limit: 10, Severity: &critical})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal("nicotine_visible", got[0].ViolationType)

	page, total, err := s.catalog.GetComplianceAuditLogs(s.ctx, models.AuditLogFilter{Page: 2, Limit: 2})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Len(page, 1)

	resolved, err := s.catalog.ResolveComplianceViolation(s.ctx, logs[0].ID, "admin-1", "fixed", time.Now())
	s.Require().NoError(err)
	s.Equal("admin-1", *resolved.ResolvedBy)
	s.NotNil(resolved.ResolvedAt)

	_, err = s.catalog.ResolveComplianceViolation(s.ctx, logs[0].ID, "admin-2", "again", time.Now())
	s.ErrorIs(err, apierr.ErrAlreadyResolved)

	_, err = s.catalog.ResolveComplianceViolation(s.ctx, uuid.New(), "admin-2", "", time.Now())
	s.ErrorIs(err, apierr.ErrViolationNotFound)

	open, err := s.catalog.CountOpenViolations(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), open)

	unresolved := false
	_, total, err = s.catalog.GetComplianceAuditLogs(s.ctx, models.AuditLogFilter{Page: 1, Limit: 10, Resolved: &unresolved})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
}

func (s *GormCatalogTestSuite) TestZipStore() {
	s.Require().NoError(s.db.Create(&models.ZipCode{Zip: "73301", State: "TX", City: "Austin", County: "Travis"}).Error)
	zips := NewZipStore(s.db)

	row, err := zips.ResolveZip(s.ctx, "73301")
	s.Require().NoError(err)
	s.Equal("TX", row.State)

	_, err = zips.ResolveZip(s.ctx, "00000")
	s.ErrorIs(err, apierr.ErrZipNotFound)
}

func TestGormCatalogTestSuite(t *testing.T) {
	suite.Run(t, new(GormCatalogTestSuite))
}

func TestMemoryCatalog_IdempotentAssociation(t *testing.T) {
	catalog := NewMemoryCatalog()
	product := catalog.PutProduct(models.Product{Name: "p"})
	rule := models.ComplianceRule{Name: "r", Category: models.CategoryCBD, Action: models.ActionFlag}
	require.NoError(t, catalog.CreateComplianceRule(context.Background(), &rule))

	require.NoError(t, catalog.CreateProductCompliance(context.Background(), product.ID, rule.ID))
	require.NoError(t, catalog.CreateProductCompliance(context.Background(), product.ID, rule.ID))

	assert.Equal(t, 1, catalog.AssociationCount(product.ID))
}

func TestMemoryCatalog_ReturnsCopies(t *testing.T) {
	catalog := NewMemoryCatalog()
	product := catalog.PutProduct(models.Product{Name: "p", ClassifiedCategories: []models.Category{models.CategoryCBD}})

	got, err := catalog.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	got.ClassifiedCategories[0] = models.CategoryNicotine
	got.Name = "changed"

	again, err := catalog.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, "p", again.Name)
	assert.Equal(t, models.CategoryCBD, again.ClassifiedCategories[0])
}
