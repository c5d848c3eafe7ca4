package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/rules"
	"github.com/greenleaf/compliance-engine/internal/store"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))
	return db
}

func TestSeedInitialDataIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	catalog := store.NewGormCatalog(db)
	ctx := context.Background()

	require.NoError(t, SeedInitialData(ctx, db, catalog))
	require.NoError(t, SeedInitialData(ctx, db, catalog))

	seeded, err := catalog.GetAllComplianceRules(ctx)
	require.NoError(t, err)
	require.Len(t, seeded, len(rules.DefaultRules()))
	for i, rule := range seeded {
		assert.Equal(t, i+1, rule.CatalogOrder)
	}

	var zips int64
	require.NoError(t, db.Model(&models.ZipCode{}).Count(&zips).Error)
	assert.Equal(t, int64(len(SampleZipCodes())), zips)

	zip, err := store.NewZipStore(db).ResolveZip(ctx, "84101")
	require.NoError(t, err)
	assert.Equal(t, "UT", zip.State)
}

func TestSeedRulesKeepsEditedCatalog(t *testing.T) {
	catalog := store.NewMemoryCatalog()
	ctx := context.Background()
	require.NoError(t, catalog.CreateComplianceRule(ctx, &models.ComplianceRule{
		Name: "custom", Category: models.CategoryOther, Keywords: []string{"x"}, Action: models.ActionFlag,
	}))

	created, err := SeedRules(ctx, catalog)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Info, gormLogLevel("INFO"))
	assert.Equal(t, logger.Warn, gormLogLevel(""))
}
