package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/rules"
)

// RuleSeeder is satisfied by both catalog stores.
type RuleSeeder interface {
	GetAllComplianceRules(ctx context.Context) ([]models.ComplianceRule, error)
	CreateComplianceRule(ctx context.Context, rule *models.ComplianceRule) error
}

// SeedRules writes the starter catalog into an empty rule table. A catalog
// that already holds rules is left alone, so operator edits survive restarts.
func SeedRules(ctx context.Context, store RuleSeeder) (int, error) {
	existing, err := store.GetAllComplianceRules(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, rule := range rules.DefaultRules() {
		if err := store.CreateComplianceRule(ctx, &rule); err != nil {
			return created, fmt.Errorf("failed to seed rule %s: %w", rule.Name, err)
		}
		created++
	}

	logrus.WithField("rules", created).Info("Default compliance rules seeded")
	return created, nil
}

// SampleZipCodes is a small reference set for development databases. The
// production table is loaded from the USPS extract.
func SampleZipCodes() []models.ZipCode {
	return []models.ZipCode{
		{Zip: "73301", State: "TX", City: "Austin", County: "Travis"},
		{Zip: "84101", State: "UT", City: "Salt Lake City", County: "Salt Lake"},
		{Zip: "83702", State: "ID", City: "Boise", County: "Ada"},
		{Zip: "04101", State: "ME", City: "Portland", County: "Cumberland"},
		{Zip: "97201", State: "OR", City: "Portland", County: "Multnomah"},
		{Zip: "05401", State: "VT", City: "Burlington", County: "Chittenden"},
		{Zip: "35203", State: "AL", City: "Birmingham", County: "Jefferson"},
		{Zip: "33101", State: "FL", City: "Miami", County: "Miami-Dade"},
		{Zip: "10001", State: "NY", City: "New York", County: "New York"},
		{Zip: "90001", State: "CA", City: "Los Angeles", County: "Los Angeles"},
	}
}

func SeedZipCodes(db *gorm.DB) error {
	zips := SampleZipCodes()
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&zips).Error
	if err != nil {
		return fmt.Errorf("failed to seed zip codes: %w", err)
	}
	return nil
}

// SeedInitialData seeds rules and the sample ZIP set into a gorm database.
func SeedInitialData(ctx context.Context, db *gorm.DB, store RuleSeeder) error {
	logrus.Info("Seeding initial data")

	if _, err := SeedRules(ctx, store); err != nil {
		return err
	}
	if err := SeedZipCodes(db.WithContext(ctx)); err != nil {
		return err
	}

	logrus.Info("Initial data seeding completed")
	return nil
}
