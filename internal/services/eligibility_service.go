// internal/services/eligibility_service.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
	"github.com/greenleaf/compliance-engine/internal/rules"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

type EligibilityResponse struct {
	Zip                  string                   `json:"zip"`
	State                string                   `json:"state"`
	City                 string                   `json:"city"`
	County               string                   `json:"county"`
	RestrictedCategories []models.Category        `json:"restricted_categories"`
	MatchedRules         []string                 `json:"matched_rules"`
	ShippingRestrictions rules.MergedRestrictions `json:"shipping_restrictions"`
}

type EligibilityService struct {
	zips    ZipResolver
	catalog *RuleCatalog
	metrics *metrics.Metrics
}

func NewEligibilityService(zips ZipResolver, catalog *RuleCatalog, m *metrics.Metrics) *EligibilityService {
	return &EligibilityService{zips: zips, catalog: catalog, metrics: m}
}

// CheckEligibility merges the constraints of every rule restricting the
// ZIP's state. A state no rule lists yields empty lists, not an error.
func (s *EligibilityService) CheckEligibility(ctx context.Context, zip string) (*EligibilityResponse, error) {
	start := time.Now()
	resp, err := s.check(ctx, zip)
	if err != nil {
		outcome := "error"
		if e, ok := apierr.As(err); ok {
			outcome = e.Code
		}
		s.metrics.ObserveEligibility(outcome, start)
		return nil, err
	}

	outcome := "unrestricted"
	if len(resp.RestrictedCategories) > 0 {
		outcome = "restricted"
	}
	s.metrics.ObserveEligibility(outcome, start)
	return resp, nil
}

func (s *EligibilityService) check(ctx context.Context, zip string) (*EligibilityResponse, error) {
	if !utils.IsValidZip(zip) {
		return nil, apierr.Validation(apierr.CodeInvalidZip, "zip must be exactly 5 digits")
	}

	location, err := s.zips.ResolveZip(ctx, zip)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog.Rules(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load compliance rules for eligibility")
		return nil, apierr.External(apierr.CodeRuleLoad, "failed to load compliance rules", err)
	}

	matched := rules.RestrictingState(catalog, location.State)
	resp := &EligibilityResponse{
		Zip:                  location.Zip,
		State:                location.State,
		City:                 location.City,
		County:               location.County,
		RestrictedCategories: rules.DistinctCategories(matched),
		MatchedRules:         []string{},
		ShippingRestrictions: rules.MergeShippingRestrictions(matched),
	}
	for _, rule := range matched {
		resp.MatchedRules = append(resp.MatchedRules, rule.Name)
	}
	return resp, nil
}
