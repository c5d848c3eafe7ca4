package rules

import (
	"sort"

	"github.com/greenleaf/compliance-engine/internal/models"
)

// MergedRestrictions is the combined shipping posture for a destination.
type MergedRestrictions struct {
	CarrierRestrictions     []string `json:"carrier_restrictions"`
	RequiresAdultSignature  bool     `json:"requires_adult_signature"`
	MaxQuantityPerOrder     *int     `json:"max_quantity_per_order"`
	NoInternationalShipping bool     `json:"no_international_shipping"`
	AgeRequirement          *int     `json:"age_requirement"`
}

// MergeShippingRestrictions folds the restrictions of every rule:
// carriers are unioned, booleans are OR-ed, and the quantity cap is the
// minimum over the rules that set one. The age requirement is the maximum
// over the rules that set one. Every combinator is commutative and
// associative, so rule order never changes the outcome.
func MergeShippingRestrictions(matched []models.ComplianceRule) MergedRestrictions {
	merged := MergedRestrictions{CarrierRestrictions: []string{}}
	carriers := make(map[string]bool)

	for _, rule := range matched {
		if rule.AgeRequirement != nil {
			if merged.AgeRequirement == nil || *rule.AgeRequirement > *merged.AgeRequirement {
				age := *rule.AgeRequirement
				merged.AgeRequirement = &age
			}
		}

		sr := rule.ShippingRestrictions
		if sr == nil {
			continue
		}
		for _, carrier := range sr.CarrierRestrictions {
			carriers[carrier] = true
		}
		merged.RequiresAdultSignature = merged.RequiresAdultSignature || sr.RequiresAdultSignature
		merged.NoInternationalShipping = merged.NoInternationalShipping || sr.NoInternationalShipping
		if sr.MaxQuantityPerOrder != nil {
			if merged.MaxQuantityPerOrder == nil || *sr.MaxQuantityPerOrder < *merged.MaxQuantityPerOrder {
				limit := *sr.MaxQuantityPerOrder
				merged.MaxQuantityPerOrder = &limit
			}
		}
	}

	for carrier := range carriers {
		merged.CarrierRestrictions = append(merged.CarrierRestrictions, carrier)
	}
	sort.Strings(merged.CarrierRestrictions)
	return merged
}

// RestrictingState returns the rules that list state, preserving input order.
func RestrictingState(catalog []models.ComplianceRule, state string) []models.ComplianceRule {
	var matched []models.ComplianceRule
	for _, rule := range catalog {
		if rule.RestrictsState(state) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// DistinctCategories returns each rule category once, in first-seen order.
func DistinctCategories(matched []models.ComplianceRule) []models.Category {
	seen := make(map[models.Category]bool)
	out := []models.Category{}
	for _, rule := range matched {
		if seen[rule.Category] {
			continue
		}
		seen[rule.Category] = true
		out = append(out, rule.Category)
	}
	return out
}
