package rules

import "github.com/greenleaf/compliance-engine/internal/models"

// DefaultRules is the starter catalog written into an empty store at
// initialization. Operators edit the stored copy, so nothing reads this list
// at evaluation time.
func DefaultRules() []models.ComplianceRule {
	return []models.ComplianceRule{
		{
			Name:     "nicotine_obvious",
			Category: models.CategoryNicotine,
			Keywords: []string{
				"nicotine", "vape", "e-liquid", "eliquid", "e-juice", "ejuice",
				"salt nic", "nic salt", "disposable pod", "zyn", "nicotine pouch",
			},
			Action:   models.ActionHide,
			Priority: 100,
			ShippingRestrictions: &models.ShippingRestrictions{
				CarrierRestrictions:     []string{"USPS"},
				RequiresAdultSignature:  true,
				NoInternationalShipping: true,
			},
			AgeRequirement:   models.IntPtr(21),
			RestrictedStates: []string{"UT", "ME", "OR", "VT"},
			Description:      "Nicotine and vapor products are hidden from the main site and ship adult-signature only.",
		},
		{
			Name:     "tobacco_products",
			Category: models.CategoryTobacco,
			Keywords: []string{"tobacco", "cigarette", "cigar", "cigarillo", "snuff", "chewing tobacco", "hookah tobacco", "shisha"},
			Action:   models.ActionHide,
			Priority: 95,
			ShippingRestrictions: &models.ShippingRestrictions{
				CarrierRestrictions:     []string{"USPS"},
				RequiresAdultSignature:  true,
				NoInternationalShipping: true,
			},
			AgeRequirement:   models.IntPtr(21),
			RestrictedStates: []string{"UT", "ME", "OR"},
			Description:      "Tobacco products fall under the PACT Act and are never listed publicly.",
		},
		{
			Name:     "seven_hydroxy",
			Category: models.CategorySevenHydroxy,
			Keywords: []string{"7-hydroxy", "7-oh", "7oh", "7-hydroxymitragynine", "7 hydroxy"},
			Action:   models.ActionRestrict,
			Priority: 90,
			ShippingRestrictions: &models.ShippingRestrictions{
				RequiresAdultSignature:  true,
				MaxQuantityPerOrder:     models.IntPtr(2),
				NoInternationalShipping: true,
			},
			AgeRequirement:   models.IntPtr(21),
			RestrictedStates: []string{"AL", "AR", "IN", "RI", "VT", "WI", "FL", "UT"},
			Description:      "Concentrated 7-hydroxymitragynine products.",
		},
		{
			Name:     "kratom",
			Category: models.CategoryKratom,
			Keywords: []string{"kratom", "mitragyna", "mitragynine", "maeng da", "kava kratom"},
			Action:   models.ActionRestrict,
			Priority: 80,
			ShippingRestrictions: &models.ShippingRestrictions{
				MaxQuantityPerOrder:     models.IntPtr(5),
				NoInternationalShipping: true,
			},
			AgeRequirement:   models.IntPtr(21),
			RestrictedStates: []string{"AL", "AR", "IN", "RI", "VT", "WI", "UT"},
			Description:      "Kratom leaf, powder and extract products.",
		},
		{
			Name:     "thca_flower",
			Category: models.CategoryTHCA,
			Keywords: []string{"thca", "thc-a", "delta-9", "delta 9", "delta-8", "delta 8", "hhc", "thcp"},
			Action:   models.ActionRequireVerification,
			Priority: 70,
			ShippingRestrictions: &models.ShippingRestrictions{
				CarrierRestrictions:     []string{"USPS"},
				RequiresAdultSignature:  true,
				NoInternationalShipping: true,
			},
			AgeRequirement:   models.IntPtr(21),
			RestrictedStates: []string{"ID", "KS", "NE", "AR", "MN", "OR", "RI", "HI"},
			Description:      "Hemp-derived THCA and intoxicating cannabinoids require a valid COA.",
		},
		{
			Name:     "cbd_products",
			Category: models.CategoryCBD,
			Keywords: []string{"cbd", "cannabidiol", "full spectrum", "broad spectrum", "hemp extract"},
			Action:   models.ActionFlag,
			Priority: 40,
			ShippingRestrictions: &models.ShippingRestrictions{
				NoInternationalShipping: true,
			},
			AgeRequirement:   models.IntPtr(18),
			RestrictedStates: []string{"ID"},
			Description:      "CBD products ship domestically only.",
		},
		{
			Name:     "glass_paraphernalia",
			Category: models.CategoryOther,
			Keywords: []string{"bong", "water pipe", "dab rig", "bubbler", "grinder", "rolling papers", "hand pipe"},
			Action:   models.ActionFlag,
			Priority: 20,
			ShippingRestrictions: &models.ShippingRestrictions{
				CarrierRestrictions: []string{"USPS"},
			},
			AgeRequirement: models.IntPtr(21),
			Description:    "Glass and smoking accessories.",
		},
	}
}
