// internal/models/product.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

const NicotineHiddenReason = "Nicotine product - restricted from main site"

// Product is the compliance-relevant slice of a catalog product. The catalog
// owns creation and deletion; this service only reads and patches flags.
type Product struct {
	BaseModel
	Name                 string                        `json:"name" gorm:"size:255;not null"`
	Description          string                        `json:"description" gorm:"type:text"`
	NicotineProduct      bool                          `json:"nicotine_product" gorm:"not null"`
	TobaccoProduct       bool                          `json:"tobacco_product" gorm:"not null"`
	RequiresLabTest      bool                          `json:"requires_lab_test" gorm:"not null"`
	VisibleOnMainSite    bool                          `json:"visible_on_main_site" gorm:"not null;index"`
	HiddenReason         *string                       `json:"hidden_reason" gorm:"type:text"`
	BatchNumber          *string                       `json:"batch_number" gorm:"size:100"`
	ExpirationDate       *time.Time                    `json:"expiration_date"`
	LabTestURL           *string                       `json:"lab_test_url" gorm:"type:text"`
	ClassifiedCategories datatypes.JSONSlice[Category] `json:"classified_categories"`
	LastClassifiedAt     *time.Time                    `json:"last_classified_at"`
}

// Hide moves the product into the Hidden state. Hiding an already hidden
// product keeps the original reason unless none was recorded.
func (p *Product) Hide(reason string) {
	if !p.VisibleOnMainSite && p.HiddenReason != nil && *p.HiddenReason != "" {
		return
	}
	p.VisibleOnMainSite = false
	p.HiddenReason = &reason
}

// Reveal is the manual Hidden -> Visible transition. It is refused while the
// product is still flagged as nicotine.
func (p *Product) Reveal() bool {
	if p.NicotineProduct {
		return false
	}
	p.VisibleOnMainSite = true
	p.HiddenReason = nil
	return true
}

// ApplyClassificationVisibility applies a classification outcome without ever
// re-revealing a hidden product. A non-empty reason is recorded even when the
// product stays visible.
func (p *Product) ApplyClassificationVisibility(nicotine bool, hiddenReason *string) {
	p.NicotineProduct = nicotine
	switch {
	case nicotine:
		reason := NicotineHiddenReason
		if hiddenReason != nil && *hiddenReason != "" {
			reason = *hiddenReason
		}
		p.Hide(reason)
	case hiddenReason != nil && *hiddenReason != "":
		p.HiddenReason = hiddenReason
	}
}

// ProductPatch lists the fields this service is allowed to write back to the
// catalog. Nil fields are left untouched.
type ProductPatch struct {
	NicotineProduct      *bool
	TobaccoProduct       *bool
	RequiresLabTest      *bool
	VisibleOnMainSite    *bool
	HiddenReason         *string
	ClearHiddenReason    bool
	BatchNumber          *string
	ExpirationDate       *time.Time
	LabTestURL           *string
	ClassifiedCategories []Category
	LastClassifiedAt     *time.Time
}

// Updates converts the patch into a gorm update map.
func (p ProductPatch) Updates() map[string]interface{} {
	updates := make(map[string]interface{})
	if p.NicotineProduct != nil {
		updates["nicotine_product"] = *p.NicotineProduct
	}
	if p.TobaccoProduct != nil {
		updates["tobacco_product"] = *p.TobaccoProduct
	}
	if p.RequiresLabTest != nil {
		updates["requires_lab_test"] = *p.RequiresLabTest
	}
	if p.VisibleOnMainSite != nil {
		updates["visible_on_main_site"] = *p.VisibleOnMainSite
	}
	if p.HiddenReason != nil {
		updates["hidden_reason"] = *p.HiddenReason
	} else if p.ClearHiddenReason {
		updates["hidden_reason"] = nil
	}
	if p.BatchNumber != nil {
		updates["batch_number"] = *p.BatchNumber
	}
	if p.ExpirationDate != nil {
		updates["expiration_date"] = *p.ExpirationDate
	}
	if p.LabTestURL != nil {
		updates["lab_test_url"] = *p.LabTestURL
	}
	if p.ClassifiedCategories != nil {
		updates["classified_categories"] = datatypes.JSONSlice[Category](p.ClassifiedCategories)
	}
	if p.LastClassifiedAt != nil {
		updates["last_classified_at"] = *p.LastClassifiedAt
	}
	return updates
}

// Apply copies the patch onto an in-memory product.
func (p ProductPatch) Apply(product *Product) {
	if p.NicotineProduct != nil {
		product.NicotineProduct = *p.NicotineProduct
	}
	if p.TobaccoProduct != nil {
		product.TobaccoProduct = *p.TobaccoProduct
	}
	if p.RequiresLabTest != nil {
		product.RequiresLabTest = *p.RequiresLabTest
	}
	if p.VisibleOnMainSite != nil {
		product.VisibleOnMainSite = *p.VisibleOnMainSite
	}
	if p.HiddenReason != nil {
		reason := *p.HiddenReason
		product.HiddenReason = &reason
	} else if p.ClearHiddenReason {
		product.HiddenReason = nil
	}
	if p.BatchNumber != nil {
		batch := *p.BatchNumber
		product.BatchNumber = &batch
	}
	if p.ExpirationDate != nil {
		exp := *p.ExpirationDate
		product.ExpirationDate = &exp
	}
	if p.LabTestURL != nil {
		url := *p.LabTestURL
		product.LabTestURL = &url
	}
	if p.ClassifiedCategories != nil {
		product.ClassifiedCategories = append(datatypes.JSONSlice[Category]{}, p.ClassifiedCategories...)
	}
	if p.LastClassifiedAt != nil {
		at := *p.LastClassifiedAt
		product.LastClassifiedAt = &at
	}
}

// HasCategory reports whether the most recent classification includes c.
func (p *Product) HasCategory(c Category) bool {
	for _, existing := range p.ClassifiedCategories {
		if existing == c {
			return true
		}
	}
	return false
}
