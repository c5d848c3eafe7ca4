// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the primary key in Go so the schema does not depend on
// a database-side uuid generator.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	return scanJSON(value, j)
}

// scanJSON decodes a JSON column that drivers hand back as []byte or string.
func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}

// Enums
type Category string

const (
	CategoryTHCA         Category = "thca"
	CategoryKratom       Category = "kratom"
	CategorySevenHydroxy Category = "seven_hydroxy"
	CategoryNicotine     Category = "nicotine"
	CategoryTobacco      Category = "tobacco"
	CategoryCBD          Category = "cbd"
	CategoryOther        Category = "other"
)

// AllCategories is the closed set of regulatory categories, in display order.
var AllCategories = []Category{
	CategoryTHCA,
	CategoryKratom,
	CategorySevenHydroxy,
	CategoryNicotine,
	CategoryTobacco,
	CategoryCBD,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionHide                Action = "hide"
	ActionRestrict            Action = "restrict"
	ActionFlag                Action = "flag"
	ActionRequireVerification Action = "require_verification"
)

// Hides reports whether the action removes a product from general catalog visibility.
func (a Action) Hides() bool {
	return a == ActionHide || a == ActionRestrict
}

func (a Action) Valid() bool {
	switch a {
	case ActionHide, ActionRestrict, ActionFlag, ActionRequireVerification:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type ContaminantResult string

const (
	ContaminantPass      ContaminantResult = "pass"
	ContaminantFail      ContaminantResult = "fail"
	ContaminantNotTested ContaminantResult = "not_tested"
)

// Contaminant panels reported on a certificate of analysis.
const (
	PanelPesticides       = "pesticides"
	PanelHeavyMetals      = "heavy_metals"
	PanelMicrobials       = "microbials"
	PanelResidualSolvents = "residual_solvents"
)

func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }

func BoolPtr(b bool) *bool { return &b }
