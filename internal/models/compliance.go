// internal/models/compliance.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ComplianceRule struct {
	BaseModel
	Name                 string                      `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Category             Category                    `json:"category" gorm:"type:varchar(32);not null;index"`
	Keywords             datatypes.JSONSlice[string] `json:"keywords"`
	Action               Action                      `json:"action" gorm:"type:varchar(32);not null"`
	Priority             int                         `json:"priority" gorm:"not null;index"`
	ShippingRestrictions *ShippingRestrictions       `json:"shipping_restrictions,omitempty" gorm:"type:jsonb"`
	AgeRequirement       *int                        `json:"age_requirement,omitempty"`
	RestrictedStates     datatypes.JSONSlice[string] `json:"restricted_states"`
	Description          string                      `json:"description,omitempty" gorm:"type:text"`
	CatalogOrder         int                         `json:"catalog_order" gorm:"not null;index"`
}

// RestrictsState reports whether the rule lists the given state code.
func (r *ComplianceRule) RestrictsState(state string) bool {
	for _, s := range r.RestrictedStates {
		if s == state {
			return true
		}
	}
	return false
}

type ShippingRestrictions struct {
	CarrierRestrictions     []string `json:"carrier_restrictions,omitempty"`
	RequiresAdultSignature  bool     `json:"requires_adult_signature"`
	MaxQuantityPerOrder     *int     `json:"max_quantity_per_order,omitempty" validate:"omitempty,min=1"`
	NoInternationalShipping bool     `json:"no_international_shipping"`
}

func (s ShippingRestrictions) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ShippingRestrictions) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// ProductCompliance links a product to a rule it falls under. The composite
// key makes re-creating an existing association a no-op.
type ProductCompliance struct {
	ProductID        uuid.UUID `json:"product_id" gorm:"type:uuid;primaryKey"`
	ComplianceRuleID uuid.UUID `json:"compliance_rule_id" gorm:"type:uuid;primaryKey"`
	CreatedAt        time.Time `json:"created_at"`
}

// ComplianceAuditLog is a recorded violation. Only the resolution stamp may
// change after creation, and only once.
type ComplianceAuditLog struct {
	BaseModel
	ProductID        *uuid.UUID `json:"product_id" gorm:"type:uuid;index"`
	ComplianceRuleID *uuid.UUID `json:"compliance_rule_id" gorm:"type:uuid;index"`
	ViolationType    string     `json:"violation_type" gorm:"size:64;not null;index"`
	Severity         Severity   `json:"severity" gorm:"type:varchar(16);not null;index"`
	Message          string     `json:"message" gorm:"type:text;not null"`
	Source           string     `json:"source" gorm:"size:64;not null"`
	Details          JSONB      `json:"details,omitempty" gorm:"type:jsonb"`
	ResolvedBy       *string    `json:"resolved_by" gorm:"size:255"`
	ResolvedAt       *time.Time `json:"resolved_at" gorm:"index"`
	ResolutionNotes  *string    `json:"resolution_notes" gorm:"type:text"`
}

func (l *ComplianceAuditLog) Resolved() bool {
	return l.ResolvedAt != nil
}

// AuditLogFilter narrows a violation listing.
type AuditLogFilter struct {
	Page      int
	Limit     int
	Severity  *Severity
	Resolved  *bool
	ProductID *uuid.UUID
}
