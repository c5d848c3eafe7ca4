// internal/models/lab_certificate.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PotencyMap maps a cannabinoid name to its measured percentage.
type PotencyMap map[string]float64

func (p PotencyMap) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *PotencyMap) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// ContaminantResults maps a contaminant panel to its outcome.
type ContaminantResults map[string]ContaminantResult

func (c ContaminantResults) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *ContaminantResults) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// LabCertificate is created once per ingested COA and never updated.
type LabCertificate struct {
	BaseModel
	ProductID          uuid.UUID                   `json:"product_id" gorm:"type:uuid;not null;index"`
	URL                string                      `json:"url" gorm:"type:text;not null"`
	BatchNumber        *string                     `json:"batch_number" gorm:"size:100"`
	Potency            PotencyMap                  `json:"potency" gorm:"type:jsonb"`
	TestedAt           *time.Time                  `json:"tested_at"`
	LabName            *string                     `json:"lab_name" gorm:"size:255"`
	ExpirationDate     *time.Time                  `json:"expiration_date"`
	ContaminantResults ContaminantResults          `json:"contaminant_results" gorm:"type:jsonb"`
	IsValid            bool                        `json:"is_valid" gorm:"not null"`
	ValidationErrors   datatypes.JSONSlice[string] `json:"validation_errors"`
	ParsedByAI         bool                        `json:"parsed_by_ai" gorm:"not null"`
	TextLength         int                         `json:"text_length"`
}
