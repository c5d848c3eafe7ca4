// internal/models/zip_code.go
package models

// ZipCode is a row of the geographic reference data used for eligibility.
type ZipCode struct {
	Zip    string `json:"zip" gorm:"primaryKey;size:5"`
	State  string `json:"state" gorm:"size:2;not null;index"`
	City   string `json:"city" gorm:"size:100"`
	County string `json:"county" gorm:"size:100"`
}
