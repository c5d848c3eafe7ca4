// internal/models/admin.go
package models

import (
	"github.com/google/uuid"
)

// AuditLog is the request-level trail of administrative mutations.
type AuditLog struct {
	BaseModel
	UserID       *string    `json:"user_id" gorm:"size:255;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	StatusCode   int        `json:"status_code"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}
