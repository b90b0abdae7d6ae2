package models

import "gorm.io/datatypes"

// AuditLog records one mutating API operation together with the permission code
// that authorised it.
type AuditLog struct {
	BaseModel

	UserID     string         `gorm:"type:uuid;index" json:"user_id"`
	Username   string         `gorm:"size:64" json:"username"`
	Method     string         `gorm:"size:16" json:"method"`
	Path       string         `gorm:"size:255" json:"path"`
	Permission string         `gorm:"size:128;index" json:"permission"`
	Status     int            `json:"status"`
	IPAddress  string         `gorm:"size:64" json:"ip_address"`
	UserAgent  string         `gorm:"size:255" json:"user_agent"`
	LatencyMS  int64          `json:"latency_ms"`
	Detail     datatypes.JSON `json:"detail,omitempty"`
}

// LoginLog records authentication attempts for audit purposes.
type LoginLog struct {
	BaseModel

	UserID    string `gorm:"type:uuid;index" json:"user_id"`
	Username  string `gorm:"size:64;index" json:"username"`
	Success   bool   `json:"success"`
	IPAddress string `gorm:"size:64" json:"ip_address"`
	UserAgent string `gorm:"size:255" json:"user_agent"`
	Message   string `gorm:"size:255" json:"message"`
}
