package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status values shared by toggleable entities (roles, menus, scopes, users).
const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

// BaseModel provides shared fields for all persistent models.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
