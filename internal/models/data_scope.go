package models

// DataScope is a named, toggleable collection of data rules. Disabled scopes
// contribute no rules during aggregation even when assigned to roles.
type DataScope struct {
	BaseModel

	Name   string `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Status int    `gorm:"not null" json:"status"`

	Rules []DataRule `gorm:"many2many:data_scope_rules;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
	Roles []Role     `gorm:"many2many:role_data_scopes;constraint:OnDelete:CASCADE" json:"roles,omitempty"`
}

// Enabled reports whether the scope participates in rule aggregation.
func (s *DataScope) Enabled() bool {
	return s.Status == StatusEnabled
}
