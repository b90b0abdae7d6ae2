package models

// Role groups menu permissions and data scopes. IsFilterScopes=false grants the
// holder unrestricted row visibility regardless of any scope assignment.
type Role struct {
	BaseModel

	Name           string `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Status         int    `gorm:"not null" json:"status"`
	IsFilterScopes bool   `gorm:"not null" json:"is_filter_scopes"`
	Remark         string `json:"remark"`

	Users  []User      `gorm:"many2many:user_roles" json:"users,omitempty"`
	Menus  []Menu      `gorm:"many2many:role_menus;constraint:OnDelete:CASCADE" json:"menus,omitempty"`
	Scopes []DataScope `gorm:"many2many:role_data_scopes;constraint:OnDelete:CASCADE" json:"scopes,omitempty"`
}
