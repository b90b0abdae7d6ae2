package models

import "time"

// User describes platform accounts. Roles are preloaded with their menus and
// data scopes whenever the user acts as a request principal.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Nickname string `gorm:"size:64" json:"nickname"`
	Password string `gorm:"size:255;not null" json:"-"`
	Email    string `gorm:"index;size:128" json:"email"`
	Phone    string `gorm:"size:32" json:"phone"`
	Avatar   string `gorm:"size:255" json:"avatar"`

	Status       int  `gorm:"not null;index" json:"status"`
	IsSuperuser  bool `gorm:"default:false" json:"is_superuser"`
	IsStaff      bool `gorm:"default:false" json:"is_staff"`
	IsMultiLogin bool `gorm:"default:false" json:"is_multi_login"`

	DeptID *string `gorm:"type:uuid;index" json:"dept_id"`
	Dept   *Dept   `json:"dept,omitempty"`

	Roles []Role `gorm:"many2many:user_roles;constraint:OnDelete:CASCADE" json:"roles,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:64" json:"last_login_ip"`
}
