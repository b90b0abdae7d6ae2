package models

// Dept is a node of the department hierarchy. It is also the canonical target
// of data-permission rules (registered as logical model "Dept").
type Dept struct {
	BaseModel

	Name     string  `gorm:"size:64;not null" json:"name"`
	Sort     int     `gorm:"default:0" json:"sort"`
	Leader   string  `gorm:"size:64" json:"leader"`
	Phone    string  `gorm:"size:32" json:"phone"`
	Email    string  `gorm:"size:128" json:"email"`
	Status   int     `gorm:"not null" json:"status"`
	ParentID *string `gorm:"type:uuid;index" json:"parent_id"`

	Children []Dept `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	Users    []User `gorm:"foreignKey:DeptID" json:"users,omitempty"`
}
