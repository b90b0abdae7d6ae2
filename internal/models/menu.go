package models

// Menu types mirror the admin frontend routing model.
const (
	MenuTypeDirectory = 0
	MenuTypeMenu      = 1
	MenuTypeButton    = 2
	MenuTypeEmbedded  = 3
	MenuTypeLink      = 4
)

// Menu is a node of the navigation tree. Perms carries the permission code
// (module:resource:action) granted to roles holding this menu; button-type
// entries exist purely to carry codes.
type Menu struct {
	BaseModel

	Title     string  `gorm:"size:64;not null" json:"title"`
	Name      string  `gorm:"size:64;not null" json:"name"`
	Path      string  `gorm:"size:255" json:"path"`
	Sort      int     `gorm:"default:0" json:"sort"`
	Icon      string  `gorm:"size:128" json:"icon"`
	Type      int     `gorm:"default:0" json:"type"`
	Component string  `gorm:"size:255" json:"component"`
	Perms     string  `gorm:"size:128" json:"perms"`
	Status    int     `gorm:"not null" json:"status"`
	Display   bool    `gorm:"not null" json:"display"`
	Cache     bool    `gorm:"not null" json:"cache"`
	Link      string  `json:"link"`
	Remark    string  `json:"remark"`
	ParentID  *string `gorm:"type:uuid;index" json:"parent_id"`

	Children []Menu `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	Roles    []Role `gorm:"many2many:role_menus" json:"roles,omitempty"`
}
