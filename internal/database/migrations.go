package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/models"
	"github.com/castellan-io/castellan/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Menu{},
		&models.Dept{},
		&models.DataRule{},
		&models.DataScope{},
		&models.AuditLog{},
		&models.LoginLog{},
		&models.CacheEntry{},
	)
}

// DefaultAdminPassword is the initial superuser password. Deployments are
// expected to rotate it on first login.
const DefaultAdminPassword = "castellan"

// SeedData populates the default department, role and superuser account plus
// the admin menu tree carrying the built-in permission codes.
func SeedData(db *gorm.DB) error {
	dept := models.Dept{
		BaseModel: models.BaseModel{ID: "dept-head-office"},
		Name:      "Head Office",
		Status:    models.StatusEnabled,
	}
	if err := db.Where(models.Dept{BaseModel: models.BaseModel{ID: dept.ID}}).
		Attrs(dept).FirstOrCreate(&models.Dept{}).Error; err != nil {
		return err
	}

	if err := seedMenus(db); err != nil {
		return err
	}

	role := models.Role{
		BaseModel:      models.BaseModel{ID: "role-admin"},
		Name:           "Administrator",
		Status:         models.StatusEnabled,
		IsFilterScopes: true,
		Remark:         "Built-in administrator role",
	}
	if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).
		Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
		return err
	}

	var adminCount int64
	if err := db.Model(&models.User{}).Where("username = ?", "admin").Count(&adminCount).Error; err != nil {
		return err
	}
	if adminCount == 0 {
		hash, err := crypto.HashPassword(DefaultAdminPassword)
		if err != nil {
			return fmt.Errorf("hash default password: %w", err)
		}
		deptID := dept.ID
		admin := models.User{
			Username:    "admin",
			Nickname:    "Administrator",
			Password:    hash,
			Status:      models.StatusEnabled,
			IsSuperuser: true,
			IsStaff:     true,
			DeptID:      &deptID,
		}
		if err := db.Create(&admin).Error; err != nil {
			return err
		}
		if err := db.Model(&admin).Association("Roles").Append(&models.Role{BaseModel: models.BaseModel{ID: role.ID}}); err != nil {
			return err
		}
	}

	return nil
}

func seedMenus(db *gorm.DB) error {
	systemID := "menu-system"
	system := models.Menu{
		BaseModel: models.BaseModel{ID: systemID},
		Title:     "System",
		Name:      "System",
		Path:      "/system",
		Type:      models.MenuTypeDirectory,
		Status:    models.StatusEnabled,
		Display:   true,
		Cache:     true,
	}
	if err := db.Where(models.Menu{BaseModel: models.BaseModel{ID: systemID}}).
		Attrs(system).FirstOrCreate(&models.Menu{}).Error; err != nil {
		return err
	}

	resources := []struct {
		slug  string
		title string
	}{
		{"user", "Users"},
		{"role", "Roles"},
		{"menu", "Menus"},
		{"dept", "Departments"},
		{"data-rule", "Data Rules"},
		{"data-scope", "Data Scopes"},
	}
	actions := []string{"get", "add", "edit", "del"}

	for _, res := range resources {
		menuID := "menu-" + res.slug
		menu := models.Menu{
			BaseModel: models.BaseModel{ID: menuID},
			Title:     res.title,
			Name:      res.title,
			Path:      "/system/" + res.slug,
			Type:      models.MenuTypeMenu,
			Status:    models.StatusEnabled,
			Display:   true,
			Cache:     true,
			ParentID:  &systemID,
		}
		if err := db.Where(models.Menu{BaseModel: models.BaseModel{ID: menuID}}).
			Attrs(menu).FirstOrCreate(&models.Menu{}).Error; err != nil {
			return err
		}

		for _, action := range actions {
			buttonID := fmt.Sprintf("menu-%s-%s", res.slug, action)
			button := models.Menu{
				BaseModel: models.BaseModel{ID: buttonID},
				Title:     res.title + " " + action,
				Name:      res.title + "-" + action,
				Type:      models.MenuTypeButton,
				Perms:     fmt.Sprintf("sys:%s:%s", res.slug, action),
				Status:    models.StatusEnabled,
				Display:   false,
				ParentID:  &menuID,
			}
			if err := db.Where(models.Menu{BaseModel: models.BaseModel{ID: buttonID}}).
				Attrs(button).FirstOrCreate(&models.Menu{}).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
