package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/auth"
	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/datascope"
	"github.com/castellan-io/castellan/internal/handlers"
	"github.com/castellan-io/castellan/internal/middleware"
	"github.com/castellan-io/castellan/internal/models"
	"github.com/castellan-io/castellan/internal/rbac"
	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// Dependencies bundles the shared infrastructure the router composes the
// service and handler graph from.
type Dependencies struct {
	DB       *gorm.DB
	Store    cache.Store
	JWT      *auth.JWTService
	Identity *auth.IdentityService
	Verifier *rbac.Verifier
	Registry *datascope.Registry
	TokenTTL time.Duration

	// EnableMetrics exposes /metrics on the same listener.
	EnableMetrics bool
	// LoginRateLimit caps login attempts per client IP per minute; zero
	// disables the route throttle.
	LoginRateLimit int64
}

// BuildRegistry assembles the data-permission model registry. The registered
// names are the only logical models stored rules may reference.
func BuildRegistry(excludedColumns []string) (*datascope.Registry, error) {
	registry := datascope.NewRegistry(excludedColumns)
	entries := []struct {
		name  string
		model any
	}{
		{"Dept", &models.Dept{}},
		{"User", &models.User{}},
		{"Role", &models.Role{}},
	}
	for _, entry := range entries {
		if err := registry.Register(entry.name, entry.model); err != nil {
			return nil, fmt.Errorf("api: register %s: %w", entry.name, err)
		}
	}
	return registry, nil
}

// NewRouter builds the HTTP surface: ambient middleware, the auth plane and
// the permission-gated admin resources.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	compiler, err := datascope.NewCompiler(deps.Registry)
	if err != nil {
		return nil, err
	}

	authSvc, err := services.NewAuthService(deps.DB, deps.JWT, deps.Store, deps.TokenTTL)
	if err != nil {
		return nil, err
	}
	userSvc, err := services.NewUserService(deps.DB, deps.Identity)
	if err != nil {
		return nil, err
	}
	roleSvc, err := services.NewRoleService(deps.DB, deps.Identity)
	if err != nil {
		return nil, err
	}
	menuSvc, err := services.NewMenuService(deps.DB, deps.Identity)
	if err != nil {
		return nil, err
	}
	deptSvc, err := services.NewDeptService(deps.DB, compiler)
	if err != nil {
		return nil, err
	}
	ruleSvc, err := services.NewDataRuleService(deps.DB, deps.Registry)
	if err != nil {
		return nil, err
	}
	scopeSvc, err := services.NewDataScopeService(deps.DB, deps.Identity)
	if err != nil {
		return nil, err
	}
	auditSvc, err := services.NewAuditService(deps.DB)
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(authSvc, menuSvc)
	userHandler := handlers.NewUserHandler(userSvc)
	roleHandler := handlers.NewRoleHandler(roleSvc)
	menuHandler := handlers.NewMenuHandler(menuSvc)
	deptHandler := handlers.NewDeptHandler(deptSvc)
	ruleHandler := handlers.NewDataRuleHandler(ruleSvc)
	scopeHandler := handlers.NewDataScopeHandler(scopeSvc)
	auditHandler := handlers.NewAuditHandler(auditSvc)

	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		response.Success(c, 200, gin.H{"status": "ok"})
	})
	if deps.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")

	login := api.Group("/auth")
	login.POST("/login",
		middleware.RateLimit(deps.Store, "login", deps.LoginRateLimit, time.Minute),
		authHandler.Login)

	authed := api.Group("")
	authed.Use(
		middleware.RequireAuth(deps.JWT, deps.Identity),
		middleware.Audit(auditSvc),
	)

	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/auth/sidebar", authHandler.Sidebar)

	perm := func(code string) gin.HandlerFunc {
		return middleware.RequirePermission(deps.Verifier, code)
	}

	users := authed.Group("/users")
	users.GET("", perm("sys:user:get"), userHandler.List)
	users.GET("/:id", perm("sys:user:get"), userHandler.Get)
	users.POST("", perm("sys:user:add"), userHandler.Create)
	users.PUT("/:id", perm("sys:user:edit"), userHandler.Update)
	users.PUT("/:id/password", perm("sys:user:edit"), userHandler.UpdatePassword)
	users.PUT("/:id/roles", perm("sys:user:edit"), userHandler.SetRoles)
	users.DELETE("/:id", perm("sys:user:del"), userHandler.Delete)

	roles := authed.Group("/roles")
	roles.GET("", perm("sys:role:get"), roleHandler.List)
	roles.GET("/all", perm("sys:role:get"), roleHandler.GetAll)
	roles.GET("/:id", perm("sys:role:get"), roleHandler.Get)
	roles.POST("", perm("sys:role:add"), roleHandler.Create)
	roles.PUT("/:id", perm("sys:role:edit"), roleHandler.Update)
	roles.PUT("/:id/menus", perm("sys:role:edit"), roleHandler.SetMenus)
	roles.PUT("/:id/scopes", perm("sys:role:edit"), roleHandler.SetScopes)
	roles.DELETE("/:id", perm("sys:role:del"), roleHandler.Delete)

	menus := authed.Group("/menus")
	menus.GET("", perm("sys:menu:get"), menuHandler.Tree)
	menus.GET("/:id", perm("sys:menu:get"), menuHandler.Get)
	menus.POST("", perm("sys:menu:add"), menuHandler.Create)
	menus.PUT("/:id", perm("sys:menu:edit"), menuHandler.Update)
	menus.DELETE("/:id", perm("sys:menu:del"), menuHandler.Delete)

	depts := authed.Group("/depts")
	depts.GET("", perm("sys:dept:get"), deptHandler.List)
	depts.GET("/tree", perm("sys:dept:get"), deptHandler.Tree)
	depts.GET("/:id", perm("sys:dept:get"), deptHandler.Get)
	depts.POST("", perm("sys:dept:add"), deptHandler.Create)
	depts.PUT("/:id", perm("sys:dept:edit"), deptHandler.Update)
	depts.DELETE("/:id", perm("sys:dept:del"), deptHandler.Delete)

	rules := authed.Group("/data-rules")
	rules.GET("", perm("sys:data-rule:get"), ruleHandler.List)
	rules.GET("/all", perm("sys:data-rule:get"), ruleHandler.GetAll)
	rules.GET("/models", perm("sys:data-rule:get"), ruleHandler.Models)
	rules.GET("/models/:name/columns", perm("sys:data-rule:get"), ruleHandler.Columns)
	rules.GET("/:id", perm("sys:data-rule:get"), ruleHandler.Get)
	rules.POST("", perm("sys:data-rule:add"), ruleHandler.Create)
	rules.PUT("/:id", perm("sys:data-rule:edit"), ruleHandler.Update)
	rules.DELETE("/:id", perm("sys:data-rule:del"), ruleHandler.Delete)

	scopes := authed.Group("/data-scopes")
	scopes.GET("", perm("sys:data-scope:get"), scopeHandler.List)
	scopes.GET("/all", perm("sys:data-scope:get"), scopeHandler.GetAll)
	scopes.GET("/:id", perm("sys:data-scope:get"), scopeHandler.Get)
	scopes.GET("/:id/rules", perm("sys:data-scope:get"), scopeHandler.GetRules)
	scopes.POST("", perm("sys:data-scope:add"), scopeHandler.Create)
	scopes.PUT("/:id", perm("sys:data-scope:edit"), scopeHandler.Update)
	scopes.PUT("/:id/rules", perm("sys:data-scope:edit"), scopeHandler.UpdateRules)
	scopes.DELETE("/:id", perm("sys:data-scope:del"), scopeHandler.Delete)

	audit := authed.Group("/audit")
	audit.GET("/operations", perm("sys:role:get"), auditHandler.ListOperations)
	audit.GET("/logins", perm("sys:role:get"), auditHandler.ListLogins)

	return router, nil
}
