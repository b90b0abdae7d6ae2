package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/auth"
	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/database/testutil"
	"github.com/castellan-io/castellan/internal/models"
	"github.com/castellan-io/castellan/internal/rbac"
	"github.com/castellan-io/castellan/pkg/crypto"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwt, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "castellan"})
	require.NoError(t, err)

	identity, err := auth.NewIdentityService(db, cache.NewDatabaseStore(db), time.Minute)
	require.NoError(t, err)

	registry, err := BuildRegistry([]string{"password", "created_at", "updated_at"})
	require.NoError(t, err)

	router, err := NewRouter(Dependencies{
		DB:       db,
		Store:    cache.NewDatabaseStore(db),
		JWT:      jwt,
		Identity: identity,
		Verifier: rbac.NewVerifier(true),
		Registry: registry,
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return router, db
}

func login(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func doRequest(router *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// seedViewer creates a non-superuser account whose single role grants only the
// department read code.
func seedViewer(t *testing.T, db *gorm.DB) {
	t.Helper()

	var menu models.Menu
	require.NoError(t, db.Take(&menu, "perms = ?", "sys:dept:get").Error)

	role := models.Role{Name: "dept-viewer", Status: models.StatusEnabled, IsFilterScopes: true}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Model(&role).Association("Menus").Append(&menu))

	hash, err := crypto.HashPassword("viewer-pass")
	require.NoError(t, err)
	user := models.User{Username: "viewer", Password: hash, Status: models.StatusEnabled}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Model(&user).Association("Roles").Append(&role))
}

func TestRouterRejectsAnonymousAccess(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/depts", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterSuperuserPassesEveryGate(t *testing.T) {
	router, _ := newTestRouter(t)
	token := login(t, router, "admin", database.DefaultAdminPassword)

	rec := doRequest(router, http.MethodGet, "/api/depts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/api/data-scopes", token, map[string]any{
		"name":   "engineering",
		"status": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouterEnforcesPermissionCodes(t *testing.T) {
	router, db := newTestRouter(t)
	seedViewer(t, db)
	token := login(t, router, "viewer", "viewer-pass")

	rec := doRequest(router, http.MethodGet, "/api/depts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/api/depts", token, map[string]any{
		"name":   "skunkworks",
		"status": 1,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterMutationsAreAudited(t *testing.T) {
	router, db := newTestRouter(t)
	token := login(t, router, "admin", database.DefaultAdminPassword)

	rec := doRequest(router, http.MethodPost, "/api/data-rules", token, map[string]any{
		"name":       "own department",
		"model":      "Dept",
		"column":     "id",
		"operator":   0,
		"expression": 0,
		"value":      "dept-head-office",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry models.AuditLog
	require.NoError(t, db.Take(&entry, "path = ?", "/api/data-rules").Error)
	require.Equal(t, "sys:data-rule:add", entry.Permission)
	require.Equal(t, "admin", entry.Username)
	require.Equal(t, http.StatusCreated, entry.Status)
}

func TestRouterScopedDeptListing(t *testing.T) {
	router, db := newTestRouter(t)
	seedViewer(t, db)

	// A second department the viewer's scope will exclude.
	require.NoError(t, db.Create(&models.Dept{Name: "Skunkworks", Status: models.StatusEnabled}).Error)

	rule := models.DataRule{
		Name:       "head office only",
		Model:      "Dept",
		Column:     "id",
		Operator:   models.RuleOperatorAnd,
		Expression: models.RuleExpressionEq,
		Value:      "dept-head-office",
	}
	require.NoError(t, db.Create(&rule).Error)

	scope := models.DataScope{Name: "head office", Status: models.StatusEnabled}
	require.NoError(t, db.Create(&scope).Error)
	require.NoError(t, db.Model(&scope).Association("Rules").Append(&rule))

	var role models.Role
	require.NoError(t, db.Take(&role, "name = ?", "dept-viewer").Error)
	require.NoError(t, db.Model(&role).Association("Scopes").Append(&scope))

	token := login(t, router, "viewer", "viewer-pass")
	rec := doRequest(router, http.MethodGet, "/api/depts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []models.Dept `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "dept-head-office", resp.Data[0].ID)

	admin := login(t, router, "admin", database.DefaultAdminPassword)
	rec = doRequest(router, http.MethodGet, "/api/depts", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}
