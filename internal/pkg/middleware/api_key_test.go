package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/FactFox/app/models"
	"github.com/ManuelReschke/FactFox/app/repository"
	"github.com/ManuelReschke/FactFox/internal/pkg/database"
	"github.com/ManuelReschke/FactFox/internal/pkg/usercontext"
)

func setupMiddlewareTest(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.UserSettings{}))

	database.SetDB(db)
	repository.InitializeFactory(db)
	return db
}

func issueTestKey(t *testing.T, db *gorm.DB, email string) (*models.User, string) {
	t.Helper()

	user, err := models.CreateUser("keyholder", email, "secret-pw")
	require.NoError(t, err)
	require.NoError(t, db.Create(user).Error)

	settings, err := models.GetOrCreateUserSettings(db, user.ID)
	require.NoError(t, err)
	rawKey, err := settings.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Save(settings).Error)
	return user, rawKey
}

func newProtectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", APIKeyAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": usercontext.GetUserID(c)})
	})
	return app
}

func TestAPIKeyAuthAcceptsHeaderAndBearer(t *testing.T) {
	db := setupMiddlewareTest(t)
	user, rawKey := issueTestKey(t, db, "key@example.com")
	app := newProtectedApp()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), fmt.Sprintf(`"user_id":%d`, user.ID))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", rawKey))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyAuthRejectsMissingAndInvalidKey(t *testing.T) {
	setupMiddlewareTest(t)
	app := newProtectedApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-API-Key", "ffx_definitely-wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestOptionalAPIKeyAuth(t *testing.T) {
	db := setupMiddlewareTest(t)
	_, rawKey := issueTestKey(t, db, "optional@example.com")

	app := fiber.New()
	app.Get("/quota", OptionalAPIKeyAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"logged_in": usercontext.GetUserContext(c).IsLoggedIn})
	})

	// anonymous requests pass through without a user context
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/quota", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"logged_in":false`)

	// a valid key resolves the user
	req := httptest.NewRequest(http.MethodGet, "/quota", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"logged_in":true`)

	// a present but invalid key is still rejected
	req = httptest.NewRequest(http.MethodGet, "/quota", nil)
	req.Header.Set("X-API-Key", "ffx_definitely-wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthRejectsRevokedKey(t *testing.T) {
	db := setupMiddlewareTest(t)
	user, rawKey := issueTestKey(t, db, "revoked@example.com")
	app := newProtectedApp()

	settings, err := models.GetOrCreateUserSettings(db, user.ID)
	require.NoError(t, err)
	settings.RevokeAPIKey()
	require.NoError(t, db.Save(settings).Error)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthRejectsInactiveUser(t *testing.T) {
	db := setupMiddlewareTest(t)
	user, rawKey := issueTestKey(t, db, "inactive@example.com")
	app := newProtectedApp()

	require.NoError(t, db.Model(user).Update("status", models.STATUS_DISABLED).Error)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
