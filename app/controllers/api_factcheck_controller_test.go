package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/FactFox/app/models"
	"github.com/ManuelReschke/FactFox/app/repository"
	"github.com/ManuelReschke/FactFox/internal/pkg/cache"
	"github.com/ManuelReschke/FactFox/internal/pkg/database"
	"github.com/ManuelReschke/FactFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/FactFox/internal/pkg/usercontext"
)

var (
	testRedisOnce sync.Once
	testRedis     *miniredis.Miniredis
)

// sharedRedis starts a single miniredis for the package and installs the
// shared client. The job queue singleton captures its client on first use,
// so every test must see the same server.
func sharedRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	testRedisOnce.Do(func() {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to start miniredis: %v", err)
		}
		testRedis = mr
		cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	})
	return testRedis
}

// setupControllerTest wires an in-memory database into the global singletons
// the controllers read from.
func setupControllerTest(t *testing.T) *gorm.DB {
	t.Helper()

	sharedRedis(t).FlushAll()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.UserSettings{},
		&models.FactCheckRequest{},
		&models.DailyQuota{},
		&models.FactCheckStats{},
	))

	database.SetDB(db)
	repository.InitializeFactory(db)
	return db
}

func newFactCheckApp(userCtx *usercontext.UserContext) *fiber.App {
	app := fiber.New()
	if userCtx != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("USER_CONTEXT", *userCtx)
			c.Locals(usercontext.KeyFromProtected, true)
			return c.Next()
		})
	}
	app.Post("/factchecks", HandleCreateFactCheck)
	app.Get("/factchecks/quota", HandleGetFactCheckQuota)
	app.Get("/factchecks/stats", HandleGetFactCheckStats)
	app.Get("/factchecks/:uuid", HandleGetFactCheck)
	app.Get("/factchecks", HandleListFactChecks)
	return app
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func testUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user, err := models.CreateUser("tester", email, "secret-pw")
	require.NoError(t, err)
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCreateFactCheckRequiresAuth(t *testing.T) {
	setupControllerTest(t)
	app := newFactCheckApp(nil)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/factchecks", fiber.Map{"url": "https://example.com/post"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCreateFactCheckRejectsInvalidURL(t *testing.T) {
	db := setupControllerTest(t)
	user := testUser(t, db, "url@example.com")
	app := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/factchecks", fiber.Map{"url": "not a url"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// nothing was consumed for the rejected submission
	remaining, _, err := repository.GetGlobalFactory().GetQuotaRepository().CheckRemaining(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DailyRequestLimit, remaining)
}

func TestCreateFactCheckSubmitsAndReportsRemaining(t *testing.T) {
	db := setupControllerTest(t)
	mr := sharedRedis(t)
	user := testUser(t, db, "submit@example.com")
	app := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/factchecks", fiber.Map{"url": "https://example.com/post"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, models.FACTCHECK_STATUS_PENDING, body["status"])
	// first submission of the day leaves limit-1 slots
	assert.Equal(t, float64(models.DailyRequestLimit-1), body["requests_remaining"])

	var request models.FactCheckRequest
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&request).Error)
	assert.Equal(t, body["id"], request.UUID)
	assert.Equal(t, models.FACTCHECK_STATUS_PENDING, request.Status)

	// the job landed on the queue
	queued, err := mr.List(jobqueue.JobQueueKey)
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	// the submission was counted before the enqueue attempt
	field := models.QuotaDay(time.Now()) + ":submitted"
	assert.Equal(t, "1", mr.HGet("factcheck:counters", field))
}

func TestCreateFactCheckSecondSubmissionRemaining(t *testing.T) {
	db := setupControllerTest(t)
	user := testUser(t, db, "twice@example.com")
	app := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/factchecks", fiber.Map{"url": "https://example.com/post"}), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, float64(models.DailyRequestLimit-1-i), body["requests_remaining"])
	}
}

func TestCreateFactCheckEnqueueFailureMarksFailed(t *testing.T) {
	db := setupControllerTest(t)
	user := testUser(t, db, "enqueue@example.com")

	// Break Redis so enqueueing fails after the row and the quota slot
	// already exist.
	mr := sharedRedis(t)
	mr.SetError("connection lost")
	t.Cleanup(func() { mr.SetError("") })

	app := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/factchecks", fiber.Map{"url": "https://example.com/post"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	// the request row exists and was moved to failed
	var request models.FactCheckRequest
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&request).Error)
	assert.Equal(t, models.FACTCHECK_STATUS_FAILED, request.Status)

	// the quota slot stays spent
	remaining, _, err := repository.GetGlobalFactory().GetQuotaRepository().CheckRemaining(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DailyRequestLimit-1, remaining)
}

func TestGetFactCheckQuotaFreshUser(t *testing.T) {
	db := setupControllerTest(t)
	user := testUser(t, db, "quota@example.com")
	app := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true})

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/factchecks/quota", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(models.DailyRequestLimit), body["limit"])
	assert.Equal(t, float64(models.DailyRequestLimit), body["requests_remaining"])
	assert.Equal(t, true, body["has_access"])
}

func TestGetFactCheckQuotaAnonymous(t *testing.T) {
	setupControllerTest(t)
	app := newFactCheckApp(nil)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/factchecks/quota", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(models.DailyRequestLimit), body["limit"])
	assert.Equal(t, float64(0), body["requests_remaining"])
	assert.Equal(t, false, body["has_access"])
}

func TestGetFactCheckOwnership(t *testing.T) {
	db := setupControllerTest(t)
	owner := testUser(t, db, "owner@example.com")
	other := testUser(t, db, "other@example.com")

	request, err := models.NewFactCheckRequest(owner.ID, "https://example.com/post")
	require.NoError(t, err)
	require.NoError(t, repository.GetGlobalFactory().GetFactCheckRepository().Create(request))

	ownerApp := newFactCheckApp(&usercontext.UserContext{UserID: owner.ID, IsLoggedIn: true})
	resp, err := ownerApp.Test(jsonRequest(t, http.MethodGet, "/factchecks/"+request.UUID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, request.UUID, body["id"])
	assert.Equal(t, models.FACTCHECK_STATUS_PENDING, body["status"])
	assert.NotContains(t, body, "result")
	assert.NotContains(t, body, "authenticity_score")

	// another user cannot tell the request apart from a missing one
	otherApp := newFactCheckApp(&usercontext.UserContext{UserID: other.ID, IsLoggedIn: true})
	resp, err = otherApp.Test(jsonRequest(t, http.MethodGet, "/factchecks/"+request.UUID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = ownerApp.Test(jsonRequest(t, http.MethodGet, "/factchecks/00000000-0000-0000-0000-000000000000", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestListFactChecksReturnsOwnOnly(t *testing.T) {
	db := setupControllerTest(t)
	owner := testUser(t, db, "list@example.com")
	other := testUser(t, db, "noise@example.com")

	repo := repository.GetGlobalFactory().GetFactCheckRepository()
	for _, u := range []string{"https://example.com/a", "https://example.com/b"} {
		request, err := models.NewFactCheckRequest(owner.ID, u)
		require.NoError(t, err)
		require.NoError(t, repo.Create(request))
	}
	foreign, err := models.NewFactCheckRequest(other.ID, "https://example.com/c")
	require.NoError(t, err)
	require.NoError(t, repo.Create(foreign))

	app := newFactCheckApp(&usercontext.UserContext{UserID: owner.ID, IsLoggedIn: true})
	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/factchecks", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])
}

func TestGetFactCheckStatsRequiresAdmin(t *testing.T) {
	db := setupControllerTest(t)
	user := testUser(t, db, "stats@example.com")

	app := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true})
	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/factchecks/stats", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	adminApp := newFactCheckApp(&usercontext.UserContext{UserID: user.ID, IsLoggedIn: true, IsAdmin: true})
	resp, err = adminApp.Test(jsonRequest(t, http.MethodGet, "/factchecks/stats", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(0), body["pending"])
}

func TestSerializeFactCheck(t *testing.T) {
	result := "verified"
	score := 73
	request := &models.FactCheckRequest{
		UUID:              "abc-123",
		URL:               "https://example.com/post",
		Status:            models.FACTCHECK_STATUS_COMPLETED,
		Result:            &result,
		AuthenticityScore: &score,
	}

	out := serializeFactCheck(request)
	assert.Equal(t, "abc-123", out["id"])
	assert.Equal(t, "verified", out["result"])
	assert.Equal(t, 73, out["authenticity_score"])
}
