package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FactFox/app/models"
	"github.com/ManuelReschke/FactFox/app/repository"
	"github.com/ManuelReschke/FactFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/FactFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/FactFox/internal/pkg/usercontext"
)

// HandleCreateFactCheck accepts a URL for analysis.
// Request: JSON { "url": "https://..." }
// Response: 201 { id, status, requests_remaining }
//
// The quota slot is consumed before the request row exists, so a burst of
// submissions can never exceed the daily cap. A consumed slot is not
// refunded when a later step fails.
func HandleCreateFactCheck(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	request, err := models.NewFactCheckRequest(userCtx.UserID, req.URL)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "A valid http(s) URL is required"})
	}

	repos := repository.GetGlobalFactory().GetRepositories()

	count, err := repos.Quota.ConsumeOne(userCtx.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":              "quota_exceeded",
				"message":            "Daily request limit reached",
				"limit":              models.DailyRequestLimit,
				"requests_remaining": 0,
			})
		}
		fiberlog.Errorf("factcheck submit: quota consume failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check quota"})
	}

	remaining := models.DailyRequestLimit - count
	if remaining < 0 {
		remaining = 0
	}

	if err := repos.FactCheck.Create(request); err != nil {
		fiberlog.Errorf("factcheck submit: create failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create request"})
	}
	counter.AddSubmitted()

	payload := jobqueue.FactCheckJobPayload{RequestUUID: request.UUID}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeFactCheck, payload.ToMap()); err != nil {
		fiberlog.Errorf("factcheck submit: enqueue failed for request %s: %v", request.UUID, err)
		if _, markErr := repos.FactCheck.MarkFailed(request.UUID, "failed to schedule analysis"); markErr != nil {
			fiberlog.Errorf("factcheck submit: failed to mark request %s failed: %v", request.UUID, markErr)
		}
		counter.AddFailed()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to schedule analysis"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":                 request.UUID,
		"status":             request.Status,
		"requests_remaining": remaining,
	})
}

// HandleGetFactCheckQuota reports today's remaining submissions. Anonymous
// callers get a zero allowance instead of an auth error so clients can render
// the limit without a key.
func HandleGetFactCheckQuota(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.JSON(fiber.Map{
			"limit":              models.DailyRequestLimit,
			"requests_remaining": 0,
			"has_access":         false,
		})
	}

	remaining, hasAccess, err := repository.GetGlobalFactory().GetQuotaRepository().CheckRemaining(userCtx.UserID)
	if err != nil {
		fiberlog.Errorf("factcheck quota: check failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check quota"})
	}

	return c.JSON(fiber.Map{
		"limit":              models.DailyRequestLimit,
		"requests_remaining": remaining,
		"has_access":         hasAccess,
	})
}

// HandleGetFactCheck returns a single request, scoped to its owner.
// Requests owned by other users are indistinguishable from missing ones.
func HandleGetFactCheck(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	uuid := c.Params("uuid")
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "uuid missing"})
	}

	request, err := repository.GetGlobalFactory().GetFactCheckRepository().GetByUUIDForUser(uuid, userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Request not found"})
		}
		fiberlog.Errorf("factcheck get: lookup failed for %s: %v", uuid, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load request"})
	}

	return c.JSON(serializeFactCheck(request))
}

// HandleListFactChecks returns the user's submissions, newest first
func HandleListFactChecks(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit > 200 {
		limit = 200
	}

	requests, err := repository.GetGlobalFactory().GetFactCheckRepository().ListByUser(userCtx.UserID, limit)
	if err != nil {
		fiberlog.Errorf("factcheck list: query failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load requests"})
	}

	items := make([]fiber.Map, 0, len(requests))
	for i := range requests {
		items = append(items, serializeFactCheck(&requests[i]))
	}

	return c.JSON(fiber.Map{"factchecks": items, "count": len(items)})
}

// HandleGetFactCheckStats returns pipeline aggregates for admins: per-day
// submitted/completed/failed counters plus the current pending backlog.
func HandleGetFactCheckStats(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}
	if !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin access required"})
	}

	days, _ := strconv.Atoi(c.Query("days", "7"))
	if days <= 0 || days > 90 {
		days = 7
	}

	repos := repository.GetGlobalFactory().GetRepositories()

	stats, err := repos.Stats.GetRecent(days)
	if err != nil {
		fiberlog.Errorf("factcheck stats: query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	pending, err := repos.FactCheck.CountByStatus(models.FACTCHECK_STATUS_PENDING)
	if err != nil {
		fiberlog.Errorf("factcheck stats: pending count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	// Queue depths are best-effort; an unreachable Redis reports zeros.
	queue := jobqueue.GetManager().GetQueue()
	queued, err := queue.GetQueueSize(c.Context())
	if err != nil {
		fiberlog.Warnf("factcheck stats: queue size unavailable: %v", err)
	}
	processing, err := queue.GetProcessingSize(c.Context())
	if err != nil {
		fiberlog.Warnf("factcheck stats: processing size unavailable: %v", err)
	}

	return c.JSON(fiber.Map{
		"days":    stats,
		"pending": pending,
		"queue": fiber.Map{
			"queued":     queued,
			"processing": processing,
		},
	})
}
