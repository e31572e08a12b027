package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/FactFox/app/models"
	"github.com/ManuelReschke/FactFox/internal/pkg/usercontext"
)

// requireUser resolves the authenticated user context or writes a 401.
// The bool reports whether the caller may continue.
func requireUser(c *fiber.Ctx) (usercontext.UserContext, bool) {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
		return userCtx, false
	}
	return userCtx, true
}

// serializeFactCheck renders the public JSON shape of a request
func serializeFactCheck(r *models.FactCheckRequest) fiber.Map {
	out := fiber.Map{
		"id":         r.UUID,
		"url":        r.URL,
		"status":     r.Status,
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Result != nil {
		out["result"] = *r.Result
	}
	if r.AuthenticityScore != nil {
		out["authenticity_score"] = *r.AuthenticityScore
	}
	return out
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
