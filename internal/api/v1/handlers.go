package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/FactFox/app/controllers"
	"github.com/ManuelReschke/FactFox/internal/pkg/middleware"
)

// Pong is the ping endpoint response
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostRegister creates an account and returns its first API key
func (s *APIServer) PostRegister(c *fiber.Ctx) error {
	return controllers.HandleAPIRegister(c)
}

// PostLogin verifies credentials and rotates the account API key
func (s *APIServer) PostLogin(c *fiber.Ctx) error {
	return controllers.HandleAPILogin(c)
}

// GetUserProfile returns account information for the authenticated user (API key).
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// PostFactCheck submits a URL for analysis
func (s *APIServer) PostFactCheck(c *fiber.Ctx) error {
	return controllers.HandleCreateFactCheck(c)
}

// GetFactCheckQuota reports today's remaining submissions
func (s *APIServer) GetFactCheckQuota(c *fiber.Ctx) error {
	return controllers.HandleGetFactCheckQuota(c)
}

// GetFactCheck returns a single request by UUID
func (s *APIServer) GetFactCheck(c *fiber.Ctx) error {
	return controllers.HandleGetFactCheck(c)
}

// GetFactChecks lists the user's requests, newest first
func (s *APIServer) GetFactChecks(c *fiber.Ctx) error {
	return controllers.HandleListFactChecks(c)
}

// GetFactCheckStats returns pipeline aggregates (admin only)
func (s *APIServer) GetFactCheckStats(c *fiber.Ctx) error {
	return controllers.HandleGetFactCheckStats(c)
}

// RegisterHandlers wires the v1 routes onto the given router group.
// Everything below /factchecks and /user requires an API key, except the
// quota endpoint which degrades to a zero allowance without one.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	auth := router.Group("/auth")
	auth.Post("/register", s.PostRegister)
	auth.Post("/login", s.PostLogin)

	// Quota is readable without a key; anonymous callers see a zero allowance.
	router.Get("/factchecks/quota", middleware.OptionalAPIKeyAuthMiddleware(), s.GetFactCheckQuota)

	protected := router.Group("", middleware.APIKeyAuthMiddleware())
	protected.Get("/user/profile", s.GetUserProfile)

	protected.Post("/factchecks", s.PostFactCheck)
	protected.Get("/factchecks/stats", s.GetFactCheckStats)
	protected.Get("/factchecks/:uuid", s.GetFactCheck)
	protected.Get("/factchecks", s.GetFactChecks)
}
