package handlers

import (
	"time"

	"cohort/internal/database"
	"cohort/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles liveness and readiness checks.
type HealthHandler struct {
	mongodb      *database.MongoDB
	redisService *services.RedisService
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(mongodb *database.MongoDB, redisService *services.RedisService) *HealthHandler {
	return &HealthHandler{
		mongodb:      mongodb,
		redisService: redisService,
	}
}

// Handle responds with liveness status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Ready checks the backing stores
// GET /health/ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true

	if err := h.mongodb.Ping(c.Context()); err != nil {
		checks["mongodb"] = err.Error()
		healthy = false
	} else {
		checks["mongodb"] = "ok"
	}

	if h.redisService != nil {
		if err := h.redisService.Ping(c.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	status := fiber.StatusOK
	state := "ready"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
