package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pete-rs/tinyroom-api-sub000/internal/database"
	"github.com/pete-rs/tinyroom-api-sub000/internal/presence"
)

type HealthHandler struct {
	presence *presence.Manager // nil when redis is not configured
}

func NewHealthHandler(pres *presence.Manager) *HealthHandler {
	return &HealthHandler{presence: pres}
}

// Health reports liveness plus dependency status.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":   "ok",
		"database": "ok",
		"presence": "disabled",
	}
	code := fiber.StatusOK

	if err := database.Ping(); err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = fiber.StatusServiceUnavailable
	}

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.Health(ctx); err != nil {
			status["presence"] = "unreachable"
		} else {
			status["presence"] = "ok"
		}
	}

	return c.Status(code).JSON(status)
}
