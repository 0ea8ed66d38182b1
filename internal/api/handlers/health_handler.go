package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/medprompt/backend/internal/assistant"
)

type HealthHandler struct {
	service    *assistant.Service
	modelReady func() bool
}

func NewHealthHandler(service *assistant.Service, modelReady func() bool) *HealthHandler {
	return &HealthHandler{
		service:    service,
		modelReady: modelReady,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports 503 until a risk model is loaded; the retrieval index may
// legitimately be empty.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ready := h.modelReady()

	status := fiber.StatusOK
	state := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":      state,
		"model_ready": ready,
		"index_size":  h.service.IndexSize(),
	})
}
