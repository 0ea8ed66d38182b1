package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medprompt/backend/internal/tips"
)

type TipsHandler struct {
	picker *tips.Picker
}

func NewTipsHandler(picker *tips.Picker) *TipsHandler {
	return &TipsHandler{
		picker: picker,
	}
}

func (h *TipsHandler) Daily(c *fiber.Ctx) error {
	return c.JSON(h.picker.Daily())
}
