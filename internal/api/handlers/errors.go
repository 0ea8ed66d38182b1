package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/internal/charts"
	"github.com/medprompt/backend/internal/extract"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/pkg/logger"
)

func statusFor(err error) int {
	var completionErr *assistant.CompletionError
	var embeddingErr *retrieval.EmbeddingError

	switch {
	case errors.Is(err, assistant.ErrEmptyInput),
		errors.Is(err, risk.ErrMissingFeature),
		errors.Is(err, retrieval.ErrInvalidTopK),
		errors.Is(err, charts.ErrLengthMismatch),
		errors.Is(err, charts.ErrNoPoints),
		errors.Is(err, charts.ErrUnknownMetric),
		errors.Is(err, extract.ErrEmptyDocument),
		errors.Is(err, extract.ErrNoText):
		return fiber.StatusBadRequest
	case errors.Is(err, extract.ErrUnsupportedType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, risk.ErrModelUnavailable),
		errors.Is(err, extract.ErrOCRUnavailable),
		errors.Is(err, assistant.ErrHistoryDisabled):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &completionErr), errors.As(err, &embeddingErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError logs err and writes {"error", "detail"} with the mapped status.
func respondError(c *fiber.Ctx, err error, msg string) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug(msg, zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error":  msg,
		"detail": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
