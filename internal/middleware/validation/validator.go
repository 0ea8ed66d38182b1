package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror\s*=|onload\s*=|onclick\s*=)`)

type Config struct {
	// MaxPromptLength bounds every free-text field a user types.
	MaxPromptLength int
	// MaxDocumentLength bounds the "text" field of document ingestion.
	MaxDocumentLength   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

var promptFields = []string{"prompt", "question", "query", "user_message", "content"}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = 8000
	}
	if cfg.MaxDocumentLength <= 0 {
		cfg.MaxDocumentLength = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) || len(c.Body()) == 0 {
			return c.Next()
		}

		var body map[string]any
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		for _, field := range promptFields {
			if s, ok := body[field].(string); ok {
				if msg := checkText(s, cfg.MaxPromptLength); msg != "" {
					cfg.Logger.Warn("Request rejected", zap.String("field", field), zap.String("reason", msg), zap.String("ip", c.IP()))
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": field + ": " + msg})
				}
			}
		}

		if history, ok := body["history"].([]any); ok {
			for _, h := range history {
				s, _ := h.(string)
				if msg := checkText(s, cfg.MaxPromptLength); msg != "" {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "history: " + msg})
				}
			}
		}

		if s, ok := body["text"].(string); ok && len(s) > cfg.MaxDocumentLength {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Document content exceeds maximum size",
			})
		}

		return c.Next()
	}
}

func checkText(s string, maxLen int) string {
	switch {
	case len(s) > maxLen:
		return "exceeds maximum length"
	case strings.ContainsRune(s, 0):
		return "contains invalid characters"
	case xssPattern.MatchString(s):
		return "contains markup that is not allowed"
	}
	return ""
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
