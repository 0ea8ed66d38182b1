package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/internal/extract"
	"github.com/medprompt/backend/pkg/logger"
)

type DocumentHandler struct {
	service *assistant.Service
}

func NewDocumentHandler(service *assistant.Service) *DocumentHandler {
	return &DocumentHandler{
		service: service,
	}
}

// UploadDocument indexes either a JSON {"text"} body or a multipart "file".
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var (
		kind   extract.Kind
		chunks int
		err    error
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		data, uploadErr := readUpload(c, "file")
		if uploadErr != nil {
			return badRequest(c, uploadErr.Error())
		}
		kind, chunks, err = h.service.IngestUpload(c.UserContext(), data)
	} else {
		var req struct {
			Text string `json:"text"`
		}
		if parseErr := c.BodyParser(&req); parseErr != nil {
			return badRequest(c, "Invalid request body")
		}
		if strings.TrimSpace(req.Text) == "" {
			return badRequest(c, "Text is required")
		}
		kind = extract.KindText
		chunks, err = h.service.IngestText(c.UserContext(), req.Text)
	}

	if err != nil {
		return respondError(c, err, "Failed to ingest document")
	}

	logger.Info("Document upload indexed", zap.String("kind", string(kind)), zap.Int("chunks", chunks))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Document indexed successfully",
		"kind":           kind,
		"chunks_indexed": chunks,
		"index_size":     h.service.IndexSize(),
	})
}

func (h *DocumentHandler) Search(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.TopK < 0 {
		return badRequest(c, "top_k must be positive")
	}

	results, err := h.service.Search(c.UserContext(), req.Query, req.TopK)
	if err != nil {
		return respondError(c, err, "Failed to search")
	}

	type hit struct {
		Position int     `json:"position"`
		Text     string  `json:"text"`
		Distance float64 `json:"distance"`
	}
	hits := make([]hit, len(results))
	for i, r := range results {
		hits[i] = hit{Position: r.Position, Text: r.Text, Distance: r.Distance}
	}

	return c.JSON(fiber.Map{
		"results": hits,
		"count":   len(hits),
	})
}
