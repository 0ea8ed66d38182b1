package handlers

import (
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/internal/llm"
	"github.com/medprompt/backend/pkg/logger"
)

type AssistantHandler struct {
	service *assistant.Service
}

func NewAssistantHandler(service *assistant.Service) *AssistantHandler {
	return &AssistantHandler{
		service: service,
	}
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (h *AssistantHandler) Ask(c *fiber.Ctx) error {
	var req promptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.service.Ask(c.UserContext(), req.Prompt)
	if err != nil {
		return respondError(c, err, "Failed to answer prompt")
	}

	return c.JSON(fiber.Map{
		"response": resp,
	})
}

func (h *AssistantHandler) ParsePDF(c *fiber.Ctx) error {
	data, err := readUpload(c, "file")
	if err != nil {
		return badRequest(c, err.Error())
	}

	logger.Info("Processing uploaded document", zap.Int("bytes", len(data)))

	res, err := h.service.ProcessDocument(c.UserContext(), data)
	if err != nil {
		return respondError(c, err, "Failed to process document")
	}

	return c.JSON(fiber.Map{
		"summary":        res.Summary,
		"risk_score":     res.Prediction,
		"extracted_text": res.ExtractedText,
		"vitals":         res.Vitals,
		"features":       res.Features,
		"chunks_indexed": res.Chunks,
	})
}

func (h *AssistantHandler) ParseImage(c *fiber.Ctx) error {
	data, err := readUpload(c, "file")
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.service.AnalyzeReport(c.UserContext(), data)
	if err != nil {
		return respondError(c, err, "Failed to analyze report")
	}

	return c.JSON(fiber.Map{
		"raw_text":       res.RawText,
		"vitals":         res.Vitals,
		"features":       res.Features,
		"risk_score":     res.Prediction,
		"ai_explanation": res.Explanation,
		"chunks_indexed": res.Chunks,
	})
}

func (h *AssistantHandler) ExplainRisk(c *fiber.Ctx) error {
	var req promptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.service.ExplainRisk(c.UserContext(), req.Prompt)
	if err != nil {
		return respondError(c, err, "Failed to explain risk")
	}

	return c.JSON(fiber.Map{
		"risk_score":   res.Prediction,
		"explanation":  res.Explanation,
		"context_used": res.Context,
		"vitals":       res.Vitals,
	})
}

func (h *AssistantHandler) AskRAG(c *fiber.Ctx) error {
	var req promptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.service.AskRAG(c.UserContext(), req.Prompt)
	if err != nil {
		return respondError(c, err, "Failed to answer question")
	}

	return c.JSON(fiber.Map{
		"response":     res.Response,
		"context_used": res.Context,
	})
}

type vitalsRequest struct {
	Age           *float64 `json:"age"`
	BMI           *float64 `json:"bmi"`
	Glucose       *float64 `json:"glucose"`
	BloodPressure *float64 `json:"blood_pressure"`
	RiskScore     *float64 `json:"risk_score"`
}

func (r vitalsRequest) vitals(requireRisk bool) (llm.Vitals, error) {
	var missing []string
	if r.Age == nil {
		missing = append(missing, "age")
	}
	if r.BMI == nil {
		missing = append(missing, "bmi")
	}
	if r.Glucose == nil {
		missing = append(missing, "glucose")
	}
	if r.BloodPressure == nil {
		missing = append(missing, "blood_pressure")
	}
	if requireRisk && r.RiskScore == nil {
		missing = append(missing, "risk_score")
	}
	if len(missing) > 0 {
		return llm.Vitals{}, fmt.Errorf("missing fields: %v", missing)
	}

	return llm.Vitals{
		Age:           *r.Age,
		BMI:           *r.BMI,
		Glucose:       *r.Glucose,
		BloodPressure: *r.BloodPressure,
	}, nil
}

func (h *AssistantHandler) GenerateHealthTips(c *fiber.Ctx) error {
	var req vitalsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	v, err := req.vitals(true)
	if err != nil {
		return badRequest(c, err.Error())
	}

	tips, err := h.service.HealthTips(c.UserContext(), v, *req.RiskScore)
	if err != nil {
		return respondError(c, err, "Failed to generate health tips")
	}

	return c.JSON(fiber.Map{
		"tips": tips,
	})
}

func (h *AssistantHandler) GeneratePlan(c *fiber.Ctx) error {
	var req vitalsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	v, err := req.vitals(false)
	if err != nil {
		return badRequest(c, err.Error())
	}

	plan, err := h.service.HealthPlan(c.UserContext(), v)
	if err != nil {
		return respondError(c, err, "Failed to generate plan")
	}

	return c.JSON(fiber.Map{
		"plan": plan,
	})
}

func (h *AssistantHandler) Chat(c *fiber.Ctx) error {
	var req struct {
		History     []string `json:"history"`
		UserMessage string   `json:"user_message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.service.Chat(c.UserContext(), req.History, req.UserMessage)
	if err != nil {
		return respondError(c, err, "Failed to chat")
	}

	return c.JSON(fiber.Map{
		"response": resp,
	})
}

func readUpload(c *fiber.Ctx, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("multipart field %q is required", field)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}
