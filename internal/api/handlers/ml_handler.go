package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/internal/charts"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/storage/models"
)

// Shown until the history holds real assessments.
var sampleSeries = map[string][]float64{
	"glucose": {110, 125, 140, 115, 130},
	"bmi":     {22.5, 27.8, 31.2},
}

type MLHandler struct {
	service *assistant.Service
	now     func() time.Time
}

func NewMLHandler(service *assistant.Service) *MLHandler {
	return &MLHandler{
		service: service,
		now:     time.Now,
	}
}

func (h *MLHandler) Predict(c *fiber.Ctx) error {
	var raw map[string]float64
	if err := c.BodyParser(&raw); err != nil {
		return badRequest(c, "Invalid request body")
	}

	features, err := risk.FeaturesFromMap(raw)
	if err != nil {
		return respondError(c, err, "Invalid features")
	}

	prediction, err := h.service.Predict(c.UserContext(), features)
	if err != nil {
		return respondError(c, err, "Failed to predict risk")
	}

	return c.JSON(prediction)
}

func (h *MLHandler) GlucoseChart(c *fiber.Ctx) error {
	return h.historyChart(c, "glucose")
}

func (h *MLHandler) BMIChart(c *fiber.Ctx) error {
	return h.historyChart(c, "bmi")
}

func (h *MLHandler) PlotGlucose(c *fiber.Ctx) error {
	var req struct {
		Glucose    []float64 `json:"glucose"`
		Timestamps []string  `json:"timestamps"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	return h.plot(c, "glucose", req.Glucose, req.Timestamps)
}

func (h *MLHandler) PlotBMI(c *fiber.Ctx) error {
	var req struct {
		BMI        []float64 `json:"bmi"`
		Timestamps []string  `json:"timestamps"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	return h.plot(c, "bmi", req.BMI, req.Timestamps)
}

func (h *MLHandler) plot(c *fiber.Ctx, metric string, values []float64, timestamps []string) error {
	spec, err := charts.SpecFor(metric)
	if err != nil {
		return respondError(c, err, "Invalid chart")
	}

	fig, err := charts.Trend(spec, values, timestamps)
	if err != nil {
		return respondError(c, err, "Invalid chart data")
	}
	return h.sendFigure(c, fig, "request")
}

func (h *MLHandler) historyChart(c *fiber.Ctx, metric string) error {
	spec, err := charts.SpecFor(metric)
	if err != nil {
		return respondError(c, err, "Invalid chart")
	}

	points, err := h.service.Trend(c.UserContext(), metric, c.QueryInt("limit", 30))
	if err != nil && !errors.Is(err, assistant.ErrHistoryDisabled) {
		return respondError(c, err, "Failed to load history")
	}

	source := "history"
	if len(points) == 0 {
		source = "sample"
		points = h.samplePoints(metric)
	}

	fig, err := charts.FromPoints(spec, points)
	if err != nil {
		return respondError(c, err, "Failed to build chart")
	}
	return h.sendFigure(c, fig, source)
}

// samplePoints dates the sample series one day apart, newest today.
func (h *MLHandler) samplePoints(metric string) []models.TrendPoint {
	values := sampleSeries[metric]
	today := h.now()
	points := make([]models.TrendPoint, len(values))
	for i, v := range values {
		points[i] = models.TrendPoint{
			Timestamp: today.AddDate(0, 0, i-len(values)+1),
			Value:     v,
		}
	}
	return points
}

func (h *MLHandler) sendFigure(c *fiber.Ctx, fig *charts.Figure, source string) error {
	chart, err := fig.JSON()
	if err != nil {
		return respondError(c, err, "Failed to encode chart")
	}
	return c.JSON(fiber.Map{
		"chart":  chart,
		"source": source,
	})
}
