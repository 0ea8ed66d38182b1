package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/medprompt/backend/internal/api/handlers"
	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/internal/middleware/ratelimit"
	"github.com/medprompt/backend/internal/middleware/security"
	"github.com/medprompt/backend/internal/middleware/validation"
	"github.com/medprompt/backend/internal/tips"
	"github.com/medprompt/backend/pkg/config"
	"github.com/medprompt/backend/pkg/logger"
)

type Dependencies struct {
	Config    *config.Config
	Assistant *assistant.Service
	Tips      *tips.Picker
	// ModelReady reports whether a risk model is loaded.
	ModelReady func() bool
	// RateLimiter is optional; the caller owns Stop.
	RateLimiter *ratelimit.RateLimiter
	// AccessLog enables per-request log lines.
	AccessLog bool
}

func NewApp(deps Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		AppName:      "medprompt-backend",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	origins := strings.Split(cfg.Server.AllowOrigins, ",")

	app.Use(recover.New())
	if deps.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: origins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))
	if deps.RateLimiter != nil {
		app.Use(deps.RateLimiter.Middleware())
	}
	app.Use(validation.Middleware(validation.Config{
		MaxPromptLength:   cfg.Server.MaxPromptChars,
		MaxDocumentLength: cfg.Server.BodyLimit,
		Logger:            logger.GetLogger(),
	}))

	assistantHandler := handlers.NewAssistantHandler(deps.Assistant)
	mlHandler := handlers.NewMLHandler(deps.Assistant)
	documentHandler := handlers.NewDocumentHandler(deps.Assistant)
	tipsHandler := handlers.NewTipsHandler(deps.Tips)
	healthHandler := handlers.NewHealthHandler(deps.Assistant, deps.ModelReady)
	wsHandler := handlers.NewWebSocketHandler(deps.Assistant, time.Duration(cfg.LLM.TimeoutSec)*time.Second)

	openrouter := app.Group("/openrouter")
	openrouter.Post("/ask", assistantHandler.Ask)
	openrouter.Post("/parse-pdf", assistantHandler.ParsePDF)
	openrouter.Post("/parse-image", assistantHandler.ParseImage)
	openrouter.Post("/explain-risk", assistantHandler.ExplainRisk)
	openrouter.Post("/ask-rag", assistantHandler.AskRAG)
	openrouter.Post("/generate-health-tips", assistantHandler.GenerateHealthTips)
	openrouter.Post("/generate-plan", assistantHandler.GeneratePlan)
	openrouter.Post("/chat", assistantHandler.Chat)

	ml := app.Group("/ml")
	ml.Post("/predict", mlHandler.Predict)
	ml.Get("/visualize/glucose", mlHandler.GlucoseChart)
	ml.Post("/visualize/glucose", mlHandler.PlotGlucose)
	ml.Get("/visualize/bmi", mlHandler.BMIChart)
	ml.Post("/visualize/bmi", mlHandler.PlotBMI)

	app.Get("/api/tips/daily", tipsHandler.Daily)

	v1 := app.Group("/api/v1")
	v1.Post("/documents", documentHandler.UploadDocument)
	v1.Post("/search", documentHandler.Search)
	v1.Get("/health", healthHandler.Health)
	v1.Get("/ready", healthHandler.Ready)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	return app
}
