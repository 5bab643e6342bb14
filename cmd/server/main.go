package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"canvasmind/internal/config"
	"canvasmind/internal/database"
	"canvasmind/internal/handlers"
	"canvasmind/internal/jobs"
	"canvasmind/internal/llm"
	"canvasmind/internal/logging"
	"canvasmind/internal/middleware"
	"canvasmind/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ [MAIN] No .env file found, using environment")
	}
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ [MAIN] Configuration error: %v", err)
	}

	db, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ [MAIN] MongoDB connection failed: %v", err)
	}
	initCtx, initCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := db.Initialize(initCtx); err != nil {
		initCancel()
		log.Fatalf("❌ [MAIN] Database initialization failed: %v", err)
	}
	initCancel()

	redisSvc := services.NewRedisService(cfg.RedisURL)

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMUtilityModel,
		cfg.LLMRequestTimeout, cfg.LLMRatePerSecond)
	builder := services.NewContextBuilder()
	extraction := services.NewExtractionService(llmClient)
	proactive := services.NewProactiveService(llmClient)
	profiles := services.NewProfileService(db, redisSvc, cfg.PersistRetries, cfg.PersistBackoff)
	sessions := services.NewSessionService(cfg.SessionTTL)
	pipeline := services.NewPipelineService(llmClient, builder, extraction, proactive,
		profiles, sessions, cfg.SummaryThreshold, cfg.MessagesAfterSummary, cfg.MaxPendingTopics)

	pruner, err := jobs.NewPruneScheduler(profiles, cfg.PruneSchedule, cfg.MaxPendingTopics)
	if err != nil {
		log.Fatalf("❌ [MAIN] Prune scheduler failed: %v", err)
	}

	hub := handlers.NewSuggestionHub(pipeline, cfg.PopupCollapseDelay)
	chatHandler := handlers.NewChatHandler(pipeline, hub, cfg.LLMRequestTimeout+30*time.Second)
	profileHandler := handlers.NewProfileHandler(profiles, sessions)
	suggestionHandler := handlers.NewSuggestionHandler(pipeline)
	healthHandler := handlers.NewHealthHandler(db)

	app := fiber.New(fiber.Config{
		AppName:      "canvasmind",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}))

	prom := fiberprometheus.New("canvasmind")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	app.Get("/health", healthHandler.HandleHealth)
	app.Get("/diagnostics/database", healthHandler.HandleDatabaseDiagnostics)

	app.Post("/chat/business", chatHandler.HandleTurn)
	app.Post("/chat/business/stream", chatHandler.HandleTurnStream)

	app.Get("/business/experts", profileHandler.HandleListExperts)
	app.Get("/business/tokens/validate", profileHandler.HandleValidate)
	app.Post("/business/user", profileHandler.HandleCreate)
	app.Get("/business/user/me", profileHandler.HandleGetMe)
	app.Get("/business/user/:token", profileHandler.HandleGet)
	app.Put("/business/user/:token", profileHandler.HandleUpdate)
	app.Delete("/business/user/:token", profileHandler.HandleDelete)
	app.Delete("/business/user/:token/memory", profileHandler.HandleResetMemory)
	app.Get("/business/user/:token/export", profileHandler.HandleExport)

	app.Post("/business/suggestions/accept", suggestionHandler.HandleAccept)
	app.Post("/business/suggestions/dismiss", suggestionHandler.HandleDismiss)
	app.Use("/ws/suggestions", handlers.UpgradeRequired)
	app.Get("/ws/suggestions", hub.ServeWS())

	admin := app.Group("/admin", middleware.AdminOnly(cfg.AdminToken))
	admin.Get("/business/users", profileHandler.HandleAdminList)

	go func() {
		log.Printf("🚀 [MAIN] Listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("❌ [MAIN] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("🛑 [MAIN] Shutting down")

	pruner.Stop()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Printf("⚠️ [MAIN] Shutdown error: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Close(shutdownCtx); err != nil {
		log.Printf("⚠️ [MAIN] MongoDB disconnect error: %v", err)
	}
	redisSvc.Close()
	log.Printf("👋 [MAIN] Bye")
}
