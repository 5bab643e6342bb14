package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"canvasmind/internal/database"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db      *database.MongoDB
	started time.Time
}

// NewHealthHandler builds the handler.
func NewHealthHandler(db *database.MongoDB) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

// HandleHealth reports service health and checks the database connection.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := h.db.Client.Ping(c.Context(), nil); err != nil {
		dbStatus = "unreachable"
	}
	status := fiber.StatusOK
	if dbStatus != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   dbStatus,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"database": dbStatus,
	})
}

// HandleDatabaseDiagnostics reports connection latency and profile count.
func (h *HealthHandler) HandleDatabaseDiagnostics(c *fiber.Ctx) error {
	start := time.Now()
	if err := h.db.Client.Ping(c.Context(), nil); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unreachable",
			"error":  err.Error(),
		})
	}
	latency := time.Since(start)

	count, err := h.db.Collection(database.CollectionProfiles).CountDocuments(c.Context(), bson.M{})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "diagnostics failed")
	}

	return c.JSON(fiber.Map{
		"status":       "ok",
		"ping_latency": latency.String(),
		"database":     h.db.Database.Name(),
		"profiles":     count,
	})
}
