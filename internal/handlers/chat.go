package handlers

import (
	"bufio"
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"canvasmind/internal/models"
	"canvasmind/internal/services"
	"canvasmind/internal/stream"
)

// ChatHandler serves advisory turns.
type ChatHandler struct {
	pipeline    *services.PipelineService
	hub         *SuggestionHub
	turnTimeout time.Duration
}

// NewChatHandler builds the handler. hub may be nil when websocket delivery
// is disabled.
func NewChatHandler(pipeline *services.PipelineService, hub *SuggestionHub, turnTimeout time.Duration) *ChatHandler {
	return &ChatHandler{pipeline: pipeline, hub: hub, turnTimeout: turnTimeout}
}

func (h *ChatHandler) publishSuggestion(token string, suggestion *models.ProactiveSuggestion) {
	if h.hub == nil || suggestion == nil {
		return
	}
	h.hub.Publish(token, *suggestion)
}

func parseTurnRequest(c *fiber.Ctx) (models.TurnRequest, error) {
	var req models.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return req, errors.New("invalid request body")
	}
	if strings.TrimSpace(req.UserToken) == "" {
		return req, errors.New("user_token is required")
	}
	if strings.TrimSpace(req.MessageText) == "" {
		return req, errors.New("message_text is required")
	}
	if req.ExpertID == "" {
		req.ExpertID = "strategy"
	}
	return req, nil
}

// HandleTurn runs a synchronous advisory turn and returns the full response
// with the suggestion, if any, as a structured field.
func (h *ChatHandler) HandleTurn(c *fiber.Ctx) error {
	req, err := parseTurnRequest(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.turnTimeout)
	defer cancel()

	result, err := h.pipeline.RunTurn(ctx, req, nil)
	if err != nil {
		return turnError(err)
	}
	h.publishSuggestion(req.UserToken, result.Suggestion)

	return c.JSON(models.TurnResponse{
		ResponseText:        result.ResponseText,
		ProactiveSuggestion: result.Suggestion,
	})
}

// HandleTurnStream runs a streaming turn. Response text is written as plain
// text chunks in generation order; when the turn produced a suggestion, one
// framed suggestion marker follows the final content chunk. Memory work
// finishes even when the client disconnects mid-stream.
func (h *ChatHandler) HandleTurnStream(c *fiber.Ctx) error {
	req, err := parseTurnRequest(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	timeout := h.turnTimeout
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		clientGone := false
		result, err := h.pipeline.RunTurn(ctx, req, func(delta string) error {
			if clientGone {
				return nil
			}
			if _, werr := w.WriteString(delta); werr != nil {
				clientGone = true
				return nil
			}
			if werr := w.Flush(); werr != nil {
				clientGone = true
			}
			return nil
		})
		if err != nil {
			log.Printf("❌ [CHAT] Streaming turn failed for %s: %v", req.UserToken, err)
			if !clientGone {
				w.WriteString("\n[error] the advisor is unavailable right now")
				w.Flush()
			}
			return
		}

		h.publishSuggestion(req.UserToken, result.Suggestion)
		if result.Suggestion != nil && !clientGone {
			w.WriteString(stream.EncodeMarker(*result.Suggestion))
			w.Flush()
		}
	})
	return nil
}

func turnError(err error) error {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		return fiber.NewError(fiber.StatusNotFound, "unknown user token")
	case strings.Contains(err.Error(), "unknown expert"):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, "advisory turn failed")
	}
}
