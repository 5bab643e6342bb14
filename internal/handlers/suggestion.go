package handlers

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"canvasmind/internal/inbox"
	"canvasmind/internal/models"
	"canvasmind/internal/services"
)

// SuggestionHub fans proactive suggestions out to connected clients and
// runs the popup lifecycle for each connection.
type SuggestionHub struct {
	mu            sync.Mutex
	conns         map[string][]*suggestionConn
	collapseDelay time.Duration
	pipeline      *services.PipelineService
}

type suggestionConn struct {
	token   string
	ws      *websocket.Conn
	writeMu sync.Mutex
	manager *inbox.Manager
}

// NewSuggestionHub builds the hub.
func NewSuggestionHub(pipeline *services.PipelineService, collapseDelay time.Duration) *SuggestionHub {
	return &SuggestionHub{
		conns:         make(map[string][]*suggestionConn),
		collapseDelay: collapseDelay,
		pipeline:      pipeline,
	}
}

// Publish delivers a suggestion to every live connection for token. Clients
// without a connection still receive suggestions inline in turn responses.
func (h *SuggestionHub) Publish(token string, s models.ProactiveSuggestion) {
	h.mu.Lock()
	conns := append([]*suggestionConn(nil), h.conns[token]...)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.manager.Offer(s)
	}
}

type suggestionEvent struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	State       string `json:"state"`
	Verdict     string `json:"verdict,omitempty"`
	Text        string `json:"text"`
	TargetBlock string `json:"target_block"`
	Badge       int    `json:"badge"`
}

type suggestionCommand struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

// UpgradeRequired rejects plain HTTP requests on the websocket route.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ServeWS is the websocket endpoint. The client identifies itself with the
// token query parameter, receives lifecycle events for every suggestion, and
// sends accept, dismiss, close and reopen commands back.
func (h *SuggestionHub) ServeWS() fiber.Handler {
	return websocket.New(func(ws *websocket.Conn) {
		token := ws.Query("token")
		if token == "" {
			ws.WriteJSON(fiber.Map{"error": "token query parameter is required"})
			return
		}

		conn := &suggestionConn{token: token, ws: ws}
		conn.manager = inbox.NewManager(h.collapseDelay, nil, func(item inbox.Item) {
			conn.sendEvent(item)
		})

		h.register(conn)
		defer h.unregister(conn)
		log.Printf("🔌 [SUGGEST] Client connected for %s", token)

		for {
			var cmd suggestionCommand
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			h.handleCommand(conn, cmd)
		}
	})
}

func (h *SuggestionHub) handleCommand(conn *suggestionConn, cmd suggestionCommand) {
	var verdict inbox.Verdict
	switch strings.ToLower(cmd.Action) {
	case "accept":
		verdict = inbox.VerdictAccepted
	case "dismiss":
		verdict = inbox.VerdictDismissed
	case "close":
		conn.manager.Collapse(cmd.ID)
		return
	case "reopen":
		conn.manager.Reopen(cmd.ID)
		return
	default:
		return
	}

	item, ok := conn.manager.Resolve(cmd.ID, verdict)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	accepted := verdict == inbox.VerdictAccepted
	if err := h.pipeline.ResolveSuggestion(ctx, conn.token, item.Suggestion, accepted); err != nil {
		log.Printf("⚠️ [SUGGEST] Failed to persist %s verdict for %s: %v", verdict, conn.token, err)
	}
}

func (c *suggestionConn) sendEvent(item inbox.Item) {
	event := suggestionEvent{
		Type:        "suggestion",
		ID:          item.ID,
		State:       item.State.String(),
		Verdict:     string(item.Verdict),
		Text:        item.Suggestion.Text,
		TargetBlock: item.Suggestion.TargetBlock,
		Badge:       c.manager.BadgeCount(),
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(event); err != nil {
		log.Printf("⚠️ [SUGGEST] Failed to push event to %s: %v", c.token, err)
	}
}

func (h *SuggestionHub) register(conn *suggestionConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.token] = append(h.conns[conn.token], conn)
}

func (h *SuggestionHub) unregister(conn *suggestionConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[conn.token]
	for i, c := range conns {
		if c == conn {
			h.conns[conn.token] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[conn.token]) == 0 {
		delete(h.conns, conn.token)
	}
}

// SuggestionHandler serves suggestion resolution over plain HTTP for
// clients that consume suggestions from turn responses instead of the
// websocket.
type SuggestionHandler struct {
	pipeline *services.PipelineService
}

// NewSuggestionHandler builds the handler.
func NewSuggestionHandler(pipeline *services.PipelineService) *SuggestionHandler {
	return &SuggestionHandler{pipeline: pipeline}
}

type resolveRequest struct {
	Token          string `json:"token"`
	SuggestionText string `json:"suggestion_text"`
	TargetBlock    string `json:"target_block"`
}

// HandleAccept writes the accepted suggestion's value into its target block
// and clears the staged topic.
func (h *SuggestionHandler) HandleAccept(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" || req.SuggestionText == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token and suggestion_text are required")
	}

	block := req.TargetBlock
	if block == "" {
		// The grammar itself names the block when the client omits it.
		if _, parsed, err := models.ParseSuggestionText(req.SuggestionText); err == nil {
			block = parsed
		}
	}

	suggestion := models.ProactiveSuggestion{Text: req.SuggestionText, TargetBlock: block}
	if _, _, parseErr := models.ParseSuggestionText(req.SuggestionText); parseErr != nil || !models.IsCanvasBlock(block) {
		// Malformed text cannot be applied, but the staged entry still
		// clears so it does not haunt the pending topics.
		if err := h.pipeline.ResolveSuggestion(c.Context(), req.Token, suggestion, false); err != nil {
			return profileError(err)
		}
		return fiber.NewError(fiber.StatusUnprocessableEntity, "suggestion text does not match the expected format")
	}

	if err := h.pipeline.ResolveSuggestion(c.Context(), req.Token, suggestion, true); err != nil {
		return profileError(err)
	}
	return c.JSON(fiber.Map{"status": "accepted"})
}

// HandleDismiss clears the staged topic without touching the canvas.
func (h *SuggestionHandler) HandleDismiss(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" || req.SuggestionText == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token and suggestion_text are required")
	}

	suggestion := models.ProactiveSuggestion{Text: req.SuggestionText, TargetBlock: req.TargetBlock}
	if err := h.pipeline.ResolveSuggestion(c.Context(), req.Token, suggestion, false); err != nil {
		return profileError(err)
	}
	return c.JSON(fiber.Map{"status": "dismissed"})
}
