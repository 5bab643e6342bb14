package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"canvasmind/internal/llm"
	"canvasmind/internal/models"
)

// ProactiveService decides whether a turn warrants an advisor-initiated
// canvas suggestion, and produces it.
type ProactiveService struct {
	llmClient *llm.Client
}

// NewProactiveService builds the service.
func NewProactiveService(llmClient *llm.Client) *ProactiveService {
	return &ProactiveService{llmClient: llmClient}
}

// canvasImplications maps a canvas block that just gained facts to the
// blocks it most often implies work on. Targets are probed in order; the
// first one still empty becomes the suggestion candidate without an extra
// model round-trip to pick it.
var canvasImplications = map[string][]string{
	models.BlockCustomerSegments:      {models.BlockCustomerRelationships, models.BlockChannels},
	models.BlockValuePropositions:     {models.BlockCustomerSegments, models.BlockRevenueStreams},
	models.BlockChannels:              {models.BlockCostStructure, models.BlockCustomerRelationships},
	models.BlockCustomerRelationships: {models.BlockChannels},
	models.BlockRevenueStreams:        {models.BlockCostStructure, models.BlockValuePropositions},
	models.BlockKeyResources:          {models.BlockCostStructure, models.BlockKeyActivities},
	models.BlockKeyActivities:         {models.BlockKeyResources, models.BlockKeyPartnerships},
	models.BlockKeyPartnerships:       {models.BlockKeyActivities, models.BlockCostStructure},
	models.BlockCostStructure:         {models.BlockRevenueStreams},
}

type suggestionOutput struct {
	Value       string  `json:"value"`
	TargetBlock string  `json:"target_block"`
	Confidence  float64 `json:"confidence"`
}

var suggestionSchema = json.RawMessage(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["value", "target_block", "confidence"],
	"properties": {
		"value": {"type": "string"},
		"target_block": {"type": "string"},
		"confidence": {"type": "number"}
	}
}`)

const suggestionInstructions = `You review a business model canvas after an advisory exchange and propose at most one concrete addition.

Rules:
- value is a short concrete fact worth adding, phrased as canvas content, not advice.
- target_block must be one of the canvas block keys you were given, and should usually be the candidate block unless the exchange clearly supports a different one.
- confidence is your 0..1 estimate that the client would accept the addition. Use low confidence when you are speculating.
- Never propose a fact that is already on the canvas.`

// GenerateSuggestion returns a suggestion for the turn, or nil when the turn
// does not warrant one. A nil suggestion with nil error is the common case.
func (s *ProactiveService) GenerateSuggestion(ctx context.Context, insights models.BusinessInsights, delta models.MemoryDelta, userMessage string) (*models.ProactiveSuggestion, error) {
	if !delta.TouchesCanvas() {
		return nil, nil
	}

	candidate := s.candidateBlock(insights, delta)
	if candidate == "" {
		return nil, nil
	}

	canvasJSON, err := json.Marshal(insights.CanvasState)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canvas: %w", err)
	}

	prompt := fmt.Sprintf("Canvas:\n%s\n\nCandidate block: %s\nLatest client message: %s",
		string(canvasJSON), candidate, userMessage)

	raw, err := s.llmClient.CompleteJSON(ctx, s.llmClient.UtilityModel(), []llm.Message{
		llm.TextMessage(models.RoleSystem, suggestionInstructions),
		llm.TextMessage(models.RoleUser, prompt),
	}, "canvas_suggestion", suggestionSchema)
	if err != nil {
		return nil, fmt.Errorf("suggestion call failed: %w", err)
	}

	var out suggestionOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion output: %w", err)
	}

	block := strings.TrimSpace(out.TargetBlock)
	if !models.IsCanvasBlock(block) {
		block = candidate
	}
	value := strings.TrimSpace(out.Value)
	if value == "" {
		return nil, nil
	}
	if models.ContainsFact(insights.CanvasState[block], value) {
		return nil, nil
	}

	suggestion := models.ProactiveSuggestion{
		Text:        models.FormatSuggestionText(value, block),
		TargetBlock: block,
		Confidence:  out.Confidence,
		CreatedAt:   time.Now().UTC(),
	}
	if !suggestion.ShouldShow() {
		log.Printf("💡 [PROACTIVE] Suppressed low-confidence suggestion (%.2f) for %s", out.Confidence, block)
		return nil, nil
	}
	return &suggestion, nil
}

// candidateBlock picks the first implied block that is still empty, walking
// the blocks the delta touched in canonical order.
func (s *ProactiveService) candidateBlock(insights models.BusinessInsights, delta models.MemoryDelta) string {
	for _, block := range models.CanvasBlocks {
		if len(delta.Added[block]) == 0 {
			continue
		}
		for _, implied := range canvasImplications[block] {
			if len(insights.CanvasState[implied]) == 0 {
				return implied
			}
		}
	}
	return ""
}

// StageSuggestion records the suggestion as a system pending topic so the
// advisor can revisit it if the client ignores the popup. Duplicate staged
// topics are skipped.
func StageSuggestion(insights *models.BusinessInsights, suggestion models.ProactiveSuggestion) bool {
	topic := suggestion.PendingTopic()
	var grew bool
	insights.PendingTopics, grew = models.AppendFact(insights.PendingTopics, topic)
	return grew
}

// UnstageSuggestion removes the staged topic once the suggestion reaches a
// terminal state.
func UnstageSuggestion(insights *models.BusinessInsights, suggestion models.ProactiveSuggestion) bool {
	var removed bool
	insights.PendingTopics, removed = models.RemoveFact(insights.PendingTopics, suggestion.PendingTopic())
	return removed
}
