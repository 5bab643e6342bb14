package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"canvasmind/internal/llm"
	"canvasmind/internal/models"
)

// ExtractionService derives memory deltas from a completed exchange. The
// model proposes an updated insights document; the service reduces it to a
// delta against the stored snapshot so persistence stays minimal and
// replayable.
type ExtractionService struct {
	llmClient *llm.Client
}

// NewExtractionService builds the service.
func NewExtractionService(llmClient *llm.Client) *ExtractionService {
	return &ExtractionService{llmClient: llmClient}
}

var insightsSchema = json.RawMessage(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["canvas_state", "constraints", "preferences", "pending_topics"],
	"properties": {
		"canvas_state": {
			"type": "object",
			"additionalProperties": false,
			"required": ["customer_segments", "value_propositions", "channels", "customer_relationships", "revenue_streams", "key_resources", "key_activities", "key_partnerships", "cost_structure"],
			"properties": {
				"customer_segments": {"type": "array", "items": {"type": "string"}},
				"value_propositions": {"type": "array", "items": {"type": "string"}},
				"channels": {"type": "array", "items": {"type": "string"}},
				"customer_relationships": {"type": "array", "items": {"type": "string"}},
				"revenue_streams": {"type": "array", "items": {"type": "string"}},
				"key_resources": {"type": "array", "items": {"type": "string"}},
				"key_activities": {"type": "array", "items": {"type": "string"}},
				"key_partnerships": {"type": "array", "items": {"type": "string"}},
				"cost_structure": {"type": "array", "items": {"type": "string"}}
			}
		},
		"constraints": {"type": "array", "items": {"type": "string"}},
		"preferences": {"type": "array", "items": {"type": "string"}},
		"pending_topics": {"type": "array", "items": {"type": "string"}}
	}
}`)

const extractionInstructions = `You maintain a business advisory memory. Given the current memory and the latest exchange, return the COMPLETE updated memory.

Rules:
- Record only durable business facts the CLIENT stated or confirmed. Ignore hypotheticals, questions, and the advisor's own suggestions.
- Constraints are hard boundaries (budget limits, regulations, things the client refuses to do).
- Preferences are interaction and style preferences (level of detail, tone, format).
- Pending topics are open threads to revisit later. Never invent entries prefixed with "[SYS] "; only keep or drop existing ones.
- When the client corrects an earlier fact, remove the outdated entry and add the replacement. Never remove a fact without adding its replacement in the same category.
- Keep every fact that is still true. Return all nine canvas blocks even when empty.`

// ExtractDelta asks the utility model for an updated insights document for
// the given exchange and reduces it to a delta against current.
func (s *ExtractionService) ExtractDelta(ctx context.Context, current models.BusinessInsights, userMessage, assistantMessage string) (models.MemoryDelta, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return models.NewMemoryDelta(), fmt.Errorf("failed to encode current insights: %w", err)
	}

	prompt := fmt.Sprintf("Current memory:\n%s\n\nLatest exchange:\nCLIENT: %s\nADVISOR: %s",
		string(currentJSON), userMessage, assistantMessage)

	raw, err := s.llmClient.CompleteJSON(ctx, s.llmClient.UtilityModel(), []llm.Message{
		llm.TextMessage(models.RoleSystem, extractionInstructions),
		llm.TextMessage(models.RoleUser, prompt),
	}, "business_insights", insightsSchema)
	if err != nil {
		return models.NewMemoryDelta(), fmt.Errorf("extraction call failed: %w", err)
	}

	var candidate models.BusinessInsights
	if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
		return models.NewMemoryDelta(), fmt.Errorf("failed to parse extraction output: %w", err)
	}
	candidate.Normalize()

	delta := ComputeDelta(current, candidate)
	if !delta.Empty() {
		log.Printf("🧠 [EXTRACT] Delta: %d categories touched", touchedCategories(delta))
	}
	return delta, nil
}

// ComputeDelta diffs candidate against current per category under normalized
// matching. Removals survive only when the same category also gains at least
// one fact in the same turn; a bare removal is treated as model noise.
func ComputeDelta(current, candidate models.BusinessInsights) models.MemoryDelta {
	delta := models.NewMemoryDelta()

	diff := func(category string, before, after []string) {
		for _, fact := range after {
			if !models.ContainsFact(before, fact) {
				delta.Add(category, fact)
			}
		}
		for _, fact := range before {
			if !models.ContainsFact(after, fact) {
				delta.Remove(category, fact)
			}
		}
	}

	for _, block := range models.CanvasBlocks {
		diff(block, current.CanvasState[block], candidate.CanvasState[block])
	}
	diff(models.CategoryConstraints, current.Constraints, candidate.Constraints)
	diff(models.CategoryPreferences, current.Preferences, candidate.Preferences)
	diff(models.CategoryPendingTopics, current.PendingTopics, candidate.PendingTopics)

	for category, removed := range delta.Removed {
		// Pending topics may be closed out without replacement.
		if category == models.CategoryPendingTopics {
			continue
		}
		if len(delta.Added[category]) == 0 && len(removed) > 0 {
			delete(delta.Removed, category)
		}
	}
	return delta
}

// ApplyDelta applies delta to insights. The operation is idempotent:
// re-applying the same delta changes nothing, so a retried persist cannot
// duplicate facts.
func ApplyDelta(insights *models.BusinessInsights, delta models.MemoryDelta) bool {
	changed := false

	apply := func(category string, facts []string) []string {
		for _, fact := range delta.Removed[category] {
			var removed bool
			if facts, removed = models.RemoveFact(facts, fact); removed {
				changed = true
			}
		}
		for _, fact := range delta.Added[category] {
			var grew bool
			if facts, grew = models.AppendFact(facts, fact); grew {
				changed = true
			}
		}
		return facts
	}

	for _, block := range models.CanvasBlocks {
		insights.CanvasState[block] = apply(block, insights.CanvasState[block])
	}
	insights.Constraints = apply(models.CategoryConstraints, insights.Constraints)
	insights.Preferences = apply(models.CategoryPreferences, insights.Preferences)
	insights.PendingTopics = apply(models.CategoryPendingTopics, insights.PendingTopics)

	return changed
}

// TrimPendingTopics drops the oldest pending topics beyond max, keeping
// staged system topics intact when possible.
func TrimPendingTopics(insights *models.BusinessInsights, max int) {
	insights.PendingTopics = models.CapPendingTopics(insights.PendingTopics, max)
}

func touchedCategories(delta models.MemoryDelta) int {
	touched := make(map[string]bool)
	for category, facts := range delta.Added {
		if len(facts) > 0 {
			touched[category] = true
		}
	}
	for category, facts := range delta.Removed {
		if len(facts) > 0 {
			touched[category] = true
		}
	}
	return len(touched)
}
