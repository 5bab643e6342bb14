package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"canvasmind/internal/llm"
	"canvasmind/internal/models"
)

// fakeLLM serves canned chat completions keyed by the structured-output
// schema name in the request.
func fakeLLM(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for schema, content := range responses {
			if strings.Contains(string(body), fmt.Sprintf(`"name":"%s"`, schema)) {
				encoded, _ := json.Marshal(content)
				fmt.Fprintf(w, `{"choices":[{"message":{"content":%s}}]}`, encoded)
				return
			}
		}
		t.Errorf("no canned response for request: %s", body)
		http.Error(w, "no canned response", http.StatusBadRequest)
	}))
}

// Drives a full memory turn against a fake model: the client states a new
// customer segment, extraction produces the delta, the proactive advisor
// targets an implied empty block, and applying both yields the expected
// insights.
func TestTurnMemoryFlow(t *testing.T) {
	current := models.NewBusinessInsights()
	current.CanvasState[models.BlockValuePropositions] = []string{"Handmade sourdough"}

	updated := current.Clone()
	updated.CanvasState[models.BlockCustomerSegments] = []string{"Health-conscious young professionals"}
	updatedJSON, err := json.Marshal(updated)
	if err != nil {
		t.Fatal(err)
	}

	server := fakeLLM(t, map[string]string{
		"business_insights": string(updatedJSON),
		"canvas_suggestion": `{"value":"Weekly check-in calls","target_block":"customer_relationships","confidence":0.85}`,
	})
	defer server.Close()

	client := llm.NewClient(server.URL, "test-key", "main", "utility", 5*time.Second, 100)
	extraction := NewExtractionService(client)
	proactive := NewProactiveService(client)

	delta, err := extraction.ExtractDelta(context.Background(), current,
		"Our customers are mostly health-conscious young professionals", "Good, that sharpens the segment.")
	if err != nil {
		t.Fatalf("ExtractDelta: %v", err)
	}
	if got := delta.Added[models.BlockCustomerSegments]; len(got) != 1 || got[0] != "Health-conscious young professionals" {
		t.Fatalf("segment addition missing: %+v", delta)
	}

	suggestion, err := proactive.GenerateSuggestion(context.Background(), current, delta,
		"Our customers are mostly health-conscious young professionals")
	if err != nil {
		t.Fatalf("GenerateSuggestion: %v", err)
	}
	if suggestion == nil {
		t.Fatal("expected a suggestion")
	}
	if suggestion.TargetBlock != models.BlockCustomerRelationships {
		t.Errorf("target = %q", suggestion.TargetBlock)
	}
	wantText := "Add 'Weekly check-in calls' to Customer Relationships"
	if suggestion.Text != wantText {
		t.Errorf("text = %q, want %q", suggestion.Text, wantText)
	}

	insights := current.Clone()
	if changed := ApplyDelta(&insights, delta); !changed {
		t.Fatal("delta application reported no change")
	}
	if !StageSuggestion(&insights, *suggestion) {
		t.Fatal("staging failed")
	}

	if !models.ContainsFact(insights.CanvasState[models.BlockCustomerSegments], "Health-conscious young professionals") {
		t.Error("segment fact missing after apply")
	}
	wantTopic := models.SystemTopicPrefix + wantText
	if len(insights.PendingTopics) != 1 || insights.PendingTopics[0] != wantTopic {
		t.Errorf("pending topics = %v", insights.PendingTopics)
	}

	// Re-running extraction on the incorporated state yields an empty delta.
	delta2, err := extraction.ExtractDelta(context.Background(), updated,
		"Our customers are mostly health-conscious young professionals", "Good, that sharpens the segment.")
	if err != nil {
		t.Fatalf("second ExtractDelta: %v", err)
	}
	if !delta2.Empty() {
		t.Errorf("replayed turn produced delta %+v", delta2)
	}
}

// A turn whose exchange adds nothing produces an empty delta and no
// suggestion, so nothing would be written.
func TestTurnNoOpProducesNoWork(t *testing.T) {
	current := models.NewBusinessInsights()
	current.CanvasState[models.BlockChannels] = []string{"Instagram"}

	sameJSON, err := json.Marshal(current)
	if err != nil {
		t.Fatal(err)
	}
	server := fakeLLM(t, map[string]string{"business_insights": string(sameJSON)})
	defer server.Close()

	client := llm.NewClient(server.URL, "test-key", "main", "utility", 5*time.Second, 100)
	extraction := NewExtractionService(client)
	proactive := NewProactiveService(client)

	delta, err := extraction.ExtractDelta(context.Background(), current, "thanks!", "You're welcome.")
	if err != nil {
		t.Fatalf("ExtractDelta: %v", err)
	}
	if !delta.Empty() {
		t.Fatalf("expected empty delta, got %+v", delta)
	}

	// An empty delta short-circuits before any model call.
	suggestion, err := proactive.GenerateSuggestion(context.Background(), current, delta, "thanks!")
	if err != nil {
		t.Fatalf("GenerateSuggestion: %v", err)
	}
	if suggestion != nil {
		t.Errorf("no-op turn produced suggestion %+v", suggestion)
	}
}
