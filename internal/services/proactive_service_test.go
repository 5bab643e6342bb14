package services

import (
	"testing"

	"canvasmind/internal/models"
)

func TestCandidateBlockFastPath(t *testing.T) {
	svc := NewProactiveService(nil)

	insights := models.NewBusinessInsights()
	insights.CanvasState[models.BlockCustomerSegments] = []string{"Local families"}

	delta := models.NewMemoryDelta()
	delta.Add(models.BlockCustomerSegments, "Local families")

	// customer_segments implies customer_relationships first.
	if got := svc.candidateBlock(insights, delta); got != models.BlockCustomerRelationships {
		t.Errorf("candidate = %q, want %q", got, models.BlockCustomerRelationships)
	}

	// With relationships filled, the next implication wins.
	insights.CanvasState[models.BlockCustomerRelationships] = []string{"Loyalty cards"}
	if got := svc.candidateBlock(insights, delta); got != models.BlockChannels {
		t.Errorf("candidate = %q, want %q", got, models.BlockChannels)
	}
}

func TestCandidateBlockNoneWhenImplicationsFilled(t *testing.T) {
	svc := NewProactiveService(nil)

	insights := models.NewBusinessInsights()
	for _, block := range models.CanvasBlocks {
		insights.CanvasState[block] = []string{"something"}
	}
	delta := models.NewMemoryDelta()
	delta.Add(models.BlockChannels, "something new")

	if got := svc.candidateBlock(insights, delta); got != "" {
		t.Errorf("expected no candidate on a full canvas, got %q", got)
	}
}

func TestStageAndUnstageSuggestion(t *testing.T) {
	insights := models.NewBusinessInsights()
	suggestion := models.ProactiveSuggestion{
		Text:        "Add 'Local delivery' to Channels",
		TargetBlock: models.BlockChannels,
		Confidence:  0.8,
	}

	if !StageSuggestion(&insights, suggestion) {
		t.Fatal("first staging should succeed")
	}
	if StageSuggestion(&insights, suggestion) {
		t.Error("duplicate staging should be a no-op")
	}

	want := models.SystemTopicPrefix + suggestion.Text
	if len(insights.PendingTopics) != 1 || insights.PendingTopics[0] != want {
		t.Errorf("pending topics = %v, want [%q]", insights.PendingTopics, want)
	}

	if !UnstageSuggestion(&insights, suggestion) {
		t.Fatal("unstaging should remove the topic")
	}
	if len(insights.PendingTopics) != 0 {
		t.Errorf("topics remain after unstage: %v", insights.PendingTopics)
	}
	if UnstageSuggestion(&insights, suggestion) {
		t.Error("second unstage should be a no-op")
	}
}
