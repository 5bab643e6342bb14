package services

import (
	"testing"
	"time"

	"canvasmind/internal/models"
)

func TestSessionAppendAndHistory(t *testing.T) {
	s := NewSessionService(time.Minute)

	s.Append("tok", "strategy",
		models.ChatMessage{Role: models.RoleUser, Content: "hi"},
		models.ChatMessage{Role: models.RoleAssistant, Content: "hello"},
	)
	s.Append("tok", "finance", models.ChatMessage{Role: models.RoleUser, Content: "numbers"})

	if got := s.History("tok", "strategy"); len(got) != 2 || got[0].Content != "hi" {
		t.Errorf("strategy history = %v", got)
	}
	if got := s.History("tok", "finance"); len(got) != 1 {
		t.Errorf("finance history = %v", got)
	}
	if got := s.History("other", "strategy"); got != nil {
		t.Errorf("expected empty history for unknown token, got %v", got)
	}

	// History returns a copy.
	h := s.History("tok", "strategy")
	h[0].Content = "mutated"
	if s.History("tok", "strategy")[0].Content != "hi" {
		t.Error("History exposed internal slice")
	}
}

func TestReplaceWithSummary(t *testing.T) {
	s := NewSessionService(time.Minute)
	s.Append("tok", "strategy",
		models.ChatMessage{Role: models.RoleUser, Content: "a"},
		models.ChatMessage{Role: models.RoleAssistant, Content: "b"},
		models.ChatMessage{Role: models.RoleUser, Content: "c"},
	)

	tail := s.History("tok", "strategy")[2:]
	s.ReplaceWithSummary("tok", "strategy", "we discussed pricing", tail)

	history := s.History("tok", "strategy")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != models.RoleSystem {
		t.Error("summary should lead as a system message")
	}
	if history[1].Content != "c" {
		t.Errorf("tail lost: %v", history)
	}
}

func TestClearDropsAllExperts(t *testing.T) {
	s := NewSessionService(time.Minute)
	s.Append("tok", "strategy", models.ChatMessage{Role: models.RoleUser, Content: "a"})
	s.Append("tok", "finance", models.ChatMessage{Role: models.RoleUser, Content: "b"})
	s.Append("tok2", "strategy", models.ChatMessage{Role: models.RoleUser, Content: "keep"})

	s.Clear("tok")

	if s.History("tok", "strategy") != nil || s.History("tok", "finance") != nil {
		t.Error("Clear left sessions behind")
	}
	if len(s.History("tok2", "strategy")) != 1 {
		t.Error("Clear removed another token's session")
	}
}
