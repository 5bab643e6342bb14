package services

import (
	"time"

	"github.com/patrickmn/go-cache"

	"canvasmind/internal/models"
)

// SessionService keeps per-profile conversation history in memory with a
// sliding TTL. History is an ephemeral working set; durable knowledge lives
// in the profile's insights.
type SessionService struct {
	store *cache.Cache
}

// NewSessionService builds the service. Sessions idle longer than ttl are
// dropped.
func NewSessionService(ttl time.Duration) *SessionService {
	return &SessionService{
		store: cache.New(ttl, ttl/2),
	}
}

func sessionKey(token, expertID string) string {
	return token + ":" + expertID
}

// History returns a copy of the session's messages, oldest first.
func (s *SessionService) History(token, expertID string) []models.ChatMessage {
	v, ok := s.store.Get(sessionKey(token, expertID))
	if !ok {
		return nil
	}
	history := v.([]models.ChatMessage)
	return append([]models.ChatMessage(nil), history...)
}

// Append adds messages to the session and refreshes its TTL.
func (s *SessionService) Append(token, expertID string, messages ...models.ChatMessage) {
	key := sessionKey(token, expertID)
	history := []models.ChatMessage{}
	if v, ok := s.store.Get(key); ok {
		history = v.([]models.ChatMessage)
	}
	history = append(history, messages...)
	s.store.Set(key, history, cache.DefaultExpiration)
}

// ReplaceWithSummary collapses the session into a summary message followed
// by the given tail of recent messages.
func (s *SessionService) ReplaceWithSummary(token, expertID, summary string, tail []models.ChatMessage) {
	history := make([]models.ChatMessage, 0, len(tail)+1)
	history = append(history, models.ChatMessage{
		Role:    models.RoleSystem,
		Content: "Summary of the conversation so far: " + summary,
	})
	history = append(history, tail...)
	s.store.Set(sessionKey(token, expertID), history, cache.DefaultExpiration)
}

// Clear drops every session belonging to token, across experts.
func (s *SessionService) Clear(token string) {
	for key := range s.store.Items() {
		if len(key) > len(token) && key[:len(token)+1] == token+":" {
			s.store.Delete(key)
		}
	}
}
