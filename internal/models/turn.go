package models

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one entry in a session's conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment is a file the client sends alongside a turn. Data is base64.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// TurnRequest is the inbound payload for a single advisory turn.
type TurnRequest struct {
	ExpertID    string       `json:"expert_id"`
	UserToken   string       `json:"user_token"`
	MessageText string       `json:"message_text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// TurnResponse is the synchronous turn result.
type TurnResponse struct {
	ResponseText        string               `json:"response_text"`
	ProactiveSuggestion *ProactiveSuggestion `json:"proactive_suggestion,omitempty"`
}
