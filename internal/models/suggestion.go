package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MinSuggestionConfidence is the floor below which a generated suggestion is
// discarded instead of surfaced.
const MinSuggestionConfidence = 0.6

// ProactiveSuggestion is a single advisor-initiated canvas improvement
// prompt produced after a turn's main response.
type ProactiveSuggestion struct {
	Text        string    `json:"text"`
	TargetBlock string    `json:"target_block"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// ShouldShow reports whether the suggestion clears the confidence floor and
// names a real canvas block.
func (s ProactiveSuggestion) ShouldShow() bool {
	return s.Confidence >= MinSuggestionConfidence && IsCanvasBlock(s.TargetBlock) && strings.TrimSpace(s.Text) != ""
}

// PendingTopic renders the suggestion as a staged pending topic entry.
func (s ProactiveSuggestion) PendingTopic() string {
	return SystemTopicPrefix + s.Text
}

// Suggestion text follows the fixed grammar: Add '<value>' to <Display Name>,
// optionally followed by a dash and free-form rationale.
var suggestionGrammarRe = regexp.MustCompile(`^Add '(.+?)' to ([A-Za-z ]+?)(?:\s*[-].*)?$`)

// ErrMalformedSuggestion is returned by ParseSuggestionText when text does
// not follow the suggestion grammar.
var ErrMalformedSuggestion = errors.New("suggestion text does not match grammar")

// FormatSuggestionText renders the canonical suggestion phrasing for value
// and the given canvas block key.
func FormatSuggestionText(value, blockKey string) string {
	return fmt.Sprintf("Add '%s' to %s", value, BlockDisplayNames[blockKey])
}

// ParseSuggestionText extracts the quoted value and target block key from
// suggestion text.
func ParseSuggestionText(text string) (value, blockKey string, err error) {
	m := suggestionGrammarRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", ErrMalformedSuggestion
	}
	key, ok := BlockKeyForDisplayName(m[2])
	if !ok {
		return "", "", fmt.Errorf("%w: unknown block %q", ErrMalformedSuggestion, m[2])
	}
	return m[1], key, nil
}

// QuotedValue returns the value embedded in the suggestion's own text, or
// empty when the text does not follow the grammar.
func (s ProactiveSuggestion) QuotedValue() string {
	value, _, err := ParseSuggestionText(s.Text)
	if err != nil {
		return ""
	}
	return value
}
