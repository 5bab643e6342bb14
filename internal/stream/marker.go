package stream

import (
	"fmt"
	"strings"

	"canvasmind/internal/models"
)

// Suggestion marker framing. The marker is appended to a response stream
// after every content chunk, so clients can split advisory text from the
// machine-readable suggestion without escaping the text itself.
const (
	MarkerOpen  = "[PROACTIVE_SUGGESTION]"
	MarkerClose = "[/PROACTIVE_SUGGESTION]"
	markerSep   = "|"
)

// EncodeMarker renders the framed suggestion marker.
func EncodeMarker(s models.ProactiveSuggestion) string {
	return MarkerOpen + s.Text + markerSep + s.TargetBlock + MarkerClose
}

// ParseResult classifies a chunk inspected for a suggestion marker.
type ParseResult int

const (
	// NotAMarker means the chunk is ordinary content.
	NotAMarker ParseResult = iota
	// Valid means the chunk is a well-formed marker and the suggestion
	// fields were extracted.
	Valid
	// Malformed means the chunk carries marker framing but its payload
	// cannot be parsed. Clients render nothing for it.
	Malformed
)

// ParseMarker inspects a single chunk. Only a chunk that is exactly one
// framed marker parses as Valid; marker framing with a broken payload is
// Malformed; everything else is content.
//
// The payload may legally contain '|' inside the suggestion text, so the
// block key is taken after the last separator.
func ParseMarker(chunk string) (models.ProactiveSuggestion, ParseResult) {
	trimmed := strings.TrimSpace(chunk)
	if !strings.HasPrefix(trimmed, MarkerOpen) {
		return models.ProactiveSuggestion{}, NotAMarker
	}
	if !strings.HasSuffix(trimmed, MarkerClose) {
		return models.ProactiveSuggestion{}, Malformed
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(trimmed, MarkerOpen), MarkerClose)
	sep := strings.LastIndex(payload, markerSep)
	if sep < 0 {
		return models.ProactiveSuggestion{}, Malformed
	}

	text := strings.TrimSpace(payload[:sep])
	block := strings.TrimSpace(payload[sep+1:])
	if text == "" || !models.IsCanvasBlock(block) {
		return models.ProactiveSuggestion{}, Malformed
	}

	return models.ProactiveSuggestion{
		Text:        text,
		TargetBlock: block,
	}, Valid
}

// String implements fmt.Stringer for log output.
func (r ParseResult) String() string {
	switch r {
	case NotAMarker:
		return "not_a_marker"
	case Valid:
		return "valid"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("ParseResult(%d)", int(r))
	}
}
