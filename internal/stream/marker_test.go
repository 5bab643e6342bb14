package stream

import (
	"testing"

	"canvasmind/internal/models"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		name       string
		chunk      string
		wantResult ParseResult
		wantText   string
		wantBlock  string
	}{
		{
			name:       "valid marker",
			chunk:      "[PROACTIVE_SUGGESTION]Add 'Local delivery' to Channels|channels[/PROACTIVE_SUGGESTION]",
			wantResult: Valid,
			wantText:   "Add 'Local delivery' to Channels",
			wantBlock:  models.BlockChannels,
		},
		{
			name:       "pipe inside suggestion text",
			chunk:      "[PROACTIVE_SUGGESTION]Add 'B2B | B2C split' to Customer Segments|customer_segments[/PROACTIVE_SUGGESTION]",
			wantResult: Valid,
			wantText:   "Add 'B2B | B2C split' to Customer Segments",
			wantBlock:  models.BlockCustomerSegments,
		},
		{
			name:       "ordinary content",
			chunk:      "Here is some advice about your channels.",
			wantResult: NotAMarker,
		},
		{
			name:       "unterminated marker",
			chunk:      "[PROACTIVE_SUGGESTION]Add 'x' to Channels|channels",
			wantResult: Malformed,
		},
		{
			name:       "missing separator",
			chunk:      "[PROACTIVE_SUGGESTION]Add 'x' to Channels[/PROACTIVE_SUGGESTION]",
			wantResult: Malformed,
		},
		{
			name:       "unknown block key",
			chunk:      "[PROACTIVE_SUGGESTION]Add 'x' to Channels|secret_block[/PROACTIVE_SUGGESTION]",
			wantResult: Malformed,
		},
		{
			name:       "empty payload text",
			chunk:      "[PROACTIVE_SUGGESTION]|channels[/PROACTIVE_SUGGESTION]",
			wantResult: Malformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestion, result := ParseMarker(tt.chunk)
			if result != tt.wantResult {
				t.Fatalf("result = %v, want %v", result, tt.wantResult)
			}
			if result != Valid {
				return
			}
			if suggestion.Text != tt.wantText || suggestion.TargetBlock != tt.wantBlock {
				t.Errorf("got (%q, %q), want (%q, %q)",
					suggestion.Text, suggestion.TargetBlock, tt.wantText, tt.wantBlock)
			}
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	original := models.ProactiveSuggestion{
		Text:        "Add 'Subscription boxes' to Revenue Streams",
		TargetBlock: models.BlockRevenueStreams,
	}
	suggestion, result := ParseMarker(EncodeMarker(original))
	if result != Valid {
		t.Fatalf("expected Valid, got %v", result)
	}
	if suggestion.Text != original.Text || suggestion.TargetBlock != original.TargetBlock {
		t.Errorf("round trip mismatch: %+v", suggestion)
	}
}
