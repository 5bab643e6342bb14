package models

import (
	"errors"
	"testing"
)

func TestParseSuggestionText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantValue string
		wantBlock string
		wantErr   bool
	}{
		{
			name:      "canonical form",
			text:      "Add 'Subscription boxes' to Revenue Streams",
			wantValue: "Subscription boxes",
			wantBlock: BlockRevenueStreams,
		},
		{
			name:      "trailing rationale",
			text:      "Add 'Local delivery' to Channels - clients nearby asked for it",
			wantValue: "Local delivery",
			wantBlock: BlockChannels,
		},
		{
			name:    "unknown block",
			text:    "Add 'Something' to Secret Plans",
			wantErr: true,
		},
		{
			name:    "missing quotes",
			text:    "Add subscription boxes to Revenue Streams",
			wantErr: true,
		},
		{
			name:    "free text",
			text:    "You should think about pricing",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, block, err := ParseSuggestionText(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedSuggestion) {
					t.Fatalf("expected ErrMalformedSuggestion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value != tt.wantValue || block != tt.wantBlock {
				t.Errorf("got (%q, %q), want (%q, %q)", value, block, tt.wantValue, tt.wantBlock)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	text := FormatSuggestionText("Weekly newsletter", BlockCustomerRelationships)
	value, block, err := ParseSuggestionText(text)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if value != "Weekly newsletter" || block != BlockCustomerRelationships {
		t.Errorf("round trip got (%q, %q)", value, block)
	}
}

func TestShouldShow(t *testing.T) {
	base := ProactiveSuggestion{
		Text:        "Add 'Local delivery' to Channels",
		TargetBlock: BlockChannels,
		Confidence:  0.8,
	}
	if !base.ShouldShow() {
		t.Error("expected confident valid suggestion to show")
	}

	low := base
	low.Confidence = 0.59
	if low.ShouldShow() {
		t.Error("expected sub-threshold confidence to suppress")
	}

	badBlock := base
	badBlock.TargetBlock = "not_a_block"
	if badBlock.ShouldShow() {
		t.Error("expected unknown block to suppress")
	}
}
