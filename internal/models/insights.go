package models

import (
	"regexp"
	"strings"
)

// Canvas block keys. The nine blocks are fixed; every insights document
// carries all of them, empty or not.
const (
	BlockCustomerSegments      = "customer_segments"
	BlockValuePropositions     = "value_propositions"
	BlockChannels              = "channels"
	BlockCustomerRelationships = "customer_relationships"
	BlockRevenueStreams        = "revenue_streams"
	BlockKeyResources          = "key_resources"
	BlockKeyActivities         = "key_activities"
	BlockKeyPartnerships       = "key_partnerships"
	BlockCostStructure         = "cost_structure"
)

// CanvasBlocks lists the nine block keys in canonical order. Iteration over
// canvas state must use this slice, never map range, so rendered output is
// deterministic.
var CanvasBlocks = []string{
	BlockCustomerSegments,
	BlockValuePropositions,
	BlockChannels,
	BlockCustomerRelationships,
	BlockRevenueStreams,
	BlockKeyResources,
	BlockKeyActivities,
	BlockKeyPartnerships,
	BlockCostStructure,
}

// BlockDisplayNames maps block keys to the names shown in suggestions and
// exports.
var BlockDisplayNames = map[string]string{
	BlockCustomerSegments:      "Customer Segments",
	BlockValuePropositions:     "Value Propositions",
	BlockChannels:              "Channels",
	BlockCustomerRelationships: "Customer Relationships",
	BlockRevenueStreams:        "Revenue Streams",
	BlockKeyResources:          "Key Resources",
	BlockKeyActivities:         "Key Activities",
	BlockKeyPartnerships:       "Key Partnerships",
	BlockCostStructure:         "Cost Structure",
}

// IsCanvasBlock reports whether key is one of the nine fixed block keys.
func IsCanvasBlock(key string) bool {
	_, ok := BlockDisplayNames[key]
	return ok
}

// BlockKeyForDisplayName is the reverse of BlockDisplayNames. Matching is
// case-insensitive so suggestion text like "customer relationships" resolves.
func BlockKeyForDisplayName(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for key, display := range BlockDisplayNames {
		if strings.ToLower(display) == needle {
			return key, true
		}
	}
	return "", false
}

// SystemTopicPrefix marks pending topics staged by the proactive advisor
// rather than captured from the user.
const SystemTopicPrefix = "[SYS] "

// BusinessInsights is the shared living context persisted per profile: the
// canvas itself plus constraints, interaction preferences and open topics.
type BusinessInsights struct {
	CanvasState   map[string][]string `bson:"canvasState" json:"canvas_state"`
	Constraints   []string            `bson:"constraints" json:"constraints"`
	Preferences   []string            `bson:"preferences" json:"preferences"`
	PendingTopics []string            `bson:"pendingTopics" json:"pending_topics"`
}

// NewBusinessInsights returns empty insights with all nine blocks present.
func NewBusinessInsights() BusinessInsights {
	canvas := make(map[string][]string, len(CanvasBlocks))
	for _, block := range CanvasBlocks {
		canvas[block] = []string{}
	}
	return BusinessInsights{
		CanvasState:   canvas,
		Constraints:   []string{},
		Preferences:   []string{},
		PendingTopics: []string{},
	}
}

// Normalize fills in missing blocks, drops empty fact strings and normalized
// duplicates. Called after decoding documents and after LLM output parsing.
func (b *BusinessInsights) Normalize() {
	if b.CanvasState == nil {
		b.CanvasState = make(map[string][]string, len(CanvasBlocks))
	}
	for _, block := range CanvasBlocks {
		b.CanvasState[block] = compactFacts(b.CanvasState[block])
	}
	// Unknown block keys are discarded rather than silently persisted.
	for key := range b.CanvasState {
		if !IsCanvasBlock(key) {
			delete(b.CanvasState, key)
		}
	}
	b.Constraints = compactFacts(b.Constraints)
	b.Preferences = compactFacts(b.Preferences)
	b.PendingTopics = compactFacts(b.PendingTopics)
}

// Clone returns a deep copy. The pipeline mutates candidate insights while
// diffing against the stored snapshot, so the two must not share slices.
func (b BusinessInsights) Clone() BusinessInsights {
	out := BusinessInsights{
		CanvasState:   make(map[string][]string, len(b.CanvasState)),
		Constraints:   append([]string(nil), b.Constraints...),
		Preferences:   append([]string(nil), b.Preferences...),
		PendingTopics: append([]string(nil), b.PendingTopics...),
	}
	for key, facts := range b.CanvasState {
		out.CanvasState[key] = append([]string(nil), facts...)
	}
	return out
}

// Empty reports whether no facts of any kind are recorded.
func (b BusinessInsights) Empty() bool {
	for _, facts := range b.CanvasState {
		if len(facts) > 0 {
			return false
		}
	}
	return len(b.Constraints) == 0 && len(b.Preferences) == 0 && len(b.PendingTopics) == 0
}

var (
	factNormalizeRe = regexp.MustCompile(`[^a-z0-9 ]+`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// NormalizeFact canonicalizes a fact string for dedup and matching:
// lowercase, punctuation stripped, whitespace collapsed.
func NormalizeFact(fact string) string {
	s := strings.ToLower(strings.TrimSpace(fact))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = factNormalizeRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContainsFact reports whether facts already holds fact under normalized
// comparison.
func ContainsFact(facts []string, fact string) bool {
	needle := NormalizeFact(fact)
	if needle == "" {
		return false
	}
	for _, f := range facts {
		if NormalizeFact(f) == needle {
			return true
		}
	}
	return false
}

// AppendFact appends fact unless an equivalent entry is already present.
// Returns the list and whether it grew.
func AppendFact(facts []string, fact string) ([]string, bool) {
	fact = strings.TrimSpace(fact)
	if fact == "" || ContainsFact(facts, fact) {
		return facts, false
	}
	return append(facts, fact), true
}

// RemoveFact removes every entry normalized-equal to fact. Returns the list
// and whether anything was removed.
func RemoveFact(facts []string, fact string) ([]string, bool) {
	needle := NormalizeFact(fact)
	if needle == "" {
		return facts, false
	}
	out := make([]string, 0, len(facts))
	removed := false
	for _, f := range facts {
		if NormalizeFact(f) == needle {
			removed = true
			continue
		}
		out = append(out, f)
	}
	if !removed {
		return facts, false
	}
	return out, true
}

// CapPendingTopics drops the oldest topics beyond max. The most recent
// advisor-staged topic survives even when it falls outside the cap window.
func CapPendingTopics(topics []string, max int) []string {
	if max <= 0 || len(topics) <= max {
		return topics
	}

	keepFrom := len(topics) - max
	kept := append([]string(nil), topics[keepFrom:]...)

	// Find the newest staged topic that the cap would discard.
	var rescued string
	for i := keepFrom - 1; i >= 0; i-- {
		if strings.HasPrefix(topics[i], SystemTopicPrefix) {
			rescued = topics[i]
			break
		}
	}
	if rescued == "" {
		return kept
	}
	for _, topic := range kept {
		if strings.HasPrefix(topic, SystemTopicPrefix) {
			// A newer staged topic already made the cut.
			return kept
		}
	}
	return append([]string{rescued}, kept[1:]...)
}

// compactFacts drops empty strings and normalized duplicates, preserving
// first-seen order.
func compactFacts(facts []string) []string {
	out := make([]string, 0, len(facts))
	seen := make(map[string]bool, len(facts))
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := NormalizeFact(f)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
