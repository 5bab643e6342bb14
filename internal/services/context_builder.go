package services

import (
	"fmt"
	"strings"

	"canvasmind/internal/models"
)

// ContextBuilder renders a profile into the deterministic context block that
// precedes every model call. Identical profile state always renders to
// byte-identical text, so prompt caches stay warm and diffs in logs are
// meaningful.
type ContextBuilder struct{}

// NewContextBuilder returns a builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{}
}

// BuildProfileContext renders the full profile context block.
func (b *ContextBuilder) BuildProfileContext(profile *models.UserProfile) string {
	var sb strings.Builder

	sb.WriteString("=== CLIENT PROFILE ===\n")
	sb.WriteString(fmt.Sprintf("Owner: %s\n", orUnknown(profile.OwnerName)))
	sb.WriteString(fmt.Sprintf("Business: %s\n", orUnknown(profile.BusinessName)))
	sb.WriteString(fmt.Sprintf("Sector: %s\n", orUnknown(profile.Sector)))
	writeFactList(&sb, "Challenges", profile.Challenges)
	writeFactList(&sb, "Goals", profile.Goals)

	sb.WriteString("\n=== BUSINESS MODEL STATE ===\n")
	rendered := false
	for _, block := range models.CanvasBlocks {
		facts := profile.Insights.CanvasState[block]
		if len(facts) == 0 {
			continue
		}
		rendered = true
		sb.WriteString(fmt.Sprintf("%s:\n", models.BlockDisplayNames[block]))
		for _, fact := range facts {
			sb.WriteString(fmt.Sprintf("  - %s\n", fact))
		}
	}
	if !rendered {
		sb.WriteString("(No business model facts recorded yet)\n")
	}

	// Sections with nothing recorded are left out entirely.
	writeSection(&sb, "=== CONSTRAINTS & BOUNDARIES ===", profile.Insights.Constraints)
	writeSection(&sb, "=== USER PREFERENCES ===", profile.Insights.Preferences)
	writeSection(&sb, "=== PENDING TOPICS ===", profile.Insights.PendingTopics)

	return sb.String()
}

// BuildSystemPrompt combines the expert persona with the profile context and
// the advisory ground rules.
func (b *ContextBuilder) BuildSystemPrompt(expert models.Expert, profile *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s, %s.\n", expert.Name, expert.Title))
	sb.WriteString(expert.SystemStyle)
	sb.WriteString("\n\n")
	sb.WriteString("You advise the client below. Respect every recorded constraint and preference. ")
	sb.WriteString("Ground advice in the business model state; never contradict recorded facts without acknowledging the change.\n\n")
	sb.WriteString(b.BuildProfileContext(profile))
	return sb.String()
}

func writeFactList(sb *strings.Builder, label string, facts []string) {
	if len(facts) == 0 {
		sb.WriteString(fmt.Sprintf("%s: (none)\n", label))
		return
	}
	sb.WriteString(fmt.Sprintf("%s:\n", label))
	for _, fact := range facts {
		sb.WriteString(fmt.Sprintf("  - %s\n", fact))
	}
}

func writeSection(sb *strings.Builder, header string, facts []string) {
	if len(facts) == 0 {
		return
	}
	sb.WriteString("\n" + header + "\n")
	for _, fact := range facts {
		sb.WriteString(fmt.Sprintf("- %s\n", fact))
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unknown)"
	}
	return s
}
