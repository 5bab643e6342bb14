package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"canvasmind/internal/llm"
	"canvasmind/internal/models"
	"canvasmind/internal/utils"
)

// Pipeline stage names, used in logs and metrics labels.
const (
	stageExtract   = "extract"
	stageSuggest   = "suggest"
	stageSummarize = "summarize"
	stagePersist   = "persist"
)

// persistTimeout bounds post-turn persistence. Persistence runs on its own
// context so a client disconnect mid-stream never loses the turn's memory.
const persistTimeout = 30 * time.Second

// PipelineService orchestrates a full advisory turn: context assembly,
// generation, memory extraction, proactive suggestion, optional history
// summarization and persistence. Generation failures abort the turn; every
// later stage degrades gracefully so the client always gets the response
// that was generated.
type PipelineService struct {
	llmClient  *llm.Client
	builder    *ContextBuilder
	extraction *ExtractionService
	proactive  *ProactiveService
	profiles   *ProfileService
	sessions   *SessionService

	summaryThreshold     int
	messagesAfterSummary int
	maxPendingTopics     int
}

// NewPipelineService wires the pipeline.
func NewPipelineService(
	llmClient *llm.Client,
	builder *ContextBuilder,
	extraction *ExtractionService,
	proactive *ProactiveService,
	profiles *ProfileService,
	sessions *SessionService,
	summaryThreshold, messagesAfterSummary, maxPendingTopics int,
) *PipelineService {
	return &PipelineService{
		llmClient:            llmClient,
		builder:              builder,
		extraction:           extraction,
		proactive:            proactive,
		profiles:             profiles,
		sessions:             sessions,
		summaryThreshold:     summaryThreshold,
		messagesAfterSummary: messagesAfterSummary,
		maxPendingTopics:     maxPendingTopics,
	}
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	ResponseText string
	Suggestion   *models.ProactiveSuggestion
}

// RunTurn executes a full advisory turn. When onDelta is non-nil the
// response streams through it chunk by chunk; errors from onDelta stop
// streaming but not the turn, so memory work still completes.
func (p *PipelineService) RunTurn(ctx context.Context, req models.TurnRequest, onDelta func(string) error) (*TurnResult, error) {
	start := time.Now()

	expert, ok := ExpertByID(req.ExpertID)
	if !ok {
		turnsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("unknown expert %q", req.ExpertID)
	}
	profile, err := p.profiles.GetProfileByToken(ctx, req.UserToken)
	if err != nil {
		turnsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	messages := p.assembleMessages(expert, profile, req)

	responseText, genErr := p.generate(ctx, messages, onDelta)
	if genErr != nil && responseText == "" {
		turnsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("generation failed: %w", genErr)
	}
	if genErr != nil {
		// Partial output reached the client; carry on with what we have.
		log.Printf("⚠️ [PIPELINE] Generation ended early for %s: %v", req.UserToken, genErr)
	}

	p.sessions.Append(req.UserToken, req.ExpertID,
		models.ChatMessage{Role: models.RoleUser, Content: req.MessageText},
		models.ChatMessage{Role: models.RoleAssistant, Content: responseText},
	)

	// Post-response stages use a detached context so a dropped client
	// cannot cancel memory work.
	bgCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	delta := p.extract(bgCtx, profile, req.MessageText, responseText)
	suggestion := p.suggest(bgCtx, profile, delta, req.MessageText)
	p.maybeSummarize(bgCtx, req.UserToken, req.ExpertID)
	p.persist(bgCtx, req.UserToken, delta, suggestion)

	turnsTotal.WithLabelValues("ok").Inc()
	turnDuration.Observe(time.Since(start).Seconds())

	return &TurnResult{ResponseText: responseText, Suggestion: suggestion}, nil
}

func (p *PipelineService) generate(ctx context.Context, messages []llm.Message, onDelta func(string) error) (string, error) {
	if onDelta == nil {
		return p.llmClient.Complete(ctx, p.llmClient.Model(), messages, 0.7)
	}
	return p.llmClient.Stream(ctx, p.llmClient.Model(), messages, 0.7, onDelta)
}

func (p *PipelineService) assembleMessages(expert models.Expert, profile *models.UserProfile, req models.TurnRequest) []llm.Message {
	messages := []llm.Message{
		llm.TextMessage(models.RoleSystem, p.builder.BuildSystemPrompt(expert, profile)),
	}
	for _, msg := range p.sessions.History(req.UserToken, req.ExpertID) {
		messages = append(messages, llm.TextMessage(msg.Role, msg.Content))
	}
	messages = append(messages, p.userMessage(req))
	return messages
}

// userMessage builds the turn's user message, inlining PDF text and
// attaching images as data URLs. Unreadable attachments are noted in the
// prompt rather than failing the turn.
func (p *PipelineService) userMessage(req models.TurnRequest) llm.Message {
	if len(req.Attachments) == 0 {
		return llm.TextMessage(models.RoleUser, req.MessageText)
	}

	var text strings.Builder
	text.WriteString(req.MessageText)
	parts := []llm.ContentPart{}

	for _, att := range req.Attachments {
		data, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			text.WriteString(fmt.Sprintf("\n\n[Attachment %s could not be decoded]", att.Name))
			continue
		}
		switch {
		case att.MimeType == "application/pdf":
			pdfText, err := utils.ExtractPDFText(data)
			if err != nil {
				text.WriteString(fmt.Sprintf("\n\n[Attachment %s could not be read]", att.Name))
				continue
			}
			text.WriteString(fmt.Sprintf("\n\n--- Attached document: %s ---\n%s", att.Name, pdfText))
		case strings.HasPrefix(att.MimeType, "image/"):
			parts = append(parts, llm.ContentPart{
				Type:     "image_url",
				ImageURL: &llm.ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", att.MimeType, att.Data)},
			})
		default:
			text.WriteString(fmt.Sprintf("\n\n[Attachment %s has unsupported type %s]", att.Name, att.MimeType))
		}
	}

	if len(parts) == 0 {
		return llm.TextMessage(models.RoleUser, text.String())
	}
	parts = append([]llm.ContentPart{{Type: "text", Text: text.String()}}, parts...)
	return llm.Message{Role: models.RoleUser, Content: parts}
}

func (p *PipelineService) extract(ctx context.Context, profile *models.UserProfile, userMessage, responseText string) models.MemoryDelta {
	delta, err := p.extraction.ExtractDelta(ctx, profile.Insights, userMessage, responseText)
	if err != nil {
		stageFailures.WithLabelValues(stageExtract).Inc()
		log.Printf("⚠️ [PIPELINE] Extraction failed for %s: %v", profile.Token, err)
		return models.NewMemoryDelta()
	}
	return delta
}

func (p *PipelineService) suggest(ctx context.Context, profile *models.UserProfile, delta models.MemoryDelta, userMessage string) *models.ProactiveSuggestion {
	suggestion, err := p.proactive.GenerateSuggestion(ctx, profile.Insights, delta, userMessage)
	if err != nil {
		stageFailures.WithLabelValues(stageSuggest).Inc()
		log.Printf("⚠️ [PIPELINE] Suggestion failed for %s: %v", profile.Token, err)
		return nil
	}
	if suggestion != nil {
		suggestionsEmitted.Inc()
	}
	return suggestion
}

func (p *PipelineService) maybeSummarize(ctx context.Context, token, expertID string) {
	history := p.sessions.History(token, expertID)
	if len(history) <= p.summaryThreshold {
		return
	}

	head := history[:len(history)-p.messagesAfterSummary]
	tail := history[len(history)-p.messagesAfterSummary:]

	var transcript strings.Builder
	for _, msg := range head {
		transcript.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}

	summary, err := p.llmClient.Complete(ctx, p.llmClient.UtilityModel(), []llm.Message{
		llm.TextMessage(models.RoleSystem, "Summarize this advisory conversation in a compact paragraph. Keep every business fact, decision and open question; drop pleasantries."),
		llm.TextMessage(models.RoleUser, transcript.String()),
	}, 0)
	if err != nil {
		stageFailures.WithLabelValues(stageSummarize).Inc()
		log.Printf("⚠️ [PIPELINE] Summarization failed for %s: %v", token, err)
		return
	}

	p.sessions.ReplaceWithSummary(token, expertID, summary, tail)
	log.Printf("📝 [PIPELINE] Summarized %d messages for %s", len(head), token)
}

func (p *PipelineService) persist(ctx context.Context, token string, delta models.MemoryDelta, suggestion *models.ProactiveSuggestion) {
	if delta.Empty() && suggestion == nil {
		memoryWritesSkipped.Inc()
		return
	}

	err := p.profiles.MutateInsights(ctx, token, func(insights *models.BusinessInsights) bool {
		changed := ApplyDelta(insights, delta)
		if suggestion != nil && StageSuggestion(insights, *suggestion) {
			changed = true
		}
		TrimPendingTopics(insights, p.maxPendingTopics)
		return changed
	})
	if err != nil {
		stageFailures.WithLabelValues(stagePersist).Inc()
		log.Printf("❌ [PIPELINE] Persist failed for %s: %v", token, err)
	}
}

// ResolveSuggestion applies a client verdict on a previously surfaced
// suggestion. Accepting writes the quoted value into the target block and
// clears the staged topic; dismissing only clears the topic. Either way the
// operation is idempotent.
func (p *PipelineService) ResolveSuggestion(ctx context.Context, token string, suggestion models.ProactiveSuggestion, accepted bool) error {
	verdict := "dismissed"
	if accepted {
		verdict = "accepted"
	}

	err := p.profiles.MutateInsights(ctx, token, func(insights *models.BusinessInsights) bool {
		changed := UnstageSuggestion(insights, suggestion)
		// Only grammar-valid text produces a canvas write; anything else
		// still clears the staged topic.
		if value := suggestion.QuotedValue(); accepted && value != "" && models.IsCanvasBlock(suggestion.TargetBlock) {
			var grew bool
			insights.CanvasState[suggestion.TargetBlock], grew =
				models.AppendFact(insights.CanvasState[suggestion.TargetBlock], value)
			changed = changed || grew
		}
		return changed
	})
	if err != nil {
		return err
	}
	suggestionsResolved.WithLabelValues(verdict).Inc()
	log.Printf("💡 [PIPELINE] Suggestion %s for %s (%s)", verdict, token, suggestion.TargetBlock)
	return nil
}
