package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client talks to an OpenAI-compatible chat completions endpoint. All
// requests pass through a shared rate limiter so burst traffic from
// concurrent turns does not trip provider limits.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	utilityModel string
	httpClient   *http.Client
	limiter      *rate.Limiter
	log          *logrus.Logger
}

// NewClient builds a client for the given endpoint. model serves the main
// advisory turns; utilityModel serves extraction, suggestion and summary
// calls.
func NewClient(baseURL, apiKey, model, utilityModel string, timeout time.Duration, ratePerSecond float64) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		utilityModel: utilityModel,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
		log:          logger,
	}
}

// Model returns the main advisory model name.
func (c *Client) Model() string { return c.model }

// UtilityModel returns the model used for extraction and suggestion calls.
func (c *Client) UtilityModel() string { return c.utilityModel }

// Message is one chat message. Content is either a plain string or a slice
// of ContentPart for multimodal turns.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart is a single element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, typically a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// jsonSchemaFormat is the response_format payload for structured output.
type jsonSchemaFormat struct {
	Type       string        `json:"type"`
	JSONSchema *schemaHolder `json:"json_schema,omitempty"`
}

type schemaHolder struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
	ResponseFormat *jsonSchemaFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete performs a blocking chat completion and returns the full text.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, temperature float64) (string, error) {
	body, err := c.do(ctx, chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("llm error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON performs a completion constrained to the given JSON schema and
// returns the raw JSON text of the single choice.
func (c *Client) CompleteJSON(ctx context.Context, model string, messages []Message, schemaName string, schema json.RawMessage) (string, error) {
	body, err := c.do(ctx, chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0,
		ResponseFormat: &jsonSchemaFormat{
			Type: "json_schema",
			JSONSchema: &schemaHolder{
				Name:   schemaName,
				Strict: true,
				Schema: schema,
			},
		},
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode structured response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("llm error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return stripCodeFence(resp.Choices[0].Message.Content), nil
}

// Stream performs a streaming completion, invoking onDelta for every content
// fragment in arrival order. It returns the concatenated full text. A
// non-nil error from onDelta aborts the stream; generation errors after the
// first delta are reported alongside whatever text arrived.
func (c *Client) Stream(ctx context.Context, model string, messages []Message, temperature float64, onDelta func(string) error) (string, error) {
	body, err := c.do(ctx, chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.log.WithError(err).Warn("skipping malformed stream chunk")
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if onDelta != nil {
				if err := onDelta(choice.Delta.Content); err != nil {
					return full.String(), err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read failed: %w", err)
	}
	return full.String(), nil
}

func (c *Client) do(ctx context.Context, req chatRequest) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	c.log.WithFields(logrus.Fields{
		"model":   req.Model,
		"stream":  req.Stream,
		"latency": time.Since(start).String(),
	}).Debug("llm request accepted")
	return resp.Body, nil
}

// stripCodeFence removes a surrounding markdown code fence some models wrap
// around JSON output even under structured mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
