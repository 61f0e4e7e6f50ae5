// Package questions generates diagnostic question sets: given a topic, the
// upstream model proposes five questions ordered from simple to hard so a
// teacher can find out what a student does not know yet.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/llm/upstream"
	"github.com/papercomputeco/classroom/pkg/utils"
)

const (
	DefaultModel       = "mistral-medium-latest"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
	defaultTopP        = 1.0

	// DefaultSystemPrompt asks for five questions, simple to hard, as
	// {"questions": [...]}.
	DefaultSystemPrompt = `Ты помощник учителя. Ученик задаёт тебе интересующую его тему, а ты должен придумать пять вопросов — от простого к сложному. Чтобы понять, что именно ученик не знает. Выдавай ответ в виде JSON: {"questions": ["вопрос1", "вопрос2", "вопрос3", "вопрос4", "вопрос5"]}`
)

var (
	// ErrTopicRequired is returned for an empty or blank topic.
	ErrTopicRequired = errors.New("topic is required")

	// ErrNotConfigured is returned when no upstream client is available,
	// typically because no API key was provided.
	ErrNotConfigured = errors.New("MISTRAL_API_KEY is not configured")
)

// UpstreamError reports a non-2xx answer from the upstream API.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream API error: %d", e.StatusCode)
}

// Completer sends a non-streamed chat completion request.
type Completer interface {
	Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// Generator turns topics into question sets.
type Generator struct {
	// Upstream answers the completion request. A nil Upstream makes every
	// Generate call fail with ErrNotConfigured.
	Upstream Completer

	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	Logger *slog.Logger
}

// NewGenerator returns a Generator with the default request parameters.
func NewGenerator(up Completer, logger *slog.Logger) *Generator {
	return &Generator{
		Upstream:     up,
		Model:        DefaultModel,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		SystemPrompt: DefaultSystemPrompt,
		Logger:       logger,
	}
}

// Generate asks the upstream model for questions about topic.
func (g *Generator) Generate(ctx context.Context, topic string) ([]string, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrTopicRequired
	}
	if g.Upstream == nil {
		return nil, ErrNotConfigured
	}

	resp, err := g.Upstream.Complete(ctx, g.request(topic))
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			g.logger().Error("question generation failed",
				"status", apiErr.StatusCode,
				"body", utils.Truncate(apiErr.Body, 256),
			)
			return nil, &UpstreamError{StatusCode: apiErr.StatusCode}
		}
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	questions := ParseQuestions(resp.Message.Content)

	g.logger().Debug("questions generated",
		"model", resp.Model,
		"count", len(questions),
	)

	return questions, nil
}

func (g *Generator) request(topic string) *llm.ChatRequest {
	model := g.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := g.Temperature
	maxTokens := g.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	topP := defaultTopP
	prompt := g.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	return &llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, prompt),
			llm.NewTextMessage(llm.RoleUser, topic),
		},
		MaxTokens:      &maxTokens,
		Temperature:    &temperature,
		TopP:           &topP,
		ResponseFormat: "json_object",
	}
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// ParseQuestions extracts the "questions" array from a model reply. Content
// that is not JSON is returned as a single question; a JSON document without
// the key yields an empty list.
func ParseQuestions(content string) []string {
	if strings.TrimSpace(content) == "" {
		return []string{}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		var v json.RawMessage
		if json.Unmarshal([]byte(content), &v) == nil {
			// Valid JSON, but not an object.
			return []string{}
		}
		return []string{content}
	}

	raw, ok := doc["questions"]
	if !ok {
		return []string{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if json.Unmarshal(raw, &single) == nil && single != "" {
			return []string{single}
		}
		return []string{}
	}

	questions := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			questions = append(questions, s)
			continue
		}
		if string(item) != "null" {
			questions = append(questions, string(item))
		}
	}

	return questions
}
