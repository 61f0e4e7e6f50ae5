// Package openai encodes and decodes the OpenAI-compatible Chat Completions
// wire format, as served by Mistral and other compatible upstreams.
package openai

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/papercomputeco/classroom/pkg/llm"
)

// ErrNoChoices is returned by ParseResponse when the upstream answered with an
// empty choices array.
var ErrNoChoices = errors.New("response has no choices")

// MarshalRequest converts a ChatRequest into a Chat Completions request body.
func MarshalRequest(req *llm.ChatRequest) ([]byte, error) {
	if req == nil {
		return nil, errors.New("cannot marshal nil request")
	}

	out := chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	if req.ResponseFormat != "" {
		out.ResponseFormat = &responseFormat{Type: req.ResponseFormat}
	}

	return json.Marshal(out)
}

// ParseResponse converts a non-streamed Chat Completions response into the
// internal format. Only the first choice is kept.
func ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	role := choice.Message.Role
	if role == "" {
		role = llm.RoleAssistant
	}

	result := &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.NewTextMessage(role, choice.Message.Content),
		StopReason: choice.FinishReason,
		Usage:      convertUsage(resp.Usage),
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}

	return result, nil
}

// Delta extracts choices[0].delta.content from a streaming payload. Any valid
// JSON document is accepted: a payload of another shape simply carries no
// text. An error is returned only when payload is not valid JSON.
func Delta(payload []byte) (string, error) {
	var chunkData any
	if err := json.Unmarshal(payload, &chunkData); err != nil {
		return "", err
	}

	obj, ok := chunkData.(map[string]any)
	if !ok {
		return "", nil
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", nil
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", nil
	}

	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return "", nil
	}

	content, _ := delta["content"].(string)
	return content, nil
}

func convertUsage(u *chatUsage) *llm.Usage {
	if u == nil {
		return nil
	}

	return &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
