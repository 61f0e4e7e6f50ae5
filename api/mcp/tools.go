package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/questions"
	"github.com/papercomputeco/classroom/pkg/storage"
)

var (
	generateQuestionsToolName    = "generate_questions"
	generateQuestionsDescription = "Generate five review questions about a study topic, ordered from simple to hard."

	sessionHistoryToolName    = "session_history"
	sessionHistoryDescription = "List the stored chat turns of a classroom session, oldest first, including the assistant reply of each turn."
)

// GenerateQuestionsInput represents the input arguments for the generate_questions tool.
type GenerateQuestionsInput struct {
	Topic string `json:"topic" jsonschema:"the study topic to generate questions about"`
}

// GenerateQuestionsOutput represents the output of the generate_questions tool.
type GenerateQuestionsOutput struct {
	Questions []string `json:"questions"`
}

// SessionHistoryInput represents the input arguments for the session_history tool.
type SessionHistoryInput struct {
	SessionID string `json:"session_id" jsonschema:"the chat session id"`
}

// SessionTurn is a single stored turn in the session_history output.
type SessionTurn struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Reply    string `json:"reply"`
	Partial  bool   `json:"partial"`
}

// SessionHistoryOutput represents the output of the session_history tool.
type SessionHistoryOutput struct {
	SessionID string        `json:"session_id"`
	Turns     []SessionTurn `json:"turns"`
	Count     int           `json:"count"`
}

// handleGenerateQuestions processes a generate_questions request. Errors are
// returned as tool errors, not protocol errors.
func (s *Server) handleGenerateQuestions(ctx context.Context, _ *mcp.CallToolRequest, input GenerateQuestionsInput) (*mcp.CallToolResult, GenerateQuestionsOutput, error) {
	s.config.Logger.Debug("MCP generate_questions request", "topic", input.Topic)

	qs, err := s.config.Generator.Generate(ctx, input.Topic)
	if err != nil {
		if errors.Is(err, questions.ErrTopicRequired) {
			return nil, GenerateQuestionsOutput{}, errors.New("topic is required")
		}

		s.config.Logger.Error("MCP question generation failed", "error", err)
		return nil, GenerateQuestionsOutput{}, fmt.Errorf("question generation failed: %w", err)
	}

	if qs == nil {
		qs = []string{}
	}

	return nil, GenerateQuestionsOutput{Questions: qs}, nil
}

// handleSessionHistory processes a session_history request.
func (s *Server) handleSessionHistory(ctx context.Context, _ *mcp.CallToolRequest, input SessionHistoryInput) (*mcp.CallToolResult, SessionHistoryOutput, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, SessionHistoryOutput{}, errors.New("session_id is required")
	}

	turns, err := s.config.Sessions.ListSession(ctx, sessionID)
	if err != nil {
		return nil, SessionHistoryOutput{}, fmt.Errorf("listing session: %w", err)
	}

	out := SessionHistoryOutput{
		SessionID: sessionID,
		Turns:     make([]SessionTurn, 0, len(turns)),
	}
	for _, t := range turns {
		out.Turns = append(out.Turns, SessionTurn{
			ID:       t.ID,
			Question: lastUserMessage(t),
			Reply:    t.Reply,
			Partial:  t.Partial,
		})
	}
	out.Count = len(out.Turns)

	return nil, out, nil
}

func lastUserMessage(t *storage.Turn) string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == llm.RoleUser {
			return t.Messages[i].Content
		}
	}
	return ""
}
