package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/questions"
	"github.com/papercomputeco/classroom/pkg/storage"
)

// msgTopicRequired is the error message for a missing topic.
const msgTopicRequired = "Topic is required"

// SessionResponse lists the stored turns of a session.
type SessionResponse struct {
	SessionID string          `json:"session_id"`
	Count     int             `json:"count"`
	Turns     []*storage.Turn `json:"turns"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGenerateQuestions answers {"topic": ...} with {"questions": [...]}.
func (s *Server) handleGenerateQuestions(c *fiber.Ctx) error {
	var req questions.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: msgTopicRequired})
	}

	qs, err := s.generate(c.UserContext(), req.Topic)
	if err != nil {
		if errors.Is(err, questions.ErrTopicRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: msgTopicRequired})
		}

		s.logger.Error("question generation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	if qs == nil {
		qs = []string{}
	}

	return c.JSON(questions.Response{Questions: qs})
}

// handleGetSession returns the stored turns of a session, oldest first.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "session id required"})
	}

	turns, err := s.config.Storer.ListSession(c.UserContext(), id)
	if err != nil {
		s.logger.Error("failed to list session", "session", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list session"})
	}

	if len(turns) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "session not found"})
	}

	return c.JSON(SessionResponse{
		SessionID: id,
		Count:     len(turns),
		Turns:     turns,
	})
}

// handleGetTurn returns a single stored turn by its id.
func (s *Server) handleGetTurn(c *fiber.Ctx) error {
	id := c.Params("id")

	turn, err := s.config.Storer.Get(c.UserContext(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "turn not found"})
		}

		s.logger.Error("failed to get turn", "turn_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get turn"})
	}

	return c.JSON(turn)
}
