// Package mcp provides an MCP (Model Context Protocol) server exposing the
// classroom question generator and stored chat sessions as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/classroom/pkg/storage"
	"github.com/papercomputeco/classroom/pkg/utils"
)

// QuestionGenerator produces review questions for a topic.
type QuestionGenerator interface {
	Generate(ctx context.Context, topic string) ([]string, error)
}

// SessionLister lists the stored turns of a chat session.
type SessionLister interface {
	ListSession(ctx context.Context, sessionID string) ([]*storage.Turn, error)
}

type Config struct {
	// Generator backs the generate_questions tool
	Generator QuestionGenerator

	// Sessions backs the session_history tool (optional)
	Sessions SessionLister

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the classroom tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "classroom",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Generator == nil {
			return nil, errors.New("question generator is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        generateQuestionsToolName,
			Description: generateQuestionsDescription,
		}, s.handleGenerateQuestions)

		if c.Sessions != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        sessionHistoryToolName,
				Description: sessionHistoryDescription,
			}, s.handleSessionHistory)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, e.g. to connect an
// in-process transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
