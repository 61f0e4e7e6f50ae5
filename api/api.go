package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/papercomputeco/classroom/api/mcp"
	"github.com/papercomputeco/classroom/proxy"
	"github.com/papercomputeco/classroom/proxy/header"
)

const (
	// QuestionsPath is the route of the question generator function.
	QuestionsPath = "/functions/v1/generate-questions"

	mcpPath = "/mcp"
)

// allowedHeaders are the request headers browsers may send cross-origin.
var allowedHeaders = []string{
	"authorization",
	"x-client-info",
	"apikey",
	"content-type",
	"x-supabase-client-platform",
	"x-supabase-client-platform-version",
	"x-supabase-client-runtime",
	"x-supabase-client-runtime-version",
	strings.ToLower(header.SessionHeader),
}

// Server is the classroom API server.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
	mcp    *mcp.Server

	// mu guards generator
	mu        sync.RWMutex
	generator mcp.QuestionGenerator
}

// generatorFunc adapts a function to mcp.QuestionGenerator.
type generatorFunc func(ctx context.Context, topic string) ([]string, error)

func (f generatorFunc) Generate(ctx context.Context, topic string) ([]string, error) {
	return f(ctx, topic)
}

// NewServer creates a new API server.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if config.Generator == nil {
		return nil, errors.New("question generator is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		logger:    logger,
		app:       app,
		generator: config.Generator,
	}

	mcpConfig := mcp.Config{
		Generator: generatorFunc(s.generate),
		Noop:      config.DisableMCP,
		Logger:    logger,
	}
	if config.Storer != nil {
		mcpConfig.Sessions = config.Storer
	}
	mcpServer, err := mcp.NewServer(mcpConfig)
	if err != nil {
		return nil, err
	}
	s.mcp = mcpServer

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  strings.Join(allowedHeaders, ", "),
		ExposeHeaders: header.SessionHeader,
	}))

	// Streams must reach the client chunk by chunk.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == proxy.ChatPath || strings.HasPrefix(c.Path(), mcpPath)
		},
	}))

	app.Get("/ping", s.handlePing)
	app.Post(QuestionsPath, s.handleGenerateQuestions)

	if config.Storer != nil {
		app.Get("/sessions/:id", s.handleGetSession)
		app.Get("/turns/:id", s.handleGetTurn)
	}

	if config.Relay != nil {
		config.Relay.Register(app)
	}

	app.All(mcpPath, adaptor.HTTPHandler(s.mcp.Handler()))

	return s, nil
}

// SetGenerator swaps the question generator used by later requests.
func (s *Server) SetGenerator(g mcp.QuestionGenerator) {
	if g == nil {
		return
	}

	s.mu.Lock()
	s.generator = g
	s.mu.Unlock()
}

func (s *Server) generate(ctx context.Context, topic string) ([]string, error) {
	s.mu.RLock()
	g := s.generator
	s.mu.RUnlock()

	return g.Generate(ctx, topic)
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the API server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting API server",
		"listen", listener.Addr().String(),
	)
	return s.app.Listener(listener)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
