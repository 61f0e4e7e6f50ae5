// Package proxy provides the chat relay: it forwards a classroom conversation
// to the upstream completions API and streams the SSE reply back verbatim,
// while assembling the transcript for async storage.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/classroom/pkg/chat"
	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/llm/openai"
	"github.com/papercomputeco/classroom/pkg/llm/upstream"
	"github.com/papercomputeco/classroom/pkg/sse"
	"github.com/papercomputeco/classroom/pkg/storage"
	"github.com/papercomputeco/classroom/proxy/header"
	"github.com/papercomputeco/classroom/proxy/worker"
)

// ChatPath is the route the relay is mounted on.
const ChatPath = "/functions/v1/chat-with-ai"

// Client facing error messages.
const (
	MsgMessagesRequired = "Messages are required"
	MsgInvalidRole      = "Invalid message role"
	MsgRateLimited      = "Rate limits exceeded, please try again later."
	MsgPaymentRequired  = "Payment required"
	MsgGatewayError     = "AI gateway error"
)

// Proxy relays chat conversations to the upstream completions API.
// Every relayed turn is enqueued for async storage via its worker pool.
type Proxy struct {
	config        Config
	target        atomic.Pointer[Target]
	workerPool    *worker.Pool
	logger        *slog.Logger
	headerHandler *header.Handler
}

// New creates a new Proxy. When driver is nil relayed turns are not stored.
func New(config Config, driver storage.Driver, logger *slog.Logger) (*Proxy, error) {
	if config.Target.Client == nil {
		return nil, errors.New("upstream client is required")
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Proxy{
		config:        config,
		logger:        logger,
		headerHandler: header.NewHandler(),
	}
	p.target.Store(&config.Target)

	if driver != nil {
		wp, err := worker.NewPool(&worker.Config{
			Driver:     driver,
			Publisher:  config.Publisher,
			NumWorkers: config.NumWorkers,
			QueueSize:  config.QueueSize,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create worker pool: %w", err)
		}
		p.workerPool = wp
	}

	return p, nil
}

// Register mounts the relay route on router.
func (p *Proxy) Register(router fiber.Router) {
	router.Post(ChatPath, p.handleChat)
}

// SetTarget swaps the upstream used by subsequent requests. Streams already
// in flight keep the target they started with.
func (p *Proxy) SetTarget(t Target) error {
	if t.Client == nil {
		return errors.New("upstream client is required")
	}

	p.target.Store(&t)
	p.logger.Info("chat upstream updated",
		"upstream", t.Client.BaseURL,
		"model", t.Model,
	)
	return nil
}

// Close waits for the worker pool to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Proxy) Close() error {
	if p.workerPool != nil {
		p.workerPool.Close()
	}
	return nil
}

// handleChat validates the conversation, opens the upstream stream, and hands
// the body to relay.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	sessionID := p.headerHandler.SessionID(c)

	var envelope llm.ChatEnvelope
	if err := json.Unmarshal(c.Body(), &envelope); err != nil || len(envelope.Messages) == 0 {
		c.Set(header.SessionHeader, sessionID)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: MsgMessagesRequired})
	}

	for _, msg := range envelope.Messages {
		if !llm.IsConversationRole(msg.Role) {
			c.Set(header.SessionHeader, sessionID)
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: MsgInvalidRole})
		}
	}

	target := *p.target.Load()
	req := p.buildRequest(target, envelope.Messages)

	p.logger.Debug("relaying chat",
		"session", sessionID,
		"model", req.Model,
		"message_count", len(envelope.Messages),
	)

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the relay runs in a
	// separate goroutine and needs the upstream connection to remain open.
	httpResp, err := target.Client.Stream(context.Background(), req)
	if err != nil {
		c.Set(header.SessionHeader, sessionID)

		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			return c.Status(apiErr.StatusCode).JSON(llm.ErrorResponse{Error: statusMessage(apiErr.StatusCode)})
		}

		p.logger.Error("upstream request failed", "session", sessionID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: MsgGatewayError})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)
	if httpResp.Header.Get(fiber.HeaderContentType) == "" {
		c.Set(fiber.HeaderContentType, "text/event-stream")
	}
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(header.SessionHeader, sessionID)

	turn := &storage.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Model:     target.Model,
		Messages:  envelope.Messages,
		CreatedAt: startTime.UTC(),
	}

	// io.Pipe gives per-chunk streaming: pw.Write blocks until fasthttp's
	// chunked body writer has read the data and flushed it to the socket.
	pr, pw := io.Pipe()
	go p.relay(httpResp, pw, turn, startTime)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (p *Proxy) buildRequest(target Target, messages []llm.Message) *llm.ChatRequest {
	all := make([]llm.Message, 0, len(messages)+1)
	if p.config.SystemPrompt != "" {
		all = append(all, llm.NewTextMessage(llm.RoleSystem, p.config.SystemPrompt))
	}
	all = append(all, messages...)

	temperature := target.Temperature
	return &llm.ChatRequest{
		Model:       target.Model,
		Messages:    all,
		Stream:      true,
		Temperature: &temperature,
	}
}

// relay copies the upstream body to pw byte for byte. The decoder reads a tee
// of the body, so the client sees exactly what upstream sent while the deltas
// build the transcript. Bytes after the [DONE] sentinel are forwarded too.
func (p *Proxy) relay(resp *http.Response, pw *io.PipeWriter, turn *storage.Turn, startTime time.Time) {
	defer resp.Body.Close()

	charset := sse.CharsetFromContentType(resp.Header.Get("Content-Type"))
	decoder := sse.NewDecoder(
		io.NopCloser(io.TeeReader(resp.Body, pw)),
		openai.Delta,
		sse.WithCharset(charset),
	)

	var transcript chat.Transcript
	var streamErr error
	for {
		delta, err := decoder.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}
		transcript.Append(delta)
	}
	_ = decoder.Close()

	if streamErr == nil {
		if _, err := io.Copy(pw, resp.Body); err != nil {
			streamErr = err
		}
	}

	if streamErr != nil {
		p.logger.Warn("chat stream interrupted",
			"session", turn.SessionID,
			"received_bytes", transcript.Len(),
			"error", streamErr,
		)
		pw.CloseWithError(streamErr)
	} else {
		pw.Close()
	}

	turn.Reply = transcript.String()
	turn.Partial = streamErr != nil
	turn.Duration = time.Since(startTime)

	p.logger.Debug("chat stream complete",
		"session", turn.SessionID,
		"partial", turn.Partial,
		"duration", turn.Duration,
	)

	if p.workerPool == nil {
		return
	}

	// Non-blocking enqueue for async storage
	p.workerPool.Enqueue(worker.Job{Turn: turn})
}

// statusMessage maps an upstream failure status to the client facing message.
func statusMessage(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return MsgRateLimited
	case http.StatusPaymentRequired:
		return MsgPaymentRequired
	default:
		return MsgGatewayError
	}
}
