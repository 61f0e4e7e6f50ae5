package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/llm/openai"
	"github.com/papercomputeco/classroom/pkg/sse"
)

// SessionHeader carries the chat session id between client and service.
const SessionHeader = "X-Session-Id"

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoint is the full URL of the chat-with-ai function.
	Endpoint string

	// Token is sent as "Authorization: Bearer <token>" when set.
	Token string

	// SessionID is sent as X-Session-Id when set.
	SessionID string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client streams assistant replies from the chat-with-ai endpoint.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Client. Zero HTTPClient and Logger fields fall back to
// http.DefaultClient and a discarding logger.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: cfg.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Open posts messages and returns a Decoder over the streamed reply. The
// caller owns the Decoder and must drain or Close it.
func (c *Client) Open(ctx context.Context, messages []llm.Message) (*sse.Decoder, error) {
	body, err := json.Marshal(llm.ChatEnvelope{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.SessionID != "" {
		req.Header.Set(SessionHeader, c.cfg.SessionID)
	}

	c.logger.Debug("opening chat stream",
		"endpoint", c.cfg.Endpoint,
		"messages", len(messages),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, requestFailed(resp)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrEmptyResponse
	}

	charset := sse.CharsetFromContentType(resp.Header.Get("Content-Type"))
	return sse.NewDecoder(resp.Body, openai.Delta, sse.WithCharset(charset)), nil
}

// Stream sends the conversation, folds every delta into conv, and calls
// onDelta (when non-nil) as deltas arrive. It returns the reply transcript.
//
// When the transport fails after at least one delta, Stream returns the
// partial transcript with an error wrapping ErrInterrupted; the partial
// assistant message stays in conv.
func (c *Client) Stream(ctx context.Context, conv *Conversation, onDelta func(string)) (string, error) {
	dec, err := c.Open(ctx, conv.Messages())
	if err != nil {
		return "", err
	}
	defer dec.Close()

	var t Transcript
	for {
		delta, err := dec.Next()
		if errors.Is(err, io.EOF) {
			c.logger.Debug("chat stream complete", "bytes", t.Len())
			return t.String(), nil
		}
		if err != nil {
			if t.Len() > 0 {
				c.logger.Warn("chat stream interrupted", "bytes", t.Len(), "error", err)
				return t.String(), fmt.Errorf("%w: %w", ErrInterrupted, err)
			}
			return "", fmt.Errorf("reading chat stream: %w", err)
		}

		t.Append(delta)
		conv.AppendDelta(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
}

func requestFailed(resp *http.Response) error {
	rf := &RequestFailedError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return rf
	}

	var envelope llm.ErrorResponse
	if json.Unmarshal(body, &envelope) == nil {
		rf.Message = envelope.Error
	}

	return rf
}
