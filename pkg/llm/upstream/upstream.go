// Package upstream is the HTTP client for the OpenAI-compatible chat
// completions API that classroom forwards to (Mistral by default).
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/llm/openai"
	"github.com/papercomputeco/classroom/pkg/utils"
)

const (
	completionsPath = "/v1/chat/completions"

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 64 << 10

	// maxLoggedBody bounds the error body written to logs, in runes.
	maxLoggedBody = 512
)

// APIError is returned when the upstream answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error: %d", e.StatusCode)
}

// Client talks to the upstream chat completions endpoint.
type Client struct {
	// BaseURL is the API root, e.g. "https://api.mistral.ai".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HTTPClient defaults to a client with a five minute timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// New creates a Client for baseURL.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			// Completions can be slow for long answers.
			Timeout: 5 * time.Minute,
		},
		Logger: logger,
	}
}

// Complete sends a non-streamed completion request.
func (c *Client) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil {
		return nil, errors.New("nil chat request")
	}

	r := *req
	r.Stream = false

	resp, err := c.do(ctx, &r, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	parsed, err := openai.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream response: %w", err)
	}

	return parsed, nil
}

// Stream sends a streamed completion request and returns the response with
// its SSE body unread. The caller must close the body.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil chat request")
	}

	r := *req
	r.Stream = true

	return c.do(ctx, &r, "text/event-stream")
}

func (c *Client) do(ctx context.Context, req *llm.ChatRequest, accept string) (*http.Response, error) {
	body, err := openai.MarshalRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encoding upstream request: %w", err)
	}

	url := strings.TrimSuffix(c.BaseURL, "/") + completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	c.logger().Debug("forwarding request to upstream",
		"url", url,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
	)

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.logger().Error("upstream returned error",
			"status", resp.StatusCode,
			"body", utils.Truncate(string(errBody), maxLoggedBody),
		)

		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return resp, nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
