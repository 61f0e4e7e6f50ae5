package questions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/papercomputeco/classroom/pkg/chat"
	"github.com/papercomputeco/classroom/pkg/llm"
)

// Request is the body of the generate-questions function.
type Request struct {
	Topic string `json:"topic"`
}

// Response is the successful answer of the generate-questions function.
type Response struct {
	Questions []string `json:"questions"`
}

// Client calls a running generate-questions endpoint.
type Client struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

// Fetch requests questions for topic. Non-2xx answers are returned as
// *chat.RequestFailedError carrying the server message.
func (c *Client) Fetch(ctx context.Context, topic string) ([]string, error) {
	body, err := json.Marshal(Request{Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("encoding questions request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating questions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending questions request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading questions response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rf := &chat.RequestFailedError{StatusCode: resp.StatusCode}
		var envelope llm.ErrorResponse
		if json.Unmarshal(data, &envelope) == nil {
			rf.Message = envelope.Error
		}
		return nil, rf
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing questions response: %w", err)
	}

	return out.Questions, nil
}
