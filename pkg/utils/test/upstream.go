package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockUpstream is an OpenAI-compatible chat completions server for tests.
// Streamed requests receive Chunks, one flushed write each. Non-streamed
// requests receive Completion as the first choice's content.
type MockUpstream struct {
	*httptest.Server

	mu sync.Mutex

	// Status, when non-zero and not 200, is returned with ErrorBody.
	Status    int
	ErrorBody string

	// Chunks are written verbatim to streamed responses.
	Chunks []string

	// ContentType overrides the streamed Content-Type.
	ContentType string

	// Completion is the content of non-streamed responses.
	Completion string

	// Abort drops the connection after the last chunk instead of ending the
	// response, so clients see a broken stream.
	Abort bool

	requests []map[string]any
	headers  []http.Header
}

// NewMockUpstream starts a MockUpstream. Close it when done.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// Requests returns the decoded JSON bodies received so far.
func (m *MockUpstream) Requests() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.requests...)
}

// LastHeader returns the headers of the most recent request.
func (m *MockUpstream) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.headers) == 0 {
		return nil
	}
	return m.headers[len(m.headers)-1]
}

func (m *MockUpstream) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.headers = append(m.headers, r.Header.Clone())
	status, errBody := m.Status, m.ErrorBody
	chunks := append([]string(nil), m.Chunks...)
	contentType, completion, abort := m.ContentType, m.Completion, m.Abort
	m.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, errBody)
		return
	}

	if stream, _ := req["stream"].(bool); stream {
		if contentType == "" {
			contentType = "text/event-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, chunk)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if abort {
			panic(http.ErrAbortHandler)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   req["model"],
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": completion},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

// SSEStream renders deltas as a Chat Completions SSE stream terminated by
// "data: [DONE]".
func SSEStream(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(SSEDataLine(d))
		b.WriteString("\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// SSEDataLine renders a single "data:" line carrying delta.
func SSEDataLine(delta string) string {
	content, _ := json.Marshal(delta)
	return fmt.Sprintf(`data: {"choices":[{"index":0,"delta":{"content":%s}}]}`+"\n", content)
}
