package llm

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model name (e.g., "mistral-medium-latest")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream bool `json:"stream,omitempty"`

	// Generation parameters
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`

	// ResponseFormat constrains the output, e.g. "json_object".
	ResponseFormat string `json:"response_format,omitempty"`
}

// ChatEnvelope is the request body the classroom web client sends to the
// chat endpoint.
type ChatEnvelope struct {
	Messages []Message `json:"messages"`
}

// ErrorResponse is the JSON error envelope returned with a non-2xx status
// before any streaming starts.
type ErrorResponse struct {
	Error string `json:"error"`
}
