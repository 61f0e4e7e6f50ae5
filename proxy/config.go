package proxy

import (
	"github.com/papercomputeco/classroom/pkg/eventstream"
	"github.com/papercomputeco/classroom/pkg/llm/upstream"
)

// Target is the upstream the relay forwards conversations to. It can be
// swapped at runtime with Proxy.SetTarget.
type Target struct {
	// Client sends the streamed completion request.
	Client *upstream.Client

	// Model is the upstream model name (e.g., "mistral-medium-latest").
	Model string

	// Temperature is the sampling temperature sent with every request.
	Temperature float64
}

// Config is the chat relay configuration.
type Config struct {
	Target Target

	// SystemPrompt is prepended to every conversation when set.
	SystemPrompt string

	// Publisher is an optional event stream announcing stored turns.
	// If nil, events are not published.
	Publisher eventstream.Publisher

	// NumWorkers and QueueSize size the storage worker pool. Zero values
	// use the pool defaults.
	NumWorkers uint
	QueueSize  uint
}
