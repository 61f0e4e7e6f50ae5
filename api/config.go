// Package api provides the classroom HTTP service: the question generator and
// chat relay functions, stored session lookup, and the MCP endpoint.
package api

import (
	"github.com/papercomputeco/classroom/api/mcp"
	"github.com/papercomputeco/classroom/pkg/storage"
	"github.com/papercomputeco/classroom/proxy"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Generator answers generate-questions requests. It can be replaced at
	// runtime with Server.SetGenerator.
	Generator mcp.QuestionGenerator

	// Storer serves stored sessions. If nil, the sessions routes and the
	// session_history MCP tool are disabled.
	Storer storage.Driver

	// Relay serves chat-with-ai. If nil, the route is not mounted.
	Relay *proxy.Proxy

	// DisableMCP leaves the /mcp endpoint without tools.
	DisableMCP bool
}
