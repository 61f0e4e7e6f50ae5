// Package header provides header handling for the chat relay.
//
// The relay sits between a classroom client and the upstream completions API
// like so:
//
//	Client <--> Relay <--> Upstream chat completions API
//
// and headers are handled accordingly as each leg negotiates compression, hops,
// encoding, etc. independently. Client credentials never travel upstream: the
// relay authenticates with its own API key.
package header

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SessionHeader carries the chat session id in both directions.
const SessionHeader = "X-Session-Id"

// maxSessionIDLen bounds client supplied session ids.
const maxSessionIDLen = 128

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipResponse is the set of upstream response headers (client <-- relay <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The relay always reads a decompressed body (Go's http.Transport strips
	// Content-Encoding after auto-decompression).
	"Content-Encoding": {},

	// The upstream Content-Length reflects the upstream body size, which
	// no longer holds once the body is streamed back in chunks.
	"Content-Length": {},

	// Upstream cookies belong to the relay's session with the provider.
	"Set-Cookie": {},
}

// SessionID returns the session id sent by the client, or a new uuid when the
// header is missing or not a usable id.
func (h *Handler) SessionID(c *fiber.Ctx) string {
	id := strings.TrimSpace(c.Get(SessionHeader))
	if validSessionID(id) {
		return id
	}

	return uuid.NewString()
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLen {
		return false
	}

	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}

// SetClientResponseHeaders copies response headers from the upstream API
// http.Response to the Fiber context, filtering headers that the relay should
// not forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
