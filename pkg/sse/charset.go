package sse

import (
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CharsetFromContentType returns the charset parameter of a Content-Type
// header value, or "" when absent or unparsable.
func CharsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// lookupEncoding resolves a WHATWG/IANA charset label. Empty or unknown
// labels resolve to UTF-8.
func lookupEncoding(label string) encoding.Encoding {
	if label == "" {
		return unicode.UTF8
	}

	enc, err := htmlindex.Get(label)
	if err != nil || enc == nil {
		return unicode.UTF8
	}

	return enc
}

// newTextReader wraps src so that reads yield UTF-8 text. The transformer
// keeps its own state, so a multi-byte sequence split across two reads of src
// is decoded once both halves have arrived.
func newTextReader(src io.Reader, label string) io.Reader {
	return transform.NewReader(src, lookupEncoding(label).NewDecoder())
}
