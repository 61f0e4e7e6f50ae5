// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// decoder for chat completion streams. It turns a chunked HTTP response body
// into the ordered text deltas of an assistant reply, tolerating chunk
// boundaries that split lines, JSON payloads, or multi-byte characters.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

const (
	// DataPrefix is the prefix of lines carrying an event payload.
	DataPrefix = "data: "

	// DoneSentinel is the payload that signals no further events will arrive.
	DoneSentinel = "[DONE]"
)

// LineKind classifies a single SSE line.
type LineKind int

const (
	// KindBlank is an empty line (event separator).
	KindBlank LineKind = iota

	// KindComment is a line starting with ':' (comment / keep-alive).
	KindComment

	// KindOther is any line that is not a data line ("event:", "id:", ...).
	KindOther

	// KindData is a "data: " line carrying a payload.
	KindData

	// KindTerminator is the "data: [DONE]" sentinel line.
	KindTerminator
)

func (k LineKind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindComment:
		return "comment"
	case KindData:
		return "data"
	case KindTerminator:
		return "terminator"
	default:
		return "other"
	}
}

// Line is one logical SSE line extracted from the stream buffer.
type Line struct {
	// Raw is the line text with its line terminator and a single trailing
	// carriage return removed.
	Raw string

	// Kind is the classification of the line.
	Kind LineKind

	// Payload is the trimmed text after DataPrefix. Only set for KindData
	// and KindTerminator.
	Payload string
}

// ClassifyLine strips a single trailing carriage return from raw and
// classifies the result.
func ClassifyLine(raw string) Line {
	raw = strings.TrimSuffix(raw, "\r")
	l := Line{Raw: raw}

	switch {
	case strings.HasPrefix(raw, ":"):
		l.Kind = KindComment
	case strings.TrimSpace(raw) == "":
		l.Kind = KindBlank
	case !strings.HasPrefix(raw, DataPrefix):
		l.Kind = KindOther
	default:
		l.Payload = strings.TrimSpace(raw[len(DataPrefix):])
		if l.Payload == DoneSentinel {
			l.Kind = KindTerminator
		} else {
			l.Kind = KindData
		}
	}

	return l
}
