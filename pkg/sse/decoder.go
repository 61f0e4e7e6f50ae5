package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

const defaultReadSize = 4096

// PayloadFunc extracts the text delta from one data payload. It returns an
// error when the payload is not (yet) a complete, valid document, and an
// empty string when the payload carries no text.
type PayloadFunc func(payload []byte) (string, error)

// Option configures a Decoder created with NewDecoder.
type Option func(*Decoder)

// WithCharset sets the charset label used to decode the byte stream.
// Unknown labels fall back to UTF-8.
func WithCharset(label string) Option {
	return func(d *Decoder) {
		d.charset = label
	}
}

// WithReadSize sets the number of bytes requested from the source per read.
func WithReadSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.readSize = n
		}
	}
}

// Decoder reassembles a chunked SSE byte stream into the ordered sequence of
// text deltas of a chat completion.
//
// ┌──────────────────────┐
// │ source io.ReadCloser │
// └──────────────────────┘
// │  chunk
// ▼
// ┌──────────────────────┐   partial line / unparsable JSON
// │     text buffer      │◀──────────────────┐
// └──────────────────────┘                   │
// │  complete line                           │
// ▼                                          │
// ┌──────────────────────┐                   │
// │   ClassifyLine +     │───────────────────┘
// │   PayloadFunc        │
// └──────────────────────┘
// │
// ▼
// Decoder.Next() -> delta
//
// A Decoder has a single owner: it is not safe for concurrent use, and it
// reads the next chunk only once every delta from the previous chunk has been
// consumed.
type Decoder struct {
	src      io.ReadCloser
	text     io.Reader
	parse    PayloadFunc
	charset  string
	readSize int

	// buf holds decoded text that has not been consumed as a complete line.
	buf []byte

	// pending holds deltas extracted from the current chunk, in stream order.
	pending []string

	done bool
	err  error

	closeOnce sync.Once
	closeErr  error
}

// NewDecoder returns a Decoder reading from src. parse is called for every
// data line; src is closed once the sequence is exhausted or Close is called.
func NewDecoder(src io.ReadCloser, parse PayloadFunc, opts ...Option) *Decoder {
	d := &Decoder{
		src:      src,
		parse:    parse,
		readSize: defaultReadSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.text = newTextReader(src, d.charset)

	return d
}

// Next returns the next non-empty text delta. It blocks until a delta is
// available or the stream ends. Next returns io.EOF once the source is
// exhausted or the [DONE] sentinel was observed; a transport error from the
// source is returned as is. Either way the source has been closed and every
// later call returns the same error.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.pending) > 0 {
			delta := d.pending[0]
			d.pending = d.pending[1:]
			return delta, nil
		}

		if d.err != nil {
			return "", d.err
		}
		if d.done {
			return "", io.EOF
		}

		d.fill()
	}
}

// Close releases the underlying source and abandons the sequence. It is safe
// to call more than once and after the source failed.
func (d *Decoder) Close() error {
	err := d.release()
	d.done = true
	d.pending = nil
	d.buf = nil
	return err
}

func (d *Decoder) release() error {
	d.closeOnce.Do(func() {
		if d.src != nil {
			d.closeErr = d.src.Close()
		}
	})

	return d.closeErr
}

// fill reads one chunk from the source and processes the complete lines it
// makes available.
func (d *Decoder) fill() {
	chunk := make([]byte, d.readSize)
	n, err := d.text.Read(chunk)
	if n > 0 {
		d.buf = append(d.buf, chunk[:n]...)
		d.drain()
	}

	if d.done {
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		d.flush()
		d.finish()
	default:
		d.err = err
		d.buf = nil
		_ = d.release()
	}
}

// drain extracts complete lines from the buffer until none is left, the
// sentinel was seen, or a data payload failed to parse. In the last case the
// line and everything after it go back into the buffer to be retried once more
// bytes have arrived.
func (d *Decoder) drain() {
	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}

		line := string(d.buf[:idx])
		rest := d.buf[idx+1:]

		switch d.handleLine(line, false) {
		case outcomeDone:
			d.finish()
			return
		case outcomeRetry:
			requeued := make([]byte, 0, len(line)+1+len(rest))
			requeued = append(requeued, line...)
			requeued = append(requeued, '\n')
			d.buf = append(requeued, rest...)
			return
		default:
			d.buf = rest
		}
	}
}

// flush makes a final best-effort pass over whatever is left in the buffer at
// end of stream. Unparsable payloads are dropped since no more data will come.
func (d *Decoder) flush() {
	remaining := string(d.buf)
	d.buf = nil

	if strings.TrimSpace(remaining) == "" {
		return
	}

	for _, line := range strings.Split(remaining, "\n") {
		if line == "" {
			continue
		}
		if d.handleLine(line, true) == outcomeDone {
			return
		}
	}
}

type lineOutcome int

const (
	outcomeContinue lineOutcome = iota
	outcomeRetry
	outcomeDone
)

// handleLine classifies a raw line and, for data lines, queues the parsed
// delta. finalFlush selects the end-of-stream behavior for unparsable
// payloads: dropped instead of retried.
func (d *Decoder) handleLine(raw string, finalFlush bool) lineOutcome {
	line := ClassifyLine(raw)

	switch line.Kind {
	case KindTerminator:
		return outcomeDone
	case KindData:
		delta, err := d.parse([]byte(line.Payload))
		if err != nil {
			if finalFlush {
				return outcomeContinue
			}
			return outcomeRetry
		}
		if delta != "" {
			d.pending = append(d.pending, delta)
		}
		return outcomeContinue
	default:
		return outcomeContinue
	}
}

// finish marks the sequence as exhausted and releases the source. Deltas
// already queued are still returned by Next.
func (d *Decoder) finish() {
	d.done = true
	d.buf = nil
	_ = d.release()
}
