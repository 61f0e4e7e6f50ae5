package sse_test

import (
	"errors"
	"io"
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/text/encoding/charmap"

	"github.com/papercomputeco/classroom/pkg/llm/openai"
	"github.com/papercomputeco/classroom/pkg/sse"
)

// chunkSource replays fixed chunks, one per Read, then returns err (io.EOF
// by default). It records reads and closes.
type chunkSource struct {
	chunks [][]byte
	err    error
	reads  int
	closed int
}

func newChunkSource(chunks ...string) *chunkSource {
	s := &chunkSource{err: io.EOF}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *chunkSource) Read(p []byte) (int, error) {
	if s.closed > 0 {
		return 0, errors.New("read after close")
	}
	if len(s.chunks) == 0 {
		return 0, s.err
	}

	s.reads++
	n := copy(p, s.chunks[0])
	if n < len(s.chunks[0]) {
		s.chunks[0] = s.chunks[0][n:]
	} else {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *chunkSource) Close() error {
	s.closed++
	return nil
}

// splitEvery cuts s into pieces of n bytes, ignoring rune boundaries.
func splitEvery(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func dataLine(content string) string {
	return `data: {"choices":[{"delta":{"content":` + quote(content) + `}}]}` + "\n"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func collect(d *sse.Decoder) ([]string, error) {
	var deltas []string
	for {
		delta, err := d.Next()
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, delta)
	}
}

var _ = Describe("Decoder", func() {
	Describe("Next", func() {
		It("yields deltas from chunked data lines and stops at [DONE]", func() {
			src := newChunkSource(
				"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n",
				"data: [DONE]\n",
			)
			d := sse.NewDecoder(src, openai.Delta)

			deltas, err := collect(d)
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"Hel", "lo"}))
			Expect(strings.Join(deltas, "")).To(Equal("Hello"))
			Expect(src.closed).To(Equal(1))
		})

		It("skips keep-alive comments and blank separators", func() {
			src := newChunkSource(": keep-alive\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\ndata: [DONE]\n")
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"x"}))
		})

		It("yields nothing for a stream of comments and blanks", func() {
			src := newChunkSource(": ping\n\n", ": ping\r\n\r\n", "data: [DONE]\n")
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(BeEmpty())
			Expect(src.closed).To(Equal(1))
		})

		It("reassembles a JSON payload split across two chunks", func() {
			src := newChunkSource(
				`data: {"choices":[{"delta":`,
				"{\"content\":\"hi\"}}]}\n",
				"data: [DONE]\n",
			)
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"hi"}))
		})

		It("reassembles a multi-byte character split across chunks", func() {
			line := dataLine("é")
			cut := strings.Index(line, "é") + 1
			src := newChunkSource(line[:cut], line[cut:])
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"é"}))
		})

		It("handles CRLF line endings", func() {
			src := newChunkSource("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\r\n\r\ndata: [DONE]\r\n")
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"a"}))
		})

		It("ignores non-data fields and chunks without content", func() {
			src := newChunkSource(
				"event: message\nid: 7\nretry: 100\n",
				"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
				dataLine("ok"),
				"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n",
			)
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"ok"}))
		})

		It("does not emit anything after the sentinel", func() {
			src := newChunkSource(dataLine("a") + "data: [DONE]\n" + dataLine("b"))
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"a"}))
		})

		It("returns io.EOF repeatedly once exhausted", func() {
			d := sse.NewDecoder(newChunkSource(dataLine("a")), openai.Delta)
			_, _ = collect(d)
			_, err := d.Next()
			Expect(err).To(MatchError(io.EOF))
		})
	})

	Describe("end of stream", func() {
		It("parses a complete trailing line without a terminator", func() {
			src := newChunkSource(dataLine("a"), `data: {"choices":[{"delta":{"content":"z"}}]}`)
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"a", "z"}))
		})

		It("drops a malformed trailing line without failing", func() {
			src := newChunkSource(dataLine("a"), `data: {"choi`)
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"a"}))
			Expect(src.closed).To(Equal(1))
		})

		It("holds lines behind a malformed line until the final flush", func() {
			src := newChunkSource(
				dataLine("a"),
				"data: {broken\n"+dataLine("b"),
				dataLine("c"),
			)
			d := sse.NewDecoder(src, openai.Delta)

			first, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal("a"))

			rest, err := collect(d)
			Expect(err).To(MatchError(io.EOF))
			Expect(rest).To(Equal([]string{"b", "c"}))
		})

		It("stops the final flush at the sentinel", func() {
			src := newChunkSource("data: {broken\n" + dataLine("b") + "data: [DONE]\n" + dataLine("c"))
			deltas, err := collect(sse.NewDecoder(src, openai.Delta))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"b"}))
		})
	})

	Describe("chunking invariance", func() {
		var stream string

		BeforeEach(func() {
			stream = ": keep-alive\n\n" +
				dataLine("Привет, ") + "\n" +
				dataLine("мир 👋 ") + "\r\n" +
				"event: ping\n" +
				dataLine(`"quoted" text`) + "\n" +
				dataLine("日本語") + "\n" +
				"data: [DONE]\n\n"
		})

		It("produces the same transcript for every fixed chunk size", func() {
			expected := `Привет, мир 👋 "quoted" text日本語`

			for size := 1; size <= len(stream); size++ {
				src := newChunkSource(splitEvery(stream, size)...)
				deltas, err := collect(sse.NewDecoder(src, openai.Delta))
				Expect(err).To(MatchError(io.EOF), "chunk size %d", size)
				Expect(strings.Join(deltas, "")).To(Equal(expected), "chunk size %d", size)
			}
		})

		It("produces the same transcript for random chunk boundaries", func() {
			rng := rand.New(rand.NewSource(42))
			expected := `Привет, мир 👋 "quoted" text日本語`

			for range 200 {
				var chunks []string
				rest := stream
				for len(rest) > 0 {
					n := 1 + rng.Intn(24)
					if n > len(rest) {
						n = len(rest)
					}
					chunks = append(chunks, rest[:n])
					rest = rest[n:]
				}

				deltas, err := collect(sse.NewDecoder(newChunkSource(chunks...), openai.Delta))
				Expect(err).To(MatchError(io.EOF))
				Expect(strings.Join(deltas, "")).To(Equal(expected))
			}
		})
	})

	Describe("transport failures", func() {
		It("returns the deltas read so far, then the read error", func() {
			src := newChunkSource(dataLine("par"), dataLine("tial"))
			src.err = errors.New("connection reset")
			d := sse.NewDecoder(src, openai.Delta)

			deltas, err := collect(d)
			Expect(deltas).To(Equal([]string{"par", "tial"}))
			Expect(err).To(MatchError("connection reset"))
			Expect(src.closed).To(Equal(1))

			Expect(d.Close()).To(Succeed())
			Expect(src.closed).To(Equal(1))
		})
	})

	Describe("Close", func() {
		It("releases the source when the caller abandons the sequence", func() {
			src := newChunkSource(dataLine("a"), dataLine("b"), dataLine("c"))
			d := sse.NewDecoder(src, openai.Delta)

			delta, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(delta).To(Equal("a"))

			Expect(d.Close()).To(Succeed())
			Expect(d.Close()).To(Succeed())
			Expect(src.closed).To(Equal(1))

			_, err = d.Next()
			Expect(err).To(MatchError(io.EOF))
		})
	})

	Describe("backpressure", func() {
		It("reads the next chunk only after the current one is consumed", func() {
			src := newChunkSource(dataLine("a"), dataLine("b"), dataLine("c"))
			d := sse.NewDecoder(src, openai.Delta)

			_, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(src.reads).To(Equal(1))

			_, err = d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(src.reads).To(Equal(2))
		})
	})

	Describe("charsets", func() {
		It("decodes a declared single-byte charset", func() {
			encoded, err := charmap.Windows1251.NewEncoder().String(dataLine("Привет") + "data: [DONE]\n")
			Expect(err).NotTo(HaveOccurred())

			src := newChunkSource(splitEvery(encoded, 5)...)
			deltas, err := collect(sse.NewDecoder(src, openai.Delta, sse.WithCharset("windows-1251")))
			Expect(err).To(MatchError(io.EOF))
			Expect(strings.Join(deltas, "")).To(Equal("Привет"))
		})

		It("falls back to UTF-8 for unknown labels", func() {
			src := newChunkSource(dataLine("ü"))
			deltas, err := collect(sse.NewDecoder(src, openai.Delta, sse.WithCharset("no-such-charset")))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"ü"}))
		})

		It("honors a small read size", func() {
			src := newChunkSource(dataLine("one") + dataLine("two"))
			deltas, err := collect(sse.NewDecoder(src, openai.Delta, sse.WithReadSize(3)))
			Expect(err).To(MatchError(io.EOF))
			Expect(deltas).To(Equal([]string{"one", "two"}))
		})
	})
})
