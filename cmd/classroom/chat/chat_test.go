package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/classroom/pkg/dotdir"
	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/logger"
	testutils "github.com/papercomputeco/classroom/pkg/utils/test"
)

// chatService records chat requests and answers with a fixed stream or error.
type chatService struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   []llm.ChatEnvelope
	sessions []string
	status   int
	stream   string
}

func newChatService() *chatService {
	s := &chatService{status: http.StatusOK, stream: testutils.SSEStream("Hel", "lo")}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env llm.ChatEnvelope
		_ = json.NewDecoder(r.Body).Decode(&env)

		s.mu.Lock()
		s.bodies = append(s.bodies, env)
		s.sessions = append(s.sessions, r.Header.Get("X-Session-Id"))
		status, stream := s.status, s.stream
		s.mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":"Rate limits exceeded, please try again later."}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, stream)
	}))
	return s
}

func (s *chatService) requests() []llm.ChatEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ChatEnvelope(nil), s.bodies...)
}

var _ = Describe("NewChatCmd", func() {
	It("creates a command with the correct use string", func() {
		Expect(NewChatCmd().Use).To(Equal("chat"))
	})

	It("has endpoint, token, and new flags", func() {
		cmd := NewChatCmd()

		endpoint := cmd.Flags().Lookup("endpoint")
		Expect(endpoint).NotTo(BeNil())
		Expect(endpoint.Shorthand).To(Equal("e"))
		Expect(endpoint.DefValue).To(Equal("http://localhost:8080/functions/v1/chat-with-ai"))

		Expect(cmd.Flags().Lookup("token")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("new")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("markdown")).NotTo(BeNil())
	})
})

var _ = Describe("chatCommander", func() {
	var (
		service   *chatService
		configDir string
		out       *bytes.Buffer
		errOut    *bytes.Buffer
		ddm       *dotdir.Manager
	)

	newCommander := func(input string) *chatCommander {
		return &chatCommander{
			endpoint:  service.URL,
			token:     "anon-key",
			configDir: configDir,
			in:        strings.NewReader(input),
			out:       out,
			errOut:    errOut,
			logger:    logger.Nop(),
			ddm:       ddm,
		}
	}

	BeforeEach(func() {
		service = newChatService()
		DeferCleanup(service.Close)

		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		errOut = &bytes.Buffer{}
		ddm = dotdir.NewManager()
	})

	It("streams the reply and saves the session", func() {
		Expect(newCommander("hi\n/exit\n").run(context.Background())).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Hello"))

		state, err := ddm.LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.SessionID).NotTo(BeEmpty())
		Expect(state.Messages).To(Equal([]llm.Message{
			llm.NewTextMessage(llm.RoleUser, "hi"),
			llm.NewTextMessage(llm.RoleAssistant, "Hello"),
		}))

		Expect(service.sessions).To(Equal([]string{state.SessionID}))
	})

	It("resumes the saved conversation", func() {
		Expect(newCommander("hi\n").run(context.Background())).To(Succeed())
		first, err := ddm.LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())

		out.Reset()
		Expect(newCommander("more\n").run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Resuming session " + first.SessionID))

		reqs := service.requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[1].Messages).To(HaveLen(3))
		Expect(reqs[1].Messages[2].Content).To(Equal("more"))
		Expect(service.sessions[1]).To(Equal(first.SessionID))
	})

	It("starts over with --new", func() {
		Expect(newCommander("hi\n").run(context.Background())).To(Succeed())
		first, err := ddm.LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())

		cmder := newCommander("again\n")
		cmder.newSession = true
		Expect(cmder.run(context.Background())).To(Succeed())

		reqs := service.requests()
		Expect(reqs[1].Messages).To(HaveLen(1))
		Expect(service.sessions[1]).NotTo(Equal(first.SessionID))
	})

	It("starts over on /new", func() {
		Expect(newCommander("hi\n/new\nagain\n").run(context.Background())).To(Succeed())

		reqs := service.requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[1].Messages).To(HaveLen(1))
		Expect(service.sessions[0]).NotTo(Equal(service.sessions[1]))
	})

	It("skips blank lines", func() {
		Expect(newCommander("\n   \n/exit\n").run(context.Background())).To(Succeed())
		Expect(service.requests()).To(BeEmpty())
	})

	It("notifies the server message and drops the failed message", func() {
		service.status = http.StatusTooManyRequests

		Expect(newCommander("hi\n").run(context.Background())).To(Succeed())
		Expect(errOut.String()).To(ContainSubstring("Rate limits exceeded, please try again later."))

		state, err := ddm.LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Messages).To(BeEmpty())
	})

	It("keeps the reply decoded before a truncated trailing event", func() {
		service.stream = testutils.SSEDataLine("par") + `data: {"choices":[{"delta":{"content":"ti`

		Expect(newCommander("hi\n").run(context.Background())).To(Succeed())

		state, err := ddm.LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Messages).To(HaveLen(2))
		Expect(state.Messages[1].Content).To(Equal("par"))
	})

	It("renders the reply once complete with --markdown", func() {
		cmder := newCommander("hi\n")
		cmder.markdown = true

		Expect(cmder.run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Hello"))
	})
})
