package questions_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/classroom/pkg/chat"
	"github.com/papercomputeco/classroom/pkg/llm/upstream"
	"github.com/papercomputeco/classroom/pkg/logger"
	"github.com/papercomputeco/classroom/pkg/questions"
	testutils "github.com/papercomputeco/classroom/pkg/utils/test"
)

var _ = Describe("Generator", func() {
	var (
		mock *testutils.MockUpstream
		gen  *questions.Generator
	)

	BeforeEach(func() {
		mock = testutils.NewMockUpstream()
		gen = questions.NewGenerator(upstream.New(mock.URL, "mk-test", logger.Nop()), logger.Nop())
	})

	AfterEach(func() {
		mock.Close()
	})

	It("sends the json_object request and returns the questions", func() {
		mock.Completion = `{"questions":["q1","q2","q3","q4","q5"]}`

		qs, err := gen.Generate(context.Background(), "photosynthesis")
		Expect(err).NotTo(HaveOccurred())
		Expect(qs).To(Equal([]string{"q1", "q2", "q3", "q4", "q5"}))

		req := mock.Requests()[0]
		Expect(req["model"]).To(Equal("mistral-medium-latest"))
		Expect(req["temperature"]).To(BeNumerically("~", 0.7, 0.001))
		Expect(req["max_tokens"]).To(BeNumerically("==", 2048))
		Expect(req["top_p"]).To(BeNumerically("==", 1))
		Expect(req["response_format"]).To(Equal(map[string]any{"type": "json_object"}))

		msgs := req["messages"].([]any)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].(map[string]any)["role"]).To(Equal("system"))
		Expect(msgs[0].(map[string]any)["content"]).To(Equal(questions.DefaultSystemPrompt))
		Expect(msgs[1]).To(Equal(map[string]any{"role": "user", "content": "photosynthesis"}))

		Expect(mock.LastHeader().Get("Authorization")).To(Equal("Bearer mk-test"))
	})

	It("rejects an empty or blank topic without calling upstream", func() {
		_, err := gen.Generate(context.Background(), "")
		Expect(err).To(MatchError(questions.ErrTopicRequired))
		_, err = gen.Generate(context.Background(), "   ")
		Expect(err).To(MatchError(questions.ErrTopicRequired))
		Expect(mock.Requests()).To(BeEmpty())
	})

	It("reports a missing upstream as not configured", func() {
		_, err := questions.NewGenerator(nil, logger.Nop()).Generate(context.Background(), "cells")
		Expect(err).To(MatchError(questions.ErrNotConfigured))
		Expect(err.Error()).To(Equal("MISTRAL_API_KEY is not configured"))
	})

	It("maps upstream failures to UpstreamError", func() {
		mock.Status = http.StatusUnauthorized
		mock.ErrorBody = `{"message":"Unauthorized"}`

		_, err := gen.Generate(context.Background(), "cells")
		var ue *questions.UpstreamError
		Expect(errors.As(err, &ue)).To(BeTrue())
		Expect(ue.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(err.Error()).To(Equal("upstream API error: 401"))
	})
})

var _ = Describe("ParseQuestions", func() {
	DescribeTable("extracts questions from model replies",
		func(content string, expected []string) {
			Expect(questions.ParseQuestions(content)).To(Equal(expected))
		},
		Entry("questions array", `{"questions":["a","b"]}`, []string{"a", "b"}),
		Entry("plain text falls back to a single question", "What is a cell?", []string{"What is a cell?"}),
		Entry("missing key", `{"items":["a"]}`, []string{}),
		Entry("null questions", `{"questions":null}`, []string{}),
		Entry("non-object JSON", `["a","b"]`, []string{}),
		Entry("empty content", "", []string{}),
		Entry("non-string items kept as JSON", `{"questions":["a",2]}`, []string{"a", "2"}),
		Entry("single string value", `{"questions":"only one"}`, []string{"only one"}),
	)
})

var _ = Describe("Client", func() {
	It("posts the topic and decodes the questions", func() {
		var got questions.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok"))
			_ = json.NewDecoder(r.Body).Decode(&got)
			_ = json.NewEncoder(w).Encode(questions.Response{Questions: []string{"x", "y"}})
		}))
		defer srv.Close()

		c := &questions.Client{Endpoint: srv.URL, Token: "tok"}
		qs, err := c.Fetch(context.Background(), "cells")
		Expect(err).NotTo(HaveOccurred())
		Expect(qs).To(Equal([]string{"x", "y"}))
		Expect(got.Topic).To(Equal("cells"))
	})

	It("returns RequestFailedError with the server message", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Topic is required"}`))
		}))
		defer srv.Close()

		_, err := (&questions.Client{Endpoint: srv.URL}).Fetch(context.Background(), "")
		var rf *chat.RequestFailedError
		Expect(errors.As(err, &rf)).To(BeTrue())
		Expect(rf.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(chat.UserMessage(err)).To(Equal("Topic is required"))
	})
})
