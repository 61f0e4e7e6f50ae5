package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/classroom/pkg/eventstream"
	"github.com/papercomputeco/classroom/pkg/eventstream/kafka"
	"github.com/papercomputeco/classroom/pkg/storage"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer    *fakeWriter
		publisher *kafka.Publisher
		event     *eventstream.TranscriptCompletedEvent
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		publisher = kafka.NewPublisherWithWriter(writer, "classroom.transcripts")
		event = eventstream.NewTranscriptCompletedEvent(&storage.Turn{
			ID:        "turn-1",
			SessionID: "session-42",
			Reply:     "hello",
		}, time.Unix(1735689600, 0))
	})

	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := kafka.NewPublisher(kafka.Config{Topic: "t"})
			Expect(err).To(MatchError(kafka.ErrNoBrokers))
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(MatchError(kafka.ErrNoTopic))
		})

		It("does not dial on construction", func() {
			p, err := kafka.NewPublisher(kafka.Config{
				Brokers: []string{"127.0.0.1:1"},
				Topic:   "t",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("PublishTranscript", func() {
		It("keys the message by session and carries the JSON event", func() {
			Expect(publisher.PublishTranscript(context.Background(), event)).To(Succeed())
			Expect(writer.messages).To(HaveLen(1))

			msg := writer.messages[0]
			Expect(string(msg.Key)).To(Equal("session-42"))
			Expect(msg.Headers).To(ContainElement(kafkago.Header{
				Key:   "event_type",
				Value: []byte(eventstream.EventTypeTranscriptCompleted),
			}))

			var decoded eventstream.TranscriptCompletedEvent
			Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
			Expect(decoded.EventID).To(Equal(event.EventID))
			Expect(decoded.Turn.Reply).To(Equal("hello"))
		})

		It("rejects a nil event", func() {
			err := publisher.PublishTranscript(context.Background(), nil)
			Expect(err).To(MatchError(eventstream.ErrNilTranscriptEvent))
			Expect(writer.messages).To(BeEmpty())
		})

		It("wraps writer errors", func() {
			writer.err = errors.New("broker down")
			err := publisher.PublishTranscript(context.Background(), event)
			Expect(err).To(MatchError(ContainSubstring("broker down")))
			Expect(err).To(MatchError(ContainSubstring("classroom.transcripts")))
		})
	})

	It("closes the writer", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
