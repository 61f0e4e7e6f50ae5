package eventstream

import "context"

// Publisher publishes transcript events to an event stream backend.
type Publisher interface {
	PublishTranscript(ctx context.Context, event *TranscriptCompletedEvent) error
	Close() error
}
