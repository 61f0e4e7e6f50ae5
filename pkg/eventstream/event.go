// Package eventstream defines the transport-neutral events emitted once a chat
// transcript has been persisted, and the Publisher that delivers them.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/classroom/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTranscriptCompleted is emitted after a chat turn is persisted.
	EventTypeTranscriptCompleted = "classroom.transcript.completed"
)

// TranscriptCompletedEvent is a transport-neutral event payload for a
// persisted chat turn.
type TranscriptCompletedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Session       string        `json:"session"`
	Turn          *storage.Turn `json:"turn"`
}

// NewTranscriptCompletedEvent builds a v1 event for turn with a fresh event id.
func NewTranscriptCompletedEvent(turn *storage.Turn, now time.Time) *TranscriptCompletedEvent {
	event := &TranscriptCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTranscriptCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Turn:          turn,
	}
	if turn != nil {
		event.Session = turn.SessionID
	}

	return event
}
