package eventstream

import "errors"

// ErrNilTranscriptEvent indicates a nil transcript event payload was provided to a publisher.
var ErrNilTranscriptEvent = errors.New("nil transcript event")
