package chat

import (
	"errors"
	"fmt"
)

// DefaultUserMessage is shown to the user for any failure without a server
// supplied message.
const DefaultUserMessage = "AI error"

var (
	// ErrEmptyResponse is returned when a successful response has no body.
	ErrEmptyResponse = errors.New("empty response")

	// ErrInterrupted wraps a transport failure that happened after at least
	// one delta was received. The partial transcript is returned with it.
	ErrInterrupted = errors.New("stream interrupted")
)

// RequestFailedError is returned when the endpoint answers with a non-2xx
// status before any streaming starts.
type RequestFailedError struct {
	StatusCode int

	// Message is the server supplied error, if any.
	Message string
}

func (e *RequestFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed (%d)", e.StatusCode)
}

// IsUserVisible reports whether err is one of the failures surfaced to the
// user as a notification instead of a partial transcript.
func IsUserVisible(err error) bool {
	var rf *RequestFailedError
	return errors.As(err, &rf) || errors.Is(err, ErrEmptyResponse)
}

// UserMessage returns the notification text for err: the server supplied
// message when there is one, DefaultUserMessage otherwise.
func UserMessage(err error) string {
	var rf *RequestFailedError
	if errors.As(err, &rf) && rf.Message != "" {
		return rf.Message
	}
	return DefaultUserMessage
}
