// Package chat consumes a classroom chat stream: it sends the conversation to
// the chat-with-ai endpoint, decodes the SSE reply, and folds the deltas into
// the assistant message of the current turn.
package chat

import (
	"strings"

	"github.com/papercomputeco/classroom/pkg/llm"
)

// Transcript is the concatenation of every delta of one reply, in order.
type Transcript struct {
	b strings.Builder
}

// Append adds delta to the end of the transcript.
func (t *Transcript) Append(delta string) {
	t.b.WriteString(delta)
}

func (t *Transcript) String() string {
	return t.b.String()
}

// Len returns the transcript length in bytes.
func (t *Transcript) Len() int {
	return t.b.Len()
}

// Conversation is the ordered message history of a chat session.
// It is not safe for concurrent use.
type Conversation struct {
	messages []llm.Message
}

// NewConversation returns a Conversation seeded with history.
func NewConversation(history ...llm.Message) *Conversation {
	return &Conversation{messages: append([]llm.Message(nil), history...)}
}

// AddUser appends a user message, starting a new turn.
func (c *Conversation) AddUser(text string) {
	c.messages = append(c.messages, llm.NewTextMessage(llm.RoleUser, text))
}

// AppendDelta folds delta into the assistant message of the current turn,
// creating that message on the first delta.
func (c *Conversation) AppendDelta(delta string) {
	if n := len(c.messages); n > 0 && c.messages[n-1].Role == llm.RoleAssistant {
		c.messages[n-1].Content = accumulate(c.messages[n-1].Content, delta)
		return
	}

	c.messages = append(c.messages, llm.NewTextMessage(llm.RoleAssistant, accumulate("", delta)))
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	return append([]llm.Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// DiscardPendingUser removes the last message when it is a user message that
// never got a reply, so a failed send can be retried. It reports whether a
// message was removed.
func (c *Conversation) DiscardPendingUser() bool {
	n := len(c.messages)
	if n == 0 || c.messages[n-1].Role != llm.RoleUser {
		return false
	}

	c.messages = c.messages[:n-1]
	return true
}

// Reset drops the whole history.
func (c *Conversation) Reset() {
	c.messages = nil
}

func accumulate(prev, delta string) string {
	return prev + delta
}
