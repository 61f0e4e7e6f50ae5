// Package llm holds the chat completion types shared by the classroom client,
// service, and storage layers.
package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// IsConversationRole reports whether role may appear in a client supplied
// conversation. System prompts are owned by the service.
func IsConversationRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
