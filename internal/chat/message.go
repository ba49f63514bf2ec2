// Package chat defines the conversation data model shared by the session,
// LLM, and transport layers.
package chat

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation history. Histories are
// append-only; a message is never edited after it is appended.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
