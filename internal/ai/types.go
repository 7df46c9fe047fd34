// Package ai provides the tutor's conversation model, prompts and model provider clients.
package ai

import "time"

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message. Messages are values and are never modified after creation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system message
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Transcript is an exportable snapshot of a tutoring session
type Transcript struct {
	SessionID    string    `json:"sessionId"`
	Topic        string    `json:"topic"`
	SystemPrompt string    `json:"systemPrompt"`
	Messages     []Message `json:"messages"`
	ExportedAt   time.Time `json:"exportedAt"`
}
