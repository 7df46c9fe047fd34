package ai

import (
	"fmt"
	"slices"
	"sync"
)

// Conversation is the bounded, ordered history of user and assistant messages for a session. The system prompt is not
// stored here; it is prepended when a request is built. Conversation is safe for concurrent use.
type Conversation struct {
	mu         sync.RWMutex
	messages   []Message
	maxHistory int // Number of exchanges to keep; the store holds at most twice as many messages
}

// NewConversation creates an empty conversation that keeps the most recent maxHistory exchanges
func NewConversation(maxHistory int) (*Conversation, error) {
	if maxHistory < 1 {
		return nil, fmt.Errorf("max history must be at least 1, got %d", maxHistory)
	}
	return &Conversation{maxHistory: maxHistory}, nil
}

// MaxHistory returns the number of exchanges the conversation retains
func (c *Conversation) MaxHistory() int {
	return c.maxHistory
}

// Limit returns the maximum number of messages kept after truncation
func (c *Conversation) Limit() int {
	return c.maxHistory * 2
}

// Append adds a message to the end of the conversation. Only user and assistant messages may be stored
func (c *Conversation) Append(msg Message) error {
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return fmt.Errorf("cannot store message with role %q in conversation history", msg.Role)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

// Truncate drops the oldest messages until at most Limit remain, and returns the number of messages dropped
func (c *Conversation) Truncate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	excess := len(c.messages) - c.Limit()
	if excess <= 0 {
		return 0
	}
	// Copy into a fresh slice so the dropped prefix can be collected
	c.messages = slices.Clone(c.messages[excess:])
	return excess
}

// Clear removes every message
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Len returns the number of stored messages
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Snapshot returns a copy of the stored messages in chronological order
func (c *Conversation) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

// Request builds the outbound message sequence: the system prompt followed by the stored history. Providers require
// the history to open with a user message, so assistant replies left at the front by truncation are not sent
func (c *Conversation) Request(systemPrompt string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.messages
	for len(history) > 0 && history[0].Role != RoleUser {
		history = history[1:]
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, NewSystemMessage(systemPrompt))
	messages = append(messages, history...)
	return messages
}
