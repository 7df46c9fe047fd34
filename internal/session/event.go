package session

import (
	"errors"
	"fmt"

	"github.com/cchalm/prompt-tutor/internal/ai"
)

// EventKind classifies session events
type EventKind int

const (
	EventStateChanged   EventKind = iota // Event.State holds the new state
	EventHistoryChanged                  // The conversation was appended to, truncated or cleared
	EventNotice                          // Event.Notice holds a banner for the user
)

// NoticeLevel is the severity of a user-facing notice
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient status banner
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// Event is emitted after the session mutation it describes has been applied
type Event struct {
	Kind   EventKind
	State  State
	Notice Notice
}

// Notices shown to the user
var (
	NoticeKeyConfigured  = Notice{Level: NoticeSuccess, Text: "API key configured successfully"}
	NoticeKeyCleared     = Notice{Level: NoticeWarning, Text: "API key removed"}
	NoticeKeyRequired    = Notice{Level: NoticeWarning, Text: "Please enter your API key first"}
	NoticeHistoryCleared = Notice{Level: NoticeSuccess, Text: "Conversation history cleared successfully"}
)

// ErrorNotice returns the banner for a failed operation, carrying the error text verbatim
func ErrorNotice(err error) Notice {
	var credErr *ai.CredentialError
	if errors.As(err, &credErr) {
		return Notice{Level: NoticeError, Text: err.Error()}
	}
	return Notice{Level: NoticeError, Text: fmt.Sprintf("Error processing request: %s", err)}
}
