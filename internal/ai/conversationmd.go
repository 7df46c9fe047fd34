package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed conversation_template.tmpl
var conversationMarkdownTemplate string

// conversationMarkdownData is the flattened view of a transcript the template renders
type conversationMarkdownData struct {
	Title        string
	SessionID    string
	ExportedAt   string
	SystemPrompt string
	Messages     []conversationMessage
}

type conversationMessage struct {
	Speaker string
	Content string
}

// Speaker returns the label a message is displayed under
func Speaker(role Role) string {
	switch role {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Tutor"
	case RoleSystem:
		return "System"
	default:
		return string(role)
	}
}

// ToMarkdown renders the transcript as a markdown document
func (t Transcript) ToMarkdown() (string, error) {
	data := conversationMarkdownData{
		Title:        fmt.Sprintf("AI %s Tutor", titleCase(topicOrDefault(t.Topic))),
		SessionID:    t.SessionID,
		ExportedAt:   t.ExportedAt.Format("2006-01-02 15:04:05 MST"),
		SystemPrompt: t.SystemPrompt,
	}
	for _, msg := range t.Messages {
		data.Messages = append(data.Messages, conversationMessage{
			Speaker: Speaker(msg.Role),
			Content: strings.TrimSpace(msg.Content),
		})
	}

	return renderConversationMarkdown(data)
}

func renderConversationMarkdown(data conversationMarkdownData) (string, error) {
	funcMap := template.FuncMap{
		"indent": func(prefix string, text string) string {
			prefixed := strings.Builder{}
			for line := range strings.Lines(text) {
				prefixed.WriteString(prefix)
				prefixed.WriteString(line)
			}
			return prefixed.String()
		},
	}

	tmpl, err := template.New("conversation").Funcs(funcMap).Parse(conversationMarkdownTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse conversation template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute conversation template: %w", err)
	}

	return buf.String(), nil
}

func topicOrDefault(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return DefaultTopic
	}
	return topic
}
