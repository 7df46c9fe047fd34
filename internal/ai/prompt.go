package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"unicode"
)

//go:embed system_prompt.tmpl
var systemPromptTemplate string

// DefaultTopic is the subject the tutor specializes in unless configured otherwise
const DefaultTopic = "prompt engineering"

// defaultRelatedTopics widen the default topic so that neighbouring questions are still answered
var defaultRelatedTopics = []string{"prompt optimization", "LLM behavior"}

type systemPromptData struct {
	Role          string
	Topic         string
	RelatedTopics []string
}

// BuildSystemPrompt renders the system prompt that constrains the assistant to the given topic
func BuildSystemPrompt(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}

	data := systemPromptData{
		Role:  TutorTitle(topic),
		Topic: topic,
	}
	if strings.EqualFold(topic, DefaultTopic) {
		data.RelatedTopics = defaultRelatedTopics
	}

	tmpl, err := template.New("system_prompt").Parse(systemPromptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse system prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute system prompt template: %w", err)
	}

	return strings.Join(strings.Fields(buf.String()), " "), nil
}

// TutorTitle returns the name the tutor goes by for a topic, e.g. "AI Prompt Engineering Tutor"
func TutorTitle(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}
	return "AI " + titleCase(topic) + " Tutor"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
