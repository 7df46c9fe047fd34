package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteTranscript exports a transcript to path. A ".json" extension writes JSON; anything else writes markdown.
// Transcripts are an export format only and are never read back into a session
func WriteTranscript(path string, t Transcript) error {
	var b []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var err error
		b, err = json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %w", err)
		}
	default:
		md, err := t.ToMarkdown()
		if err != nil {
			return fmt.Errorf("failed to render transcript: %w", err)
		}
		b = []byte(md)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}
	err := os.WriteFile(path, b, 0644)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// TranscriptFileName returns the default file name for a session's transcript export
func TranscriptFileName(sessionID string) string {
	return fmt.Sprintf("tutor-%s.md", sessionID)
}
