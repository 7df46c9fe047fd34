package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cchalm/prompt-tutor/internal/session"
)

// Run starts the chat view for sess and blocks until the user quits or ctx is canceled
func Run(ctx context.Context, sess *session.Session, opts Options) error {
	model := New(ctx, sess, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Events are emitted from the command goroutines that mutate the session, never from Update
	unsubscribe := sess.Subscribe(func(event session.Event) {
		p.Send(sessionEventMsg{event: event})
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat view failed: %w", err)
	}
	return nil
}
