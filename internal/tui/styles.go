package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/cchalm/prompt-tutor/internal/session"
)

var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#A78BFA"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	colorError   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(0, 1)

	userLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	tutorLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	userTextStyle    = lipgloss.NewStyle().PaddingLeft(2)
	placeholderStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Italic(true).
				Padding(1, 2)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorAccent).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
)

func noticeStyle(level session.NoticeLevel) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch level {
	case session.NoticeSuccess:
		return base.Foreground(colorSuccess)
	case session.NoticeWarning:
		return base.Foreground(colorWarning)
	default:
		return base.Foreground(colorError)
	}
}
