package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles renders list and status output. Colors are dropped automatically
// when the writer is not a terminal.
type styles struct {
	current  lipgloss.Style
	previous lipgloss.Style
	missing  lipgloss.Style
	muted    lipgloss.Style
	label    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		current:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		previous: r.NewStyle().Foreground(lipgloss.Color("4")),
		missing:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("240")),
		label:    r.NewStyle().Bold(true),
	}
}
