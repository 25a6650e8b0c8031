package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// Styles renders table cells. Each field wraps an already padded string.
type Styles struct {
	Header           func(string) string
	Normal           func(string) string
	Selected         func(string) string
	Disabled         func(string) string
	DisabledSelected func(string) string
	Secondary        func(string) string
	Success          func(string) string
	Failure          func(string) string
}

func render(style lipgloss.Style) func(string) string {
	return func(s string) string { return style.Render(s) }
}

func DefaultStyles() Styles {
	return Styles{
		Header:           render(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))),
		Normal:           render(lipgloss.NewStyle()),
		Selected:         render(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4"))),
		Disabled:         render(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))),
		DisabledSelected: render(lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Background(lipgloss.Color("236"))),
		Secondary:        render(lipgloss.NewStyle().Foreground(lipgloss.Color("244"))),
		Success:          render(lipgloss.NewStyle().Foreground(lipgloss.Color("42"))),
		Failure:          render(lipgloss.NewStyle().Foreground(lipgloss.Color("196"))),
	}
}

// PlainStyles renders nothing but the text.
func PlainStyles() Styles {
	plain := func(s string) string { return s }
	return Styles{
		Header:           plain,
		Normal:           plain,
		Selected:         plain,
		Disabled:         plain,
		DisabledSelected: plain,
		Secondary:        plain,
		Success:          plain,
		Failure:          plain,
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// StylesFor picks colored styles for terminals and plain text otherwise.
// NO_COLOR forces plain output.
func StylesFor(w io.Writer) Styles {
	if !IsTerminal(w) || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return PlainStyles()
	}
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	return DefaultStyles()
}

// PadOrTrim fits s into exactly width terminal cells.
func PadOrTrim(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}
