package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var ErrSpinnerInterrupted = errors.New("interrupted")

type spinnerDoneMsg struct {
	err error
}

type spinnerModel struct {
	spinner     spinner.Model
	title       string
	done        bool
	interrupted bool
	err         error
}

func newSpinnerModel(title string) spinnerModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	return spinnerModel{spinner: s, title: title}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done || m.interrupted {
		return ""
	}
	return m.spinner.View() + " " + m.title + "\n"
}

// RunWithSpinner runs fn while a spinner is shown on out. Without a terminal
// it prints the title once and runs fn directly.
func RunWithSpinner(ctx context.Context, title string, in io.Reader, out io.Writer, fn func(context.Context) error) error {
	if !IsTerminal(out) {
		fmt.Fprintln(out, title)
		return fn(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSpinnerModel(title), tea.WithInput(in), tea.WithOutput(out), tea.WithContext(ctx))
	go func() {
		p.Send(spinnerDoneMsg{err: fn(ctx)})
	}()
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	m, ok := final.(spinnerModel)
	if !ok {
		return err
	}
	if m.interrupted {
		return ErrSpinnerInterrupted
	}
	return m.err
}
