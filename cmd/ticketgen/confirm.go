package main

import (
	"errors"
	"io"
	"net/mail"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const (
	confirmFieldKey  = "confirm_result"
	ticketFieldKey   = "ticket_choice"
	existingFieldKey = "existing_action"
	gitNameFieldKey  = "git_user_name"
	gitEmailFieldKey = "git_user_email"
)

func ticketgenHuhTheme() *huh.Theme {
	t := *huh.ThemeCharm()
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(lipgloss.Color("#7D56F4"))
	t.Focused.Next = t.Focused.FocusedButton
	return &t
}

type formIO struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

func (f formIO) apply(form *huh.Form) *huh.Form {
	form = form.WithTheme(ticketgenHuhTheme()).WithShowHelp(false).WithAccessible(f.accessible)
	if f.in != nil {
		form = form.WithInput(f.in)
	}
	if f.out != nil {
		form = form.WithOutput(f.out)
	}
	return form
}

func newConfirmForm(title string, description string, result *bool) *huh.Form {
	confirm := huh.NewConfirm().
		Key(confirmFieldKey).
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(result)

	return huh.NewForm(huh.NewGroup(confirm))
}

func newTicketSelectForm(tickets []Ticket, choice *int) *huh.Form {
	options := make([]huh.Option[int], 0, len(tickets))
	for i, t := range tickets {
		options = append(options, huh.NewOption(ticketOptionLabel(i, t), i))
	}
	sel := huh.NewSelect[int]().
		Key(ticketFieldKey).
		Title("Select a ticket to work on").
		Options(options...).
		Value(choice)
	return huh.NewForm(huh.NewGroup(sel))
}

func ticketOptionLabel(i int, t Ticket) string {
	label := strconv.Itoa(i+1) + ". " + strings.TrimSpace(t.Key) + "  " + strings.TrimSpace(t.Summary)
	if status := strings.TrimSpace(t.Status); status != "" {
		label += "  [" + status + "]"
	}
	return label
}

func newExistingProjectForm(name string, action *ExistingAction) *huh.Form {
	sel := huh.NewSelect[ExistingAction]().
		Key(existingFieldKey).
		Title("Project " + name + " already exists").
		Options(
			huh.NewOption("Run the existing project", ExistingRun),
			huh.NewOption("Regenerate it from the ticket", ExistingRegenerate),
			huh.NewOption("Cancel", ExistingCancel),
		).
		Value(action)
	return huh.NewForm(huh.NewGroup(sel))
}

func newGitIdentityForm(name *string, email *string) *huh.Form {
	nameInput := huh.NewInput().
		Key(gitNameFieldKey).
		Title("Git user name").
		Inline(true).
		Value(name).
		Validate(func(value string) error {
			if strings.TrimSpace(value) == "" {
				return errors.New("name is required")
			}
			return nil
		})
	emailInput := huh.NewInput().
		Key(gitEmailFieldKey).
		Title("Git user email").
		Inline(true).
		Value(email).
		Validate(func(value string) error {
			if _, err := mail.ParseAddress(strings.TrimSpace(value)); err != nil {
				return errors.New("a valid email is required")
			}
			return nil
		})
	return huh.NewForm(huh.NewGroup(nameInput, emailInput))
}
