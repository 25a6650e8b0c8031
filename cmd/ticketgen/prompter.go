package main

import (
	"errors"
	"io"

	"github.com/charmbracelet/huh"
)

type ExistingAction int

const (
	ExistingRun ExistingAction = iota
	ExistingRegenerate
	ExistingCancel
)

// Prompter asks the operator everything the pipeline and publisher need.
type Prompter interface {
	SelectTicket(tickets []Ticket) (Ticket, error)
	ExistingProjectAction(name string) (ExistingAction, error)
	Confirm(title string, description string) (bool, error)
	GitIdentity(current GitIdentity) (GitIdentity, error)
}

type HuhPrompter struct {
	io formIO
}

func NewHuhPrompter(in io.Reader, out io.Writer, accessible bool) *HuhPrompter {
	return &HuhPrompter{io: formIO{in: in, out: out, accessible: accessible}}
}

func (p *HuhPrompter) run(form *huh.Form) error {
	err := p.io.apply(form).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return errCancelled
	}
	return err
}

func (p *HuhPrompter) SelectTicket(tickets []Ticket) (Ticket, error) {
	if len(tickets) == 0 {
		return Ticket{}, errNoTickets
	}
	choice := 0
	if err := p.run(newTicketSelectForm(tickets, &choice)); err != nil {
		return Ticket{}, err
	}
	if choice < 0 || choice >= len(tickets) {
		return Ticket{}, errInvalidSelection
	}
	return tickets[choice], nil
}

func (p *HuhPrompter) ExistingProjectAction(name string) (ExistingAction, error) {
	action := ExistingRun
	if err := p.run(newExistingProjectForm(name, &action)); err != nil {
		return ExistingCancel, err
	}
	return action, nil
}

func (p *HuhPrompter) Confirm(title string, description string) (bool, error) {
	result := true
	if err := p.run(newConfirmForm(title, description, &result)); err != nil {
		return false, err
	}
	return result, nil
}

func (p *HuhPrompter) GitIdentity(current GitIdentity) (GitIdentity, error) {
	name, email := current.Name, current.Email
	if err := p.run(newGitIdentityForm(&name, &email)); err != nil {
		return GitIdentity{}, err
	}
	return GitIdentity{Name: name, Email: email}, nil
}
