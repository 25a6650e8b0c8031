package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mrbonezy/ticketgen/ui"
	"github.com/sirupsen/logrus"
)

const noTicketsMessage = "No active tickets assigned to you."

type TicketSource interface {
	ListActionableTickets(ctx context.Context) ([]Ticket, error)
	TransitionToInProgress(ctx context.Context, key string) (bool, error)
}

type EnvironmentProvisioner interface {
	Provision(ctx context.Context, root string, manifest string) (Environment, error)
	Existing(root string) (Environment, error)
}

type AppRunner interface {
	Run(ctx context.Context, root string, env Environment) (RunResult, error)
}

type spinnerFunc func(ctx context.Context, title string, fn func(context.Context) error) error

// Pipeline runs one ticket through select, generate, materialize, provision
// and run. Components are injected so each step can be replaced in tests.
type Pipeline struct {
	cfg         Config
	creds       Credentials
	tickets     TicketSource
	generator   Generator
	materialize *Materializer
	provision   EnvironmentProvisioner
	runner      AppRunner
	prompt      Prompter
	spin        spinnerFunc
	styles      ui.Styles
	out         io.Writer
	log         *logrus.Logger
	now         func() time.Time
}

type PipelineDeps struct {
	Tickets     TicketSource
	Generator   Generator
	Materialize *Materializer
	Provision   EnvironmentProvisioner
	Runner      AppRunner
	Prompt      Prompter
	Spin        spinnerFunc
	Styles      ui.Styles
}

func NewPipeline(cfg Config, creds Credentials, deps PipelineDeps, out io.Writer, log *logrus.Logger) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = discardLogger()
	}
	spin := deps.Spin
	if spin == nil {
		spin = func(ctx context.Context, title string, fn func(context.Context) error) error {
			fmt.Fprintln(out, title)
			return fn(ctx)
		}
	}
	styles := deps.Styles
	if styles.Normal == nil {
		styles = ui.PlainStyles()
	}
	return &Pipeline{
		cfg:         cfg,
		creds:       creds,
		tickets:     deps.Tickets,
		generator:   deps.Generator,
		materialize: deps.Materialize,
		provision:   deps.Provision,
		runner:      deps.Runner,
		prompt:      deps.Prompt,
		spin:        spin,
		styles:      styles,
		out:         out,
		log:         log,
		now:         time.Now,
	}
}

func (p *Pipeline) Run(ctx context.Context) error {
	tickets, err := p.tickets.ListActionableTickets(ctx)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		fmt.Fprintln(p.out, noTicketsMessage)
		return errNoTickets
	}

	fmt.Fprintln(p.out, ui.RenderTicketTable(p.ticketRows(tickets), p.styles))
	ticket, err := p.prompt.SelectTicket(tickets)
	if err != nil {
		return err
	}
	p.describeTicket(ticket)

	moved, err := p.tickets.TransitionToInProgress(ctx, ticket.Key)
	switch {
	case err != nil:
		fmt.Fprintf(p.out, "Could not move %s to In Progress: %v\n", ticket.Key, err)
	case moved:
		fmt.Fprintf(p.out, "Moved %s to In Progress.\n", ticket.Key)
	default:
		fmt.Fprintf(p.out, "No \"In Progress\" transition available for %s.\n", ticket.Key)
	}

	name := projectNameForTicket(ticket.Key)
	root := p.materialize.ProjectPath(name)
	var env Environment
	if p.materialize.Exists(name) {
		action, err := p.prompt.ExistingProjectAction(name)
		if err != nil {
			return err
		}
		switch action {
		case ExistingCancel:
			return errCancelled
		case ExistingRun:
			env, err = p.existingEnvironment(ctx, root)
			if err != nil {
				return err
			}
			return p.maybeRun(ctx, root, env)
		}
	}

	root, env, err = p.generate(ctx, ticket)
	if err != nil {
		return err
	}
	return p.maybeRun(ctx, root, env)
}

func (p *Pipeline) ticketRows(tickets []Ticket) []ui.TicketRow {
	now := p.now()
	rows := make([]ui.TicketRow, 0, len(tickets))
	for i, t := range tickets {
		rows = append(rows, ui.BuildTicketRow(i, t.Key, t.Summary, t.Status, t.StatusCategory, t.Updated, now))
	}
	return rows
}

func (p *Pipeline) describeTicket(t Ticket) {
	fmt.Fprintf(p.out, "\n%s: %s\n", t.Key, t.Summary)
	description := strings.TrimSpace(t.Description)
	if description == "" {
		description = "(No description)"
	}
	fmt.Fprintf(p.out, "\n%s\n\n", description)
}

func (p *Pipeline) generate(ctx context.Context, ticket Ticket) (string, Environment, error) {
	req := GenerationRequest{
		Key:         ticket.Key,
		Summary:     ticket.Summary,
		Description: ticket.Description,
		SecretNames: p.creds.SecretNames(),
		Host:        p.cfg.AppHost,
		Port:        p.cfg.AppPort,
	}
	var project GeneratedProject
	err := p.spin(ctx, "Generating project with "+p.cfg.Provider+" ("+p.cfg.Model+")...", func(ctx context.Context) error {
		var gerr error
		project, gerr = p.generator.Generate(ctx, req)
		return gerr
	})
	if err != nil {
		return "", Environment{}, err
	}
	p.log.WithFields(logrus.Fields{"project": project.Name, "files": len(project.Files)}).Debug("project generated")

	fmt.Fprintf(p.out, "Writing %s...\n", project.Name)
	root, err := p.materialize.Materialize(project, MaterializeOptions{
		Secrets: p.creds.AppSecrets(),
		Run:     RunDescriptor{Host: p.cfg.AppHost, Port: p.cfg.AppPort},
	})
	if err != nil {
		return "", Environment{}, err
	}

	fmt.Fprintln(p.out, "Setting up virtual environment...")
	env, err := p.provision.Provision(ctx, root, defaultManifest)
	if err != nil {
		return "", Environment{}, err
	}
	fmt.Fprintf(p.out, "✓ Project ready at %s\n", root)
	return root, env, nil
}

func (p *Pipeline) existingEnvironment(ctx context.Context, root string) (Environment, error) {
	env, err := p.provision.Existing(root)
	if err == nil {
		return env, nil
	}
	p.log.WithError(err).Debug("existing project has no environment, provisioning")
	desc, derr := readRunDescriptor(root, RunDescriptor{Host: p.cfg.AppHost, Port: p.cfg.AppPort})
	if derr != nil {
		return Environment{}, derr
	}
	return p.provision.Provision(ctx, root, desc.Manifest)
}

func (p *Pipeline) maybeRun(ctx context.Context, root string, env Environment) error {
	run, err := p.prompt.Confirm("Run the app now?", "Starts the app and opens it in your browser.")
	if err != nil {
		return err
	}
	if !run {
		fmt.Fprintf(p.out, "Skipped running. Project is at %s\n", root)
		return nil
	}
	result, err := p.runner.Run(ctx, root, env)
	if result.Warning != "" {
		fmt.Fprintln(p.out, result.Warning)
	}
	return err
}
