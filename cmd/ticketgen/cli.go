package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mrbonezy/ticketgen/ui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cliEnv struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	log    *logrus.Logger
}

func (e cliEnv) prompter() *HuhPrompter {
	return NewHuhPrompter(e.stdin, e.stdout, accessibleModeEnabled() || !ui.IsTerminal(e.stdout))
}

func (e cliEnv) styles() ui.Styles {
	return ui.StylesFor(e.stdout)
}

func newRootCommand(args []string, env cliEnv) *cobra.Command {
	var showVersion bool
	root := &cobra.Command{
		Use:           "ticketgen",
		Short:         "Turn assigned tickets into runnable generated projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(env.stdout, "ticketgen %s\n", currentVersion())
				return nil
			}
			return runGenerate(cmd.Context(), env)
		},
	}
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Print ticketgen version and exit")
	root.SetIn(env.stdin)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	root.AddCommand(
		newPublishCommand(env),
		newWhoamiCommand(env),
		newConfigCommand(env),
	)

	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}
	return root
}

func loadSettings() (Config, Credentials, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return Config{}, Credentials{}, err
	}
	creds, err := LoadCredentials(credentialsPath(), os.Getenv)
	if err != nil {
		return Config{}, Credentials{}, err
	}
	return cfg, creds, nil
}

func runGenerate(ctx context.Context, env cliEnv) error {
	cfg, creds, err := loadSettings()
	if err != nil {
		return err
	}
	if err := creds.RequireGeneration(cfg.Provider); err != nil {
		return err
	}
	generator, err := NewCodeGenerator(ctx, cfg, creds, env.log)
	if err != nil {
		return err
	}
	prompt := env.prompter()
	pipeline := NewPipeline(cfg, creds, PipelineDeps{
		Tickets:     NewJiraClient(creds, cfg, env.log),
		Generator:   generator,
		Materialize: NewMaterializer(cfg.ProjectsDir, env.stdout, env.log),
		Provision:   NewProvisioner(env.log),
		Runner:      NewRunner(cfg, env.stdout, env.stderr, env.log),
		Prompt:      prompt,
		Spin: func(ctx context.Context, title string, fn func(context.Context) error) error {
			err := ui.RunWithSpinner(ctx, title, env.stdin, env.stdout, fn)
			if errors.Is(err, ui.ErrSpinnerInterrupted) {
				return errCancelled
			}
			return err
		},
		Styles: env.styles(),
	}, env.stdout, env.log)
	return pipeline.Run(ctx)
}

func newPublishCommand(env cliEnv) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "publish [project...]",
		Short: "Push each generated project to its own branch",
		RunE: func(cmd *cobra.Command, projects []string) error {
			cfg, creds, err := loadSettings()
			if err != nil {
				return err
			}
			if strings.TrimSpace(policy) != "" {
				cfg.PublishFailurePolicy = strings.ToLower(strings.TrimSpace(policy))
				if err := cfg.Validate(); err != nil {
					return &ConfigError{Err: err}
				}
			}
			if err := creds.RequirePublish(); err != nil {
				return err
			}
			publisher := NewPublisher(PublisherOptions{
				ProjectsDir:   cfg.ProjectsDir,
				RepoDir:       cfg.PublishDir,
				RemoteRepo:    cfg.RemoteRepo,
				DefaultBranch: cfg.DefaultBranch,
				Policy:        cfg.PublishFailurePolicy,
				Token:         creds.GitHubToken,
			}, NewGHManager(creds.GitHubToken, env.log), env.prompter(), env.stdout, env.log)

			result, err := publisher.Publish(cmd.Context(), projects)
			if rows := publishRows(result); len(rows) > 0 {
				fmt.Fprintln(env.stdout, ui.RenderPublishSummary(rows, env.styles()))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&policy, "on-failure", "", "Failure policy for multiple projects: abort or continue")
	return cmd
}

func publishRows(result PublishResult) []ui.PublishRow {
	rows := make([]ui.PublishRow, 0, len(result.Published)+len(result.Unchanged)+len(result.Failed))
	for _, name := range result.Published {
		rows = append(rows, ui.PublishRow{Project: name, Outcome: ui.PublishPublished})
	}
	for _, name := range result.Unchanged {
		rows = append(rows, ui.PublishRow{Project: name, Outcome: ui.PublishUnchanged})
	}
	failed := make([]string, 0, len(result.Failed))
	for name := range result.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		rows = append(rows, ui.PublishRow{Project: name, Outcome: ui.PublishFailed, Detail: result.Failed[name].Error()})
	}
	return rows
}

func newWhoamiCommand(env cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Check the issue tracker credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, creds, err := loadSettings()
			if err != nil {
				return err
			}
			if err := creds.RequireTracker(); err != nil {
				return err
			}
			user, err := NewJiraClient(creds, cfg, env.log).CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(env.stdout, "Authenticated to %s as %s", creds.JiraBaseURL, user.DisplayName)
			if user.EmailAddress != "" {
				fmt.Fprintf(env.stdout, " <%s>", user.EmailAddress)
			}
			fmt.Fprintln(env.stdout)
			return nil
		},
	}
}

func newConfigCommand(env cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Open interactive configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			existed, err := ConfigExists()
			if err != nil {
				return err
			}
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			if !testModeEnabled() {
				if !existed {
					fmt.Fprintln(env.stdout, "No settings saved yet; starting from the defaults.")
				}
				if err := runConfigForm(&cfg, env); err != nil {
					return err
				}
			}
			if err := SaveConfig(cfg); err != nil {
				return err
			}
			path, _ := configPath()
			if existed {
				fmt.Fprintf(env.stdout, "Saved %s\n", path)
			} else {
				fmt.Fprintf(env.stdout, "Created %s\n", path)
			}
			return nil
		},
	}
}

func runConfigForm(cfg *Config, env cliEnv) error {
	provider := cfg.Provider
	model := cfg.Model
	policy := cfg.PublishFailurePolicy
	projectsDir := cfg.ProjectsDir
	publishDir := cfg.PublishDir
	remote := cfg.RemoteRepo
	port := strconv.Itoa(cfg.AppPort)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("Groq", providerGroq),
					huh.NewOption("OpenAI", providerOpenAI),
					huh.NewOption("Gemini", providerGemini),
				).
				Value(&provider),
			huh.NewInput().
				Title("Model (empty for the provider default)").
				Inline(true).
				Value(&model),
		),
		huh.NewGroup(
			huh.NewInput().Title("Projects directory").Inline(true).Value(&projectsDir),
			huh.NewInput().Title("Publish repository directory").Inline(true).Value(&publishDir),
			huh.NewInput().Title("Remote repository name").Inline(true).Value(&remote),
			huh.NewInput().
				Title("App port").
				Inline(true).
				Value(&port).
				Validate(func(value string) error {
					n, err := strconv.Atoi(strings.TrimSpace(value))
					if err != nil || n < 1 || n > 65535 {
						return errors.New("port must be between 1 and 65535")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("When one project fails to publish").
				Options(
					huh.NewOption("Stop the run", policyAbort),
					huh.NewOption("Continue with the rest", policyContinue),
				).
				Value(&policy),
		),
	)
	fio := formIO{in: env.stdin, out: env.stdout, accessible: accessibleModeEnabled()}
	if err := fio.apply(form).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errCancelled
		}
		return err
	}

	if provider != cfg.Provider && model == cfg.Model {
		model = ""
	}
	cfg.Provider = provider
	cfg.Model = strings.TrimSpace(model)
	cfg.PublishFailurePolicy = policy
	cfg.ProjectsDir = projectsDir
	cfg.PublishDir = publishDir
	cfg.RemoteRepo = remote
	cfg.AppPort, _ = strconv.Atoi(strings.TrimSpace(port))
	*cfg = cfg.withDefaults()
	return nil
}
