package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	providerGroq   = "groq"
	providerOpenAI = "openai"
	providerGemini = "gemini"

	policyAbort    = "abort"
	policyContinue = "continue"
)

const (
	defaultProjectsDir    = "generated_projects"
	defaultPublishDir     = "published"
	defaultProvider       = providerGroq
	defaultTemperature    = 0.7
	defaultTicketLimit    = 10
	defaultJiraSearchPath = "/rest/api/3/search/jql"
	defaultRemoteRepo     = "yorkhack"
	defaultBranchName     = "main"
	defaultAppHost        = "127.0.0.1"
	defaultAppPort        = 5000
	defaultStartupDelayMS = 1500
)

// Config holds non-secret preferences stored in ~/.ticketgen/config.json.
type Config struct {
	ProjectsDir          string   `json:"projects_dir,omitempty"`
	PublishDir           string   `json:"publish_dir,omitempty"`
	Provider             string   `json:"provider,omitempty"`
	Model                string   `json:"model,omitempty"`
	ChatEndpoint         string   `json:"chat_endpoint,omitempty"`
	Temperature          *float64 `json:"temperature,omitempty"`
	TicketLimit          int      `json:"ticket_limit,omitempty"`
	JiraSearchPath       string   `json:"jira_search_path,omitempty"`
	RemoteRepo           string   `json:"remote_repo,omitempty"`
	DefaultBranch        string   `json:"default_branch,omitempty"`
	PublishFailurePolicy string   `json:"publish_failure_policy,omitempty"`
	AppHost              string   `json:"app_host,omitempty"`
	AppPort              int      `json:"app_port,omitempty"`
	StartupDelayMS       int      `json:"startup_delay_ms,omitempty"`
}

func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func defaultModelForProvider(provider string) string {
	switch provider {
	case providerOpenAI:
		return "gpt-4o-mini"
	case providerGemini:
		return "gemini-2.0-flash"
	default:
		return "llama-3.3-70b-versatile"
	}
}

func (c Config) withDefaults() Config {
	c.ProjectsDir = orDefault(strings.TrimSpace(c.ProjectsDir), defaultProjectsDir)
	c.PublishDir = orDefault(strings.TrimSpace(c.PublishDir), defaultPublishDir)
	c.Provider = orDefault(strings.ToLower(strings.TrimSpace(c.Provider)), defaultProvider)
	c.Model = orDefault(strings.TrimSpace(c.Model), defaultModelForProvider(c.Provider))
	c.ChatEndpoint = strings.TrimSpace(c.ChatEndpoint)
	if c.Temperature == nil {
		t := defaultTemperature
		c.Temperature = &t
	}
	if c.TicketLimit <= 0 {
		c.TicketLimit = defaultTicketLimit
	}
	c.JiraSearchPath = orDefault(strings.TrimSpace(c.JiraSearchPath), defaultJiraSearchPath)
	c.RemoteRepo = orDefault(strings.TrimSpace(c.RemoteRepo), defaultRemoteRepo)
	c.DefaultBranch = orDefault(strings.TrimSpace(c.DefaultBranch), defaultBranchName)
	c.PublishFailurePolicy = orDefault(strings.ToLower(strings.TrimSpace(c.PublishFailurePolicy)), policyAbort)
	c.AppHost = orDefault(strings.TrimSpace(c.AppHost), defaultAppHost)
	if c.AppPort <= 0 {
		c.AppPort = defaultAppPort
	}
	if c.StartupDelayMS <= 0 {
		c.StartupDelayMS = defaultStartupDelayMS
	}
	return c
}

func (c Config) Validate() error {
	if _, err := providerKeyName(c.Provider); err != nil {
		return err
	}
	switch c.PublishFailurePolicy {
	case policyAbort, policyContinue:
	default:
		return fmt.Errorf("publish_failure_policy must be %q or %q, got %q", policyAbort, policyContinue, c.PublishFailurePolicy)
	}
	if c.AppPort < 1 || c.AppPort > 65535 {
		return fmt.Errorf("app_port out of range: %d", c.AppPort)
	}
	if !strings.HasPrefix(c.JiraSearchPath, "/") {
		return fmt.Errorf("jira_search_path must start with /, got %q", c.JiraSearchPath)
	}
	return checkSeparateDirs(c.ProjectsDir, c.PublishDir)
}

// checkSeparateDirs rejects a publish repository that is, contains or sits
// inside the projects directory. Publishing clears the repository worktree.
func checkSeparateDirs(projectsDir string, publishDir string) error {
	projects, err := resolveDir(projectsDir)
	if err != nil {
		return err
	}
	publish, err := resolveDir(publishDir)
	if err != nil {
		return err
	}
	if projects == publish || pathWithin(projects, publish) || pathWithin(publish, projects) {
		return fmt.Errorf("projects_dir %q and publish_dir %q must not overlap", projectsDir, publishDir)
	}
	return nil
}

func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	// Resolve symlinks on the longest existing prefix so a directory that does
	// not exist yet compares like its siblings.
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(real, rest), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

func pathWithin(path string, parent string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c Config) TemperatureValue() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

func (c Config) StartupDelay() time.Duration {
	return time.Duration(c.StartupDelayMS) * time.Millisecond
}

// LoadConfig returns the saved settings with defaults applied. A missing
// config file yields the defaults.
func LoadConfig() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigError{Err: fmt.Errorf("parse %s: %w", path, err)}
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	return cfg, nil
}

func ConfigExists() (bool, error) {
	path, err := configPath()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func SaveConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func configPath() (string, error) {
	home := os.Getenv("HOME")
	if strings.TrimSpace(home) == "" {
		return "", errors.New("HOME not set")
	}
	return filepath.Join(home, ".ticketgen", "config.json"), nil
}

func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
