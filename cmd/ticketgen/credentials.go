package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

const (
	envJiraBaseURL  = "JIRA_BASE_URL"
	envJiraEmail    = "JIRA_EMAIL"
	envJiraAPIToken = "JIRA_API_TOKEN"
	envGroqAPIKey   = "GROQ_API_KEY"
	envOpenAIAPIKey = "OPENAI_API_KEY"
	envGeminiAPIKey = "GEMINI_API_KEY"
	envGitHubToken  = "GITHUB_TOKEN"

	appSecretSuffix = "_API_KEY"
)

// Credentials holds every secret the tool uses. It is loaded once and handed
// to each component explicitly.
type Credentials struct {
	JiraBaseURL  string
	JiraEmail    string
	JiraAPIToken string
	GroqAPIKey   string
	OpenAIAPIKey string
	GeminiAPIKey string
	GitHubToken  string

	// Secrets are third-party keys meant for the generated apps, such as
	// OPEN_WEATHER_API_KEY.
	Secrets map[string]string
}

func credentialsPath() string {
	if p := strings.TrimSpace(os.Getenv("TICKETGEN_ENV_FILE")); p != "" {
		return p
	}
	return defaultEnvFile
}

// LoadCredentials reads the dotenv file at path. getenv fills keys the file
// does not define; a missing file is not an error on its own.
func LoadCredentials(path string, getenv func(string) string) (Credentials, error) {
	values := map[string]string{}
	if strings.TrimSpace(path) != "" {
		fileValues, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Credentials{}, &ConfigError{Err: fmt.Errorf("read %s: %w", path, err)}
		}
		for k, v := range fileValues {
			values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	lookup := func(key string) string {
		if v := values[key]; v != "" {
			return v
		}
		if getenv == nil {
			return ""
		}
		return strings.TrimSpace(getenv(key))
	}

	creds := Credentials{
		JiraBaseURL:  strings.TrimRight(lookup(envJiraBaseURL), "/"),
		JiraEmail:    lookup(envJiraEmail),
		JiraAPIToken: lookup(envJiraAPIToken),
		GroqAPIKey:   lookup(envGroqAPIKey),
		OpenAIAPIKey: lookup(envOpenAIAPIKey),
		GeminiAPIKey: lookup(envGeminiAPIKey),
		GitHubToken:  lookup(envGitHubToken),
		Secrets:      map[string]string{},
	}
	for k, v := range values {
		if v == "" || !strings.HasSuffix(k, appSecretSuffix) || isProviderKey(k) {
			continue
		}
		creds.Secrets[k] = v
	}
	return creds, nil
}

func isProviderKey(name string) bool {
	switch name {
	case envGroqAPIKey, envOpenAIAPIKey, envGeminiAPIKey:
		return true
	default:
		return false
	}
}

func providerKeyName(provider string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case providerGroq:
		return envGroqAPIKey, nil
	case providerOpenAI:
		return envOpenAIAPIKey, nil
	case providerGemini:
		return envGeminiAPIKey, nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}

func (c Credentials) providerKey(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case providerGroq:
		return c.GroqAPIKey
	case providerOpenAI:
		return c.OpenAIAPIKey
	case providerGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// RequireTracker checks the issue tracker credentials.
func (c Credentials) RequireTracker() error {
	var missing []string
	if c.JiraBaseURL == "" {
		missing = append(missing, envJiraBaseURL)
	}
	if c.JiraEmail == "" {
		missing = append(missing, envJiraEmail)
	}
	if c.JiraAPIToken == "" {
		missing = append(missing, envJiraAPIToken)
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// RequireGeneration checks everything the generate pipeline needs before any
// network call is made.
func (c Credentials) RequireGeneration(provider string) error {
	keyName, err := providerKeyName(provider)
	if err != nil {
		return &ConfigError{Err: err}
	}
	var missing []string
	if err := c.RequireTracker(); err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			missing = append(missing, cfgErr.Missing...)
		}
	}
	if c.providerKey(provider) == "" {
		missing = append(missing, keyName)
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

func (c Credentials) RequirePublish() error {
	if c.GitHubToken == "" {
		return &ConfigError{Missing: []string{envGitHubToken}}
	}
	return nil
}

// SecretNames lists the app secret names, sorted. Only names ever leave the
// machine.
func (c Credentials) SecretNames() []string {
	names := make([]string, 0, len(c.Secrets))
	for k := range c.Secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c Credentials) AppSecrets() map[string]string {
	out := make(map[string]string, len(c.Secrets))
	for k, v := range c.Secrets {
		out[k] = v
	}
	return out
}
