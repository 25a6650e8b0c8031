package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	groqChatURL          = "https://api.groq.com/openai/v1/chat/completions"
	openAIChatURL        = "https://api.openai.com/v1/chat/completions"
	defaultDebugFile     = "llm_raw_response.txt"
	chatRequestTimeout   = 3 * time.Minute
	generationSystemRole = "You are a senior software engineer. Respond ONLY with the JSON object as described."
	projectNamePrefix    = "project_"
)

var projectNameUnsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

type ProjectFile struct {
	Path    string
	Content string
}

// GeneratedProject is one model reply: the files of a single small app.
type GeneratedProject struct {
	Name      string
	ModelName string
	Files     []ProjectFile
}

type GenerationRequest struct {
	Key         string
	Summary     string
	Description string
	SecretNames []string
	Host        string
	Port        int
}

type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GeneratedProject, error)
}

type chatCompleter interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

// CodeGenerator turns a ticket into a GeneratedProject with one chat call.
// It never retries: a second call costs as much as the first.
type CodeGenerator struct {
	chat      chatCompleter
	debugPath string
	log       *logrus.Logger
}

func NewCodeGenerator(ctx context.Context, cfg Config, creds Credentials, log *logrus.Logger) (*CodeGenerator, error) {
	if log == nil {
		log = discardLogger()
	}
	key := creds.providerKey(cfg.Provider)
	var chat chatCompleter
	switch cfg.Provider {
	case providerGroq:
		chat = newOpenAIChatClient(providerGroq, orDefault(cfg.ChatEndpoint, groqChatURL), key, cfg.Model, cfg.TemperatureValue())
	case providerOpenAI:
		chat = newOpenAIChatClient(providerOpenAI, orDefault(cfg.ChatEndpoint, openAIChatURL), key, cfg.Model, cfg.TemperatureValue())
	case providerGemini:
		gemini, err := newGeminiChatClient(ctx, key, cfg.Model, cfg.TemperatureValue())
		if err != nil {
			return nil, err
		}
		chat = gemini
	default:
		return nil, &ConfigError{Err: fmt.Errorf("unknown provider %q", cfg.Provider)}
	}
	return &CodeGenerator{chat: chat, debugPath: defaultDebugFile, log: log}, nil
}

func (g *CodeGenerator) Generate(ctx context.Context, req GenerationRequest) (GeneratedProject, error) {
	prompt := buildGenerationPrompt(req)
	raw, err := g.chat.Complete(ctx, generationSystemRole, prompt)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return GeneratedProject{}, err
		}
		return GeneratedProject{}, &GenerationError{Kind: GenerationRequestFailed, Err: err}
	}
	g.log.WithFields(logrus.Fields{"ticket": req.Key, "bytes": len(raw)}).Debug("model response received")

	project, err := ParseGenerationResponse(raw)
	if err != nil {
		path, werr := saveRawResponse(g.debugPath, raw)
		if werr != nil {
			g.log.WithError(werr).Warn("could not save raw model response")
		}
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			genErr.DebugPath = path
		}
		return GeneratedProject{}, err
	}
	project.Name = projectNameForTicket(req.Key)
	if project.ModelName != project.Name {
		g.log.WithFields(logrus.Fields{"model_name": project.ModelName, "name": project.Name}).Debug("using ticket-derived project name")
	}
	return project, nil
}

func projectNameForTicket(key string) string {
	name := strings.ToLower(strings.TrimSpace(key))
	name = projectNameUnsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "untitled"
	}
	return projectNamePrefix + name
}

func saveRawResponse(path string, raw string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultDebugFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(raw), 0o644); err != nil {
		return "", err
	}
	return abs, nil
}

func buildGenerationPrompt(req GenerationRequest) string {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "(No description)"
	}
	secrets := "(none)"
	if len(req.SecretNames) > 0 {
		secrets = strings.Join(req.SecretNames, "\n")
	}
	host := orDefault(strings.TrimSpace(req.Host), defaultAppHost)
	port := req.Port
	if port <= 0 {
		port = defaultAppPort
	}

	var b strings.Builder
	b.WriteString("Generate a complete, working Python web application for the following ticket.\n\n")
	fmt.Fprintf(&b, "Ticket Key: %s\nSummary: %s\nDescription: %s\n\n", req.Key, req.Summary, description)
	fmt.Fprintf(&b, "Available API keys (names only; the values are provided at runtime through a .env file):\n%s\n\n", secrets)
	b.WriteString("## Requirements\n\n")
	b.WriteString("- Use Flask and Jinja2; load API keys from `.env` with python-dotenv.\n")
	b.WriteString("- Fetch and display real data from the required API; show clear errors when a call fails or a key is missing.\n")
	b.WriteString("- Include a `.env` template listing every required key with placeholder values.\n")
	b.WriteString("- List every dependency in `requirements.txt`, one specifier per line.\n")
	b.WriteString("- The entry point is `src/main.py`.\n")
	fmt.Fprintf(&b, "- The app must listen on host %s port %d.\n", host, port)
	b.WriteString("- Include a `README.md` with setup and usage instructions.\n\n")
	b.WriteString("## Output Format\n\n")
	b.WriteString("Return a single JSON object with this structure:\n")
	fmt.Fprintf(&b, "{\"project_name\": %q, \"files\": [{\"path\": \"src/main.py\", \"content\": \"...\"}]}\n\n", projectNameForTicket(req.Key))
	b.WriteString("Every path is relative to the project root. Respond ONLY with the JSON object, no extra text.\n")
	return b.String()
}

// openAIChatClient speaks the OpenAI-compatible chat completions protocol,
// which Groq also serves.
type openAIChatClient struct {
	provider    string
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	http        *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func newOpenAIChatClient(provider string, endpoint string, apiKey string, model string, temperature float64) *openAIChatClient {
	return &openAIChatClient{
		provider:    provider,
		endpoint:    endpoint,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		http:        &http.Client{Timeout: chatRequestTimeout},
	}
}

func (c *openAIChatClient) Complete(ctx context.Context, system string, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{Service: c.provider, Err: fmt.Errorf("%s", resp.Status)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s chat completion: %s: %s", c.provider, resp.Status, trimmedCommandOutput(string(data)))
	}
	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("%s chat completion: decode response: %w", c.provider, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: no choices returned", c.provider)
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
