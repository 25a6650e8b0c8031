package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testGenerator(url string, debugPath string) *CodeGenerator {
	return &CodeGenerator{
		chat:      newOpenAIChatClient(providerGroq, url, "test-key", "test-model", 0.2),
		debugPath: debugPath,
		log:       discardLogger(),
	}
}

func TestCodeGenerator_Generate(t *testing.T) {
	var seen chatRequest
	srv := chatServer(t, http.StatusOK, "```json\n"+sampleResponse+"\n```", &seen)
	gen := testGenerator(srv.URL, filepath.Join(t.TempDir(), "raw.txt"))

	project, err := gen.Generate(context.Background(), GenerationRequest{
		Key:         "WTH-42",
		Summary:     "Weather widget",
		Description: "Show the forecast",
		SecretNames: []string{"OPEN_WEATHER_API_KEY"},
		Port:        5001,
	})
	require.NoError(t, err)
	assert.Equal(t, "project_wth-42", project.Name)
	assert.Equal(t, "weather_app", project.ModelName)
	assert.Len(t, project.Files, 2)

	assert.Equal(t, "test-model", seen.Model)
	assert.InDelta(t, 0.2, seen.Temperature, 1e-9)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	prompt := seen.Messages[1].Content
	assert.Contains(t, prompt, "WTH-42")
	assert.Contains(t, prompt, "Show the forecast")
	assert.Contains(t, prompt, "OPEN_WEATHER_API_KEY")
	assert.Contains(t, prompt, "port 5001")
}

func TestCodeGenerator_InvalidJSONSavesRawResponse(t *testing.T) {
	raw := "Sure! Here is your project: {not json"
	srv := chatServer(t, http.StatusOK, raw, nil)
	debugPath := filepath.Join(t.TempDir(), "llm_raw_response.txt")
	gen := testGenerator(srv.URL, debugPath)

	_, err := gen.Generate(context.Background(), GenerationRequest{Key: "A-1"})
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr), "expected GenerationError, got %v", err)
	assert.Equal(t, GenerationInvalidJSON, genErr.Kind)
	assert.Equal(t, debugPath, genErr.DebugPath)

	saved, rerr := os.ReadFile(debugPath)
	require.NoError(t, rerr)
	assert.Equal(t, raw, string(saved))
	assert.Contains(t, err.Error(), debugPath)
}

func TestCodeGenerator_WrongShapeSavesRawResponse(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"project_name": "x", "files": []}`, nil)
	debugPath := filepath.Join(t.TempDir(), "raw.txt")

	_, err := testGenerator(srv.URL, debugPath).Generate(context.Background(), GenerationRequest{Key: "A-1"})
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, GenerationInvalidShape, genErr.Kind)
	assert.FileExists(t, debugPath)
}

func TestCodeGenerator_AuthFailure(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, "", nil)

	_, err := testGenerator(srv.URL, filepath.Join(t.TempDir(), "raw.txt")).Generate(context.Background(), GenerationRequest{Key: "A-1"})
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected AuthError, got %v", err)
	assert.Equal(t, providerGroq, authErr.Service)
}

func TestCodeGenerator_ServerErrorIsRequestFailure(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError, "", nil)
	debugPath := filepath.Join(t.TempDir(), "raw.txt")

	_, err := testGenerator(srv.URL, debugPath).Generate(context.Background(), GenerationRequest{Key: "A-1"})
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, GenerationRequestFailed, genErr.Kind)
	assert.NoFileExists(t, debugPath)
}

func TestNewCodeGenerator_Providers(t *testing.T) {
	cfg := DefaultConfig()
	gen, err := NewCodeGenerator(context.Background(), cfg, Credentials{GroqAPIKey: "k"}, nil)
	require.NoError(t, err)
	client, ok := gen.chat.(*openAIChatClient)
	require.True(t, ok)
	assert.Equal(t, groqChatURL, client.endpoint)

	cfg.Provider = providerOpenAI
	gen, err = NewCodeGenerator(context.Background(), cfg, Credentials{OpenAIAPIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, openAIChatURL, gen.chat.(*openAIChatClient).endpoint)

	cfg.Provider = "mystery"
	_, err = NewCodeGenerator(context.Background(), cfg, Credentials{}, nil)
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestNewGeminiChatClientRequiresKey(t *testing.T) {
	_, err := newGeminiChatClient(context.Background(), " ", "gemini-2.0-flash", 0.7)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{envGeminiAPIKey}, cfgErr.Missing)
}

func TestIsGeminiAuthFailure(t *testing.T) {
	assert.True(t, isGeminiAuthFailure(errors.New("Error 400, Message: API key not valid. Please pass a valid API key.")))
	assert.True(t, isGeminiAuthFailure(errors.New("Error 403, Status: PERMISSION_DENIED")))
	assert.False(t, isGeminiAuthFailure(errors.New("Error 500, Status: INTERNAL")))
}

func TestProjectNameForTicket(t *testing.T) {
	cases := map[string]string{
		"ABC-123":     "project_abc-123",
		" KAN-7 ":     "project_kan-7",
		"weird key!!": "project_weird_key",
		"":            "project_untitled",
	}
	for key, want := range cases {
		if got := projectNameForTicket(key); got != want {
			t.Fatalf("projectNameForTicket(%q): expected %q, got %q", key, want, got)
		}
	}
}

func TestBuildGenerationPrompt_Defaults(t *testing.T) {
	prompt := buildGenerationPrompt(GenerationRequest{Key: "A-1", Summary: "s"})
	assert.Contains(t, prompt, "(No description)")
	assert.Contains(t, prompt, "(none)")
	assert.Contains(t, prompt, "host 127.0.0.1 port 5000")
	assert.True(t, strings.Contains(prompt, `"project_name": "project_a-1"`))
}

func TestNewCodeGenerator_ChatEndpointOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChatEndpoint = "http://127.0.0.1:9999/v1/chat/completions"
	gen, err := NewCodeGenerator(context.Background(), cfg, Credentials{GroqAPIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.ChatEndpoint, gen.chat.(*openAIChatClient).endpoint)
}
