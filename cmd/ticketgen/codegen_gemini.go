package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiChatClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

func newGeminiChatClient(ctx context.Context, apiKey string, model string, temperature float64) (*geminiChatClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ConfigError{Missing: []string{envGeminiAPIKey}}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &geminiChatClient{client: client, model: model, temperature: float32(temperature)}, nil
}

func (c *geminiChatClient) Complete(ctx context.Context, system string, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(c.temperature),
		ResponseMIMEType:  "application/json",
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		if isGeminiAuthFailure(err) {
			return "", &AuthError{Service: providerGemini, Err: err}
		}
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini generate content: empty response")
	}
	return text, nil
}

func isGeminiAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "permission_denied") ||
		strings.Contains(msg, "unauthenticated")
}
