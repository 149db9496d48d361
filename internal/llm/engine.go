// Package llm adapts reasoning-engine providers to one blocking
// request/response call. Every provider failure is returned as a
// TRANSPORT_ERROR TurnError.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"workspace-editor-server/internal/errors"
	"workspace-editor-server/internal/models"
)

// Provider types accepted by New.
const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai_compatible"
	ProviderAnthropic        = "anthropic"
)

const defaultMaxOutputTokens = 2000

// Request is one completion call.
type Request struct {
	Model string
	// System is sent as the provider's system prompt. System messages found in
	// Messages are appended to it.
	System          string
	Messages        []models.ConversationMessage
	Tools           []models.ToolDefinition
	MaxOutputTokens int64
	Temperature     *float64
}

// Response is the assistant turn produced by a completion call.
type Response struct {
	Message      models.ConversationMessage
	Usage        models.Usage
	FinishReason string
}

// Engine is a reasoning engine.
type Engine interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Options selects and configures a provider.
type Options struct {
	Type    string
	BaseURL string
	APIKey  string
}

// New builds the engine for opts.Type. A missing API key is an error.
func New(opts Options) (Engine, error) {
	providerType := strings.ToLower(strings.TrimSpace(opts.Type))
	apiKey := strings.TrimSpace(opts.APIKey)
	baseURL := strings.TrimSpace(opts.BaseURL)
	if apiKey == "" {
		return nil, fmt.Errorf("missing provider api key")
	}
	switch providerType {
	case ProviderOpenAI:
		return newOpenAIEngine(baseURL, apiKey), nil
	case ProviderOpenAICompatible:
		return newChatCompletionsEngine(baseURL, apiKey), nil
	case ProviderAnthropic:
		return newAnthropicEngine(baseURL, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", opts.Type)
	}
}

func transportError(provider string, err error) error {
	return errors.WrapTurnError(errors.KindTransport, fmt.Sprintf("%s request failed", provider), err)
}

// systemPrompt joins the request's system prompt with any system messages
// in the history.
func systemPrompt(req Request) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(req.System); s != "" {
		parts = append(parts, s)
	}
	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem {
			if s := strings.TrimSpace(msg.Content); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// argumentsString returns invocation arguments as a JSON object string,
// falling back to "{}" when the stored payload is not valid JSON.
func argumentsString(inv models.ToolInvocation) string {
	raw := inv.ArgumentsJSON()
	if len(raw) == 0 || !json.Valid(raw) {
		return "{}"
	}
	return string(raw)
}

func maxOutputTokens(req Request) int64 {
	if req.MaxOutputTokens > 0 {
		return req.MaxOutputTokens
	}
	return defaultMaxOutputTokens
}
