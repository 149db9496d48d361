package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"workspace-editor-server/internal/models"
)

type anthropicEngine struct {
	client anthropic.Client
}

func newAnthropicEngine(baseURL, apiKey string) *anthropicEngine {
	opts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, aoption.WithBaseURL(baseURL))
	}
	return &anthropicEngine{client: anthropic.NewClient(opts...)}
}

func (e *anthropicEngine) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens: maxOutputTokens(req),
		Messages:  buildAnthropicMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildAnthropicTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if system := systemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, transportError("anthropic", err)
	}

	out := Response{
		Message: models.ConversationMessage{Role: models.RoleAssistant},
		Usage: models.Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
		FinishReason: string(msg.StopReason),
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			out.Message.ToolCalls = append(out.Message.ToolCalls, models.ToolInvocation{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.Input,
			})
		}
	}
	out.Message.Content = strings.TrimSpace(text.String())
	return out, nil
}

func buildAnthropicTools(defs []models.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var required []string
		switch req := def.InputSchema["required"].(type) {
		case []string:
			required = req
		case []interface{}:
			for _, v := range req {
				if s, ok := v.(string); ok {
					required = append(required, s)
				}
			}
		}
		param := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties:  def.InputSchema["properties"],
				Required:    required,
				ExtraFields: map[string]any{"additionalProperties": false},
			},
			Strict: anthropic.Bool(true),
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

// buildAnthropicMessages maps the history onto user/assistant turns. Tool
// results become tool_result blocks in a user turn, and consecutive results
// share one turn.
func buildAnthropicMessages(messages []models.ConversationMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			if msg.ToolCallID != "" {
				pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			}
		case models.RoleUser:
			flush()
			if strings.TrimSpace(msg.Content) != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case models.RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, json.RawMessage(argumentsString(call)), call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return out
}
