package llm

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"

	"workspace-editor-server/internal/models"
)

// openAIEngine talks to the OpenAI Responses API.
type openAIEngine struct {
	client openai.Client
}

func openAIOptions(baseURL, apiKey string) []ooption.RequestOption {
	opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, ooption.WithBaseURL(baseURL))
	}
	return opts
}

func newOpenAIEngine(baseURL, apiKey string) *openAIEngine {
	return &openAIEngine{client: openai.NewClient(openAIOptions(baseURL, apiKey)...)}
}

func (e *openAIEngine) Complete(ctx context.Context, req Request) (Response, error) {
	params := oresponses.ResponseNewParams{
		Model:             oshared.ResponsesModel(strings.TrimSpace(req.Model)),
		MaxOutputTokens:   openai.Int(maxOutputTokens(req)),
		ParallelToolCalls: openai.Bool(false),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	items := buildResponsesInput(req.Messages)
	if len(items) == 0 {
		items = append(items, oresponses.ResponseInputItemParamOfMessage("Continue.", oresponses.EasyInputMessageRoleUser))
	}
	params.Input = oresponses.ResponseNewParamsInputUnion{OfInputItemList: items}
	if system := systemPrompt(req); system != "" {
		params.Instructions = openai.String(system)
	}
	if len(req.Tools) > 0 {
		params.Tools = buildResponsesTools(req.Tools)
	}

	resp, err := e.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, transportError("openai", err)
	}

	out := Response{
		Message: models.ConversationMessage{
			Role:    models.RoleAssistant,
			Content: strings.TrimSpace(resp.OutputText()),
		},
		Usage: models.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(resp.Status),
	}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		callID := strings.TrimSpace(item.CallID)
		if callID == "" {
			callID = item.ID
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, models.ToolInvocation{
			ID:        callID,
			Name:      item.Name,
			Arguments: rawArguments(item.Arguments),
		})
	}
	return out, nil
}

func buildResponsesTools(defs []models.ToolDefinition) []oresponses.ToolUnionParam {
	out := make([]oresponses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		// Optional properties are not expressible under strict function
		// schemas, so the server-side parser enforces strictness instead.
		tool := oresponses.ToolParamOfFunction(def.Name, map[string]any(def.InputSchema), false)
		if tool.OfFunction != nil && def.Description != "" {
			tool.OfFunction.Description = openai.String(def.Description)
		}
		out = append(out, tool)
	}
	return out
}

func buildResponsesInput(messages []models.ConversationMessage) oresponses.ResponseInputParam {
	items := make(oresponses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			items = append(items, oresponses.ResponseInputItemParamOfMessage(msg.Content, oresponses.EasyInputMessageRoleUser))
		case models.RoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				items = append(items, oresponses.ResponseInputItemParamOfMessage(msg.Content, oresponses.EasyInputMessageRoleAssistant))
			}
			for _, call := range msg.ToolCalls {
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCall(argumentsString(call), call.ID, call.Name))
			}
		case models.RoleTool:
			if msg.ToolCallID != "" {
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))
			}
		}
	}
	return items
}

// rawArguments keeps provider arguments as raw JSON when they parse and as
// a JSON string otherwise, so malformed payloads reach the tool parser.
func rawArguments(args string) json.RawMessage {
	trimmed := strings.TrimSpace(args)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(args)
	return json.RawMessage(quoted)
}
