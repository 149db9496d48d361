package llm

import (
	"context"
	"strings"

	openai "github.com/openai/openai-go"
	oshared "github.com/openai/openai-go/shared"

	"workspace-editor-server/internal/models"
)

// chatCompletionsEngine talks to OpenAI-compatible Chat Completions
// gateways such as DeepSeek.
type chatCompletionsEngine struct {
	client openai.Client
}

func newChatCompletionsEngine(baseURL, apiKey string) *chatCompletionsEngine {
	return &chatCompletionsEngine{client: openai.NewClient(openAIOptions(baseURL, apiKey)...)}
}

func (e *chatCompletionsEngine) Complete(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:     oshared.ChatModel(strings.TrimSpace(req.Model)),
		Messages:  buildChatMessages(req),
		MaxTokens: openai.Int(maxOutputTokens(req)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = buildChatTools(req.Tools)
		params.ParallelToolCalls = openai.Bool(false)
	}

	completion, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, transportError("chat completions", err)
	}
	out := Response{
		Message: models.ConversationMessage{Role: models.RoleAssistant},
		Usage: models.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}
	if len(completion.Choices) == 0 {
		return out, nil
	}
	choice := completion.Choices[0]
	out.FinishReason = choice.FinishReason
	out.Message.Content = strings.TrimSpace(choice.Message.Content)
	for _, call := range choice.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, models.ToolInvocation{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: rawArguments(call.Function.Arguments),
		})
	}
	return out, nil
}

func buildChatTools(defs []models.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		fn := oshared.FunctionDefinitionParam{
			Name:       def.Name,
			Parameters: oshared.FunctionParameters(def.InputSchema),
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func buildChatMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if system := systemPrompt(req); system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: argumentsString(call),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case models.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}
