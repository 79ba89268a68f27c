package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"expensechat/internal/domain"
)

// DefaultOpenAIURL is the OpenAI API root used when no base URL is configured.
const DefaultOpenAIURL = "https://api.openai.com/v1/"

// OpenAIClient calls Chat Completions through the official openai-go SDK.
// Any OpenAI-compatible endpoint works via the base URL.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient returns an SDK-backed client. The SDK's own retries are
// disabled; retrying is the job of retry.RetryableClient.
func NewOpenAIClient(apiKey, model, baseURL string, opts ...option.RequestOption) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	return &OpenAIClient{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Complete implements domain.CompletionClient.
func (c *OpenAIClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition) (*domain.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		defs, err := toOpenAITools(tools)
		if err != nil {
			return nil, transportErr("openai", "tools", err)
		}
		params.Tools = defs
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, classifyStatus("openai", apiErr.StatusCode, []byte(apiErr.Message))
		}
		return nil, transportErr("openai", "do", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.TransportError{Provider: "openai", StatusCode: 200, Err: errNoChoices}
	}

	msg := resp.Choices[0].Message
	out := &domain.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolInvocations = append(out.ToolInvocations, domain.ToolInvocation{
			CallID:    tc.ID,
			Name:      tc.Function.Name,
			Arguments: rawArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case domain.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, inv := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: inv.CallID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      inv.Name,
						Arguments: string(inv.Arguments),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []domain.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		var params openai.FunctionParameters
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			return nil, fmt.Errorf("tool %s parameters: %w", t.Name, err)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

var _ domain.CompletionClient = (*OpenAIClient)(nil)
