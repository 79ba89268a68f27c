package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"expensechat/internal/domain"
)

// Default endpoints for OpenAI-compatible Chat Completions services.
const (
	DefaultGatewayURL   = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultGatewayModel = "google/gemini-2.5-flash"
	OpenRouterURL       = "https://openrouter.ai/api/v1/chat/completions"
)

// GatewayClient calls an OpenAI-compatible Chat Completions endpoint with
// function calling. It serves both the AI gateway and OpenRouter.
type GatewayClient struct {
	name        string
	apiKey      string
	model       string
	client      *http.Client
	baseURL     string
	marshalFunc func(v interface{}) ([]byte, error) // for testing
}

// NewGatewayClient returns a client for the Chat Completions endpoint at
// baseURL. name labels errors and logs.
func NewGatewayClient(name, apiKey, model, baseURL string) *GatewayClient {
	return &GatewayClient{
		name:        name,
		apiKey:      apiKey,
		model:       model,
		client:      &http.Client{},
		baseURL:     baseURL,
		marshalFunc: json.Marshal,
	}
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements domain.CompletionClient.
func (c *GatewayClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr(c.name, "canceled", err)
	}
	body := chatRequest{Model: c.model, Messages: toChatMessages(messages)}
	if len(tools) > 0 {
		body.Tools = toChatTools(tools)
		body.ToolChoice = "auto"
	}
	raw, err := c.marshalFunc(body)
	if err != nil {
		return nil, transportErr(c.name, "marshal", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, transportErr(c.name, "request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportErr(c.name, "do", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		return nil, classifyStatus(c.name, resp.StatusCode, errBody)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, transportErr(c.name, "decode", err)
	}
	if len(out.Choices) == 0 {
		return nil, &domain.TransportError{Provider: c.name, StatusCode: resp.StatusCode, Err: errNoChoices}
	}
	return fromChatMessage(out.Choices[0].Message), nil
}

func toChatMessages(messages []domain.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		cm := chatMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		content := m.Content
		if content != "" || len(m.ToolCalls) == 0 {
			cm.Content = &content
		}
		for _, inv := range m.ToolCalls {
			tc := chatToolCall{ID: inv.CallID, Type: "function"}
			tc.Function.Name = inv.Name
			tc.Function.Arguments = string(inv.Arguments)
			cm.ToolCalls = append(cm.ToolCalls, tc)
		}
		out = append(out, cm)
	}
	return out
}

func toChatTools(tools []domain.ToolDefinition) []chatTool {
	out := make([]chatTool, len(tools))
	for i, t := range tools {
		out[i].Type = "function"
		out[i].Function.Name = t.Name
		out[i].Function.Description = t.Description
		out[i].Function.Parameters = t.Parameters
	}
	return out
}

func fromChatMessage(m chatMessage) *domain.Completion {
	c := &domain.Completion{}
	if m.Content != nil {
		c.Content = *m.Content
	}
	for _, tc := range m.ToolCalls {
		c.ToolInvocations = append(c.ToolInvocations, domain.ToolInvocation{
			CallID:    tc.ID,
			Name:      tc.Function.Name,
			Arguments: rawArguments(tc.Function.Arguments),
		})
	}
	return c
}

// rawArguments turns the model's argument string into JSON. Text that is not
// valid JSON is kept as a JSON string so schema validation rejects it.
func rawArguments(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

var _ domain.CompletionClient = (*GatewayClient)(nil)
