package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	Gateway    GatewayConfig    `json:"gateway" yaml:"gateway"`
	Completion CompletionConfig `json:"completion" yaml:"completion"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Chat       ChatConfig       `json:"chat" yaml:"chat"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Infra      InfraConfig      `json:"infra" yaml:"infra"`
}

// RetryConfig controls retry behaviour for completion calls. Only transient
// transport failures are retried; rate limiting and billing errors never are.
type RetryConfig struct {
	MaxRetries     int `json:"maxRetries" yaml:"maxRetries"`         // Maximum retry attempts (0 = no retries)
	InitialBackoff int `json:"initialBackoff" yaml:"initialBackoff"` // Initial backoff in milliseconds
	MaxBackoff     int `json:"maxBackoff" yaml:"maxBackoff"`         // Maximum backoff in milliseconds
	Multiplier     int `json:"multiplier" yaml:"multiplier"`         // Backoff multiplier (e.g. 2 for exponential doubling)
}

type GatewayConfig struct {
	Port int `json:"port" yaml:"port"`
	// Tokens maps bearer tokens to the owner id they authenticate.
	Tokens         map[string]string `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	AllowedOrigins []string          `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

type CompletionConfig struct {
	Provider  string `json:"provider" yaml:"provider"` // "gateway" | "openrouter" | "openai"
	Model     string `json:"model" yaml:"model"`
	BaseURL   string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	APIKeyEnv string `json:"apiKeyEnv,omitempty" yaml:"apiKeyEnv,omitempty"` // env var holding the API key
}

type LedgerConfig struct {
	URL string `json:"url" yaml:"url"` // file:expenses.db or libsql://<db>.turso.io?authToken=...
}

type ChatConfig struct {
	ToolConcurrency  int    `json:"toolConcurrency" yaml:"toolConcurrency"`   // parallel tool calls per round (1 = sequential)
	MaxHistoryTokens int    `json:"maxHistoryTokens" yaml:"maxHistoryTokens"` // 0 disables history fitting
	Encoding         string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	HistoryDir       string `json:"historyDir,omitempty" yaml:"historyDir,omitempty"` // JSONL conversation logs per channel; empty keeps them in memory
}

type InfraConfig struct {
	LogFormat string `json:"logFormat" yaml:"logFormat"` // "json" | "text"
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
}

// =============================================================================
// Messaging Protocol
// =============================================================================

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message is one conversation turn. ToolCalls is set only on the assistant
// turn that requested tools; ToolCallID only on tool-role turns.
type Message struct {
	Role       MessageRole      `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolInvocation `json:"tool_calls,omitempty"`
}

// UnmarshalJSON accepts content as a plain string, null, or an array of
// {"type":"text","text":...} parts, which are joined with newlines.
func (m *Message) UnmarshalJSON(data []byte) error {
	type messageAlias Message
	var a struct {
		Content json.RawMessage `json:"content"`
		messageAlias
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Message(a.messageAlias)
	text, err := parseMessageContent(a.Content)
	if err != nil {
		return err
	}
	m.Content = text
	return nil
}

// parseMessageContent flattens string or text-part content into a string.
func parseMessageContent(content json.RawMessage) (string, error) {
	if len(content) == 0 || string(content) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s, nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &parts); err != nil {
		return "", fmt.Errorf("message content must be a string or an array of parts: %w", err)
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage is the tool-role turn answering the invocation with callID.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// =============================================================================
// Tooling
// =============================================================================

// ToolDefinition advertises one invokable operation to the completion service.
// Parameters holds a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolInvocation is a tool call requested by the completion service.
type ToolInvocation struct {
	CallID    string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult pairs a tool invocation with its outcome. Payload is either the
// tool's success object or a ToolError.
type ToolResult struct {
	CallID  string `json:"tool_call_id"`
	Name    string `json:"function_name"`
	Payload any    `json:"result"`
}

// ToolError is the payload of a failed tool invocation.
type ToolError struct {
	Error string `json:"error"`
}

// IsError reports whether the result carries an error payload.
func (r ToolResult) IsError() bool {
	switch r.Payload.(type) {
	case ToolError, *ToolError:
		return true
	}
	return false
}

// Completion is the response of one round with the completion service.
type Completion struct {
	Content         string
	ToolInvocations []ToolInvocation
}

// =============================================================================
// Ledger
// =============================================================================

// DateLayout is the calendar date format used across the ledger (YYYY-MM-DD).
const DateLayout = "2006-01-02"

type Category string

const (
	CategoryFood     Category = "food"
	CategoryTravel   Category = "travel"
	CategoryBills    Category = "bills"
	CategoryShopping Category = "shopping"
	CategoryOther    Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryFood, CategoryTravel, CategoryBills, CategoryShopping, CategoryOther}

// ParseCategory returns the category named s (case-insensitive).
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Expense is one ledger entry. Date is a calendar date in DateLayout.
type Expense struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Category    Category  `json:"category"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewExpense is the input of Ledger.AddExpense.
type NewExpense struct {
	Amount      float64
	Category    Category
	Date        string
	Description string
}

// ExpenseFilter narrows Ledger.GetExpenses. Zero fields do not filter.
type ExpenseFilter struct {
	Category  Category
	StartDate string // inclusive
	EndDate   string // inclusive
	Limit     int
}

// TotalFilter narrows Ledger.CalculateTotal. Zero fields do not filter.
type TotalFilter struct {
	Category  Category
	StartDate string // inclusive
	EndDate   string // inclusive
}

// Totals aggregates amounts of the matched entries.
type Totals struct {
	Total      float64              `json:"total"`
	ByCategory map[Category]float64 `json:"byCategory"`
	Count      int                  `json:"count"`
}

// =============================================================================
// Chat exchange
// =============================================================================

// ChatRequest is one incoming user utterance plus the caller-held conversation.
// An empty OwnerID means the request is unauthenticated.
type ChatRequest struct {
	Message string
	History []Message
	OwnerID string
}

// ChatReply is the outcome of one exchange.
type ChatReply struct {
	Reply       string       `json:"response"`
	ToolResults []ToolResult `json:"toolResults"`
	// Degraded is set when the reply is a fallback rather than a
	// tool-grounded answer from the follow-up round.
	Degraded bool `json:"degraded,omitempty"`
	// Conversation is History plus the user message and the reply.
	Conversation []Message `json:"-"`
}

// Refresh reports whether ledger state may have been touched, so cached
// views should be reloaded.
func (r *ChatReply) Refresh() bool {
	return r != nil && len(r.ToolResults) > 0
}
