package brain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensechat/internal/domain"
)

// Greeting is the first assistant message shown by interactive transports.
const Greeting = "Hi! I'm your expense tracking assistant. I can help you add expenses, view your spending, and analyze your finances. What would you like to do?"

// User-facing texts for exchanges that could not complete normally.
const (
	GuidanceRateLimited     = "Rate limit exceeded. Please try again in a moment."
	GuidancePaymentRequired = "AI credits exhausted. Please add credits to continue."
	GuidanceGeneric         = "Sorry, I encountered an error. Please try again."
	SignInHint              = "Please sign in so I can access your expenses."
)

// Guidance returns the reply shown to the user when the first completion
// round fails with err.
func Guidance(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return GuidanceRateLimited
	case errors.Is(err, domain.ErrPaymentRequired):
		return GuidancePaymentRequired
	default:
		return GuidanceGeneric
	}
}

const systemPromptTemplate = `You are an intelligent expense tracking assistant. Help users manage their expenses naturally.

Current date: %s

Available actions you can perform:
1. ADD_EXPENSE - Record a new expense
2. VIEW_EXPENSES - Show expenses (all, by date, by category)
3. DELETE_EXPENSE - Remove an expense
4. ANALYTICS - Calculate totals and provide insights

When users want to add an expense, extract:
- amount (number)
- category (%s)
- date (default to today)
- description (optional)

Respond in a friendly, conversational tone. Use the tools provided to interact with the database.`

// SystemPrompt renders the default system prompt for the given day.
func SystemPrompt(today time.Time) string {
	cats := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		cats[i] = string(c)
	}
	return fmt.Sprintf(systemPromptTemplate, today.Format(domain.DateLayout), strings.Join(cats, ", "))
}

// toolResultContent renders a result payload as the content of a tool message.
func toolResultContent(r domain.ToolResult) string {
	data, err := marshalFunc(r.Payload)
	if err != nil {
		data, _ = json.Marshal(domain.ToolError{Error: fmt.Sprintf("unencodable result: %v", err)})
	}
	return string(data)
}

// marshalFunc is the JSON encoder for tool payloads; replaced in tests.
var marshalFunc = json.Marshal

// summarize describes tool outcomes when no model text is available.
func summarize(results []domain.ToolResult) string {
	var done, failed []string
	for _, r := range results {
		if r.IsError() {
			failed = append(failed, r.Name)
			continue
		}
		done = append(done, r.Name)
	}
	var sb strings.Builder
	if len(done) > 0 {
		fmt.Fprintf(&sb, "Completed: %s.", strings.Join(done, ", "))
	}
	if len(failed) > 0 {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "Failed: %s.", strings.Join(failed, ", "))
	}
	if sb.Len() == 0 {
		return GuidanceGeneric
	}
	return sb.String()
}
