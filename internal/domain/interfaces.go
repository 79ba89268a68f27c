package domain

import "context"

// CompletionClient sends messages (and optionally the tool catalog) to a
// language-model completion service. A nil or empty tools slice means no
// tools are advertised. Failures are ErrRateLimited, ErrPaymentRequired or
// a *TransportError.
type CompletionClient interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error)
}

// Ledger performs expense operations. Every method is scoped to ownerID and
// fails with a *StorageError.
type Ledger interface {
	AddExpense(ctx context.Context, ownerID string, e NewExpense) (Expense, error)

	// GetExpenses returns matching entries, newest date first.
	GetExpenses(ctx context.Context, ownerID string, f ExpenseFilter) ([]Expense, error)

	CalculateTotal(ctx context.Context, ownerID string, f TotalFilter) (Totals, error)

	// DeleteExpense removes the entry with id owned by ownerID. It reports
	// whether a row was deleted; a missing row is not an error.
	DeleteExpense(ctx context.Context, ownerID, id string) (bool, error)
}

// ConversationStore persists a channel's conversation as JSONL and supports
// loading the last N messages to restore context on restart.
type ConversationStore interface {
	// Append writes msg as a single line.
	Append(msg Message) error

	// LoadHistory reads the last n messages.
	// Returns empty slice when the file does not exist or n <= 0.
	LoadHistory(n int) ([]Message, error)
}

// Tokenizer counts tokens in a string for context window management.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// ContextManager fits conversation history into a model's context window.
type ContextManager interface {
	// FitToWindow takes messages and a system prompt, and returns the most
	// recent messages that fit within the configured token limit. The system
	// prompt tokens are always reserved. Older messages are dropped first.
	FitToWindow(messages []Message, systemPrompt string) ([]Message, error)
}
