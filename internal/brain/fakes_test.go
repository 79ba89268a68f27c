package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"expensechat/internal/domain"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// =============================================================================
// scriptedClient is a CompletionClient returning canned completions in order
// =============================================================================

type completionCall struct {
	messages []domain.Message
	tools    []domain.ToolDefinition
}

type scriptedStep struct {
	completion *domain.Completion
	err        error
}

type scriptedClient struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls []completionCall
}

func (c *scriptedClient) Complete(_ context.Context, messages []domain.Message, tools []domain.ToolDefinition) (*domain.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, completionCall{
		messages: append([]domain.Message(nil), messages...),
		tools:    tools,
	})
	if len(c.calls) > len(c.steps) {
		return nil, fmt.Errorf("unexpected completion call #%d", len(c.calls))
	}
	step := c.steps[len(c.calls)-1]
	return step.completion, step.err
}

func answer(content string, invs ...domain.ToolInvocation) scriptedStep {
	return scriptedStep{completion: &domain.Completion{Content: content, ToolInvocations: invs}}
}

func failure(err error) scriptedStep { return scriptedStep{err: err} }

func invocation(id, name, args string) domain.ToolInvocation {
	return domain.ToolInvocation{CallID: id, Name: name, Arguments: []byte(args)}
}

// =============================================================================
// memLedger is an in-memory domain.Ledger with per-operation fault injection
// =============================================================================

type memLedger struct {
	mu      sync.Mutex
	entries []domain.Expense
	failOps map[string]error
	delay   map[string]time.Duration
	calls   int
}

func newMemLedger() *memLedger {
	return &memLedger{failOps: map[string]error{}, delay: map[string]time.Duration{}}
}

func (l *memLedger) enter(op string) error {
	if d := l.delay[op]; d > 0 {
		time.Sleep(d)
	}
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if err := l.failOps[op]; err != nil {
		return &domain.StorageError{Op: op, Err: err}
	}
	return nil
}

func (l *memLedger) AddExpense(_ context.Context, owner string, e domain.NewExpense) (domain.Expense, error) {
	if err := l.enter("add expense"); err != nil {
		return domain.Expense{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	exp := domain.Expense{
		ID:          fmt.Sprintf("exp-%d", len(l.entries)+1),
		OwnerID:     owner,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
		CreatedAt:   fixedNow,
	}
	l.entries = append(l.entries, exp)
	return exp, nil
}

func (l *memLedger) GetExpenses(_ context.Context, owner string, f domain.ExpenseFilter) ([]domain.Expense, error) {
	if err := l.enter("get expenses"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.Expense{}
	for _, e := range l.entries {
		if e.OwnerID == owner && (f.Category == "" || f.Category == e.Category) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) CalculateTotal(_ context.Context, owner string, f domain.TotalFilter) (domain.Totals, error) {
	if err := l.enter("calculate total"); err != nil {
		return domain.Totals{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t := domain.Totals{ByCategory: map[domain.Category]float64{}}
	for _, e := range l.entries {
		if e.OwnerID != owner || (f.StartDate != "" && e.Date < f.StartDate) || (f.EndDate != "" && e.Date > f.EndDate) {
			continue
		}
		t.Total += e.Amount
		t.ByCategory[e.Category] += e.Amount
		t.Count++
	}
	return t, nil
}

func (l *memLedger) DeleteExpense(_ context.Context, owner, id string) (bool, error) {
	if err := l.enter("delete expense"); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.ID == id && e.OwnerID == owner {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

var errDiskFull = errors.New("disk full")

// =============================================================================
// fakeContextManager
// =============================================================================

type fakeContextManager struct {
	keep int
	err  error
}

func (m *fakeContextManager) FitToWindow(messages []domain.Message, _ string) ([]domain.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(messages) <= m.keep {
		return messages, nil
	}
	return messages[len(messages)-m.keep:], nil
}
