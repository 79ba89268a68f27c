package brain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"expensechat/internal/domain"
	"expensechat/internal/tooling"
)

// DefaultToolConcurrency bounds ExecuteAll when no limit is configured.
const DefaultToolConcurrency = 4

// DispatcherOption configures a ToolDispatcher.
type DispatcherOption func(*ToolDispatcher)

// WithConcurrency caps how many invocations ExecuteAll runs at once.
// Values below 1 are ignored; 1 runs invocations sequentially.
func WithConcurrency(n int) DispatcherOption {
	return func(d *ToolDispatcher) {
		if n >= 1 {
			d.concurrency = n
		}
	}
}

// WithDispatcherClock overrides the clock used to resolve "today".
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *ToolDispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDispatcherLogger sets a structured logger. Nil is ignored.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *ToolDispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// ToolDispatcher connects the brain to the ledger tools. It validates the
// arguments the model produced against each tool's schema, runs the tool
// scoped to one owner and always yields exactly one ToolResult per
// invocation: failures become error payloads, never Go errors.
type ToolDispatcher struct {
	registry    *tooling.ToolRegistry
	ledger      domain.Ledger
	now         func() time.Time
	logger      *slog.Logger
	concurrency int
}

// NewToolDispatcher creates a dispatcher over registry and ledger.
// Panics if either is nil.
func NewToolDispatcher(registry *tooling.ToolRegistry, ledger domain.Ledger, opts ...DispatcherOption) *ToolDispatcher {
	if registry == nil {
		panic("tool_dispatcher: registry must not be nil")
	}
	if ledger == nil {
		panic("tool_dispatcher: ledger must not be nil")
	}
	d := &ToolDispatcher{
		registry:    registry,
		ledger:      ledger,
		now:         time.Now,
		concurrency: DefaultToolConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Definitions returns the tool definitions advertised to the model.
func (d *ToolDispatcher) Definitions() []domain.ToolDefinition {
	return d.registry.Definitions()
}

func (d *ToolDispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// Execute runs one invocation for ownerID. Unknown tools, invalid arguments,
// ledger failures and panics inside the tool all produce an error payload.
func (d *ToolDispatcher) Execute(ctx context.Context, inv domain.ToolInvocation, ownerID string) (result domain.ToolResult) {
	result = domain.ToolResult{CallID: inv.CallID, Name: inv.Name}
	defer func() {
		if r := recover(); r != nil {
			d.log().Error("tool panicked", "tool", inv.Name, "call_id", inv.CallID, "panic", r)
			result.Payload = domain.ToolError{Error: fmt.Sprintf("tool %s failed: %v", inv.Name, r)}
		}
	}()

	payload, err := d.run(ctx, inv, ownerID)
	if err != nil {
		d.log().Warn("tool failed", "tool", inv.Name, "call_id", inv.CallID, "owner", ownerID, "error", err)
		result.Payload = domain.ToolError{Error: err.Error()}
		return result
	}
	d.log().Debug("tool executed", "tool", inv.Name, "call_id", inv.CallID, "owner", ownerID)
	result.Payload = payload
	return result
}

func (d *ToolDispatcher) run(ctx context.Context, inv domain.ToolInvocation, ownerID string) (any, error) {
	tool, err := d.registry.Get(inv.Name)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	if err := d.registry.Validate(inv.Name, inv.Arguments); err != nil {
		return nil, err
	}
	return tool.Call(ctx, tooling.Scope{Ledger: d.ledger, OwnerID: ownerID, Today: d.now()}, inv.Arguments)
}

// ExecuteAll runs every invocation and returns the results in invocation
// order. Invocations run concurrently up to the configured limit.
func (d *ToolDispatcher) ExecuteAll(ctx context.Context, invs []domain.ToolInvocation, ownerID string) []domain.ToolResult {
	results := make([]domain.ToolResult, len(invs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, inv := range invs {
		i, inv := i, inv
		g.Go(func() error {
			results[i] = d.Execute(gctx, inv, ownerID)
			return nil
		})
	}
	_ = g.Wait() // Execute never fails; errors live in the payloads
	return results
}
