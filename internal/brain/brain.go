package brain

import (
	"context"
	"log/slog"
	"time"

	"expensechat/internal/domain"
	"expensechat/internal/injection"
)

// Option is a functional option for configuring Brain.
type Option func(*Brain)

// WithContextManager fits the caller's history to a token window before the
// first completion round. If cm is nil it is ignored.
func WithContextManager(cm domain.ContextManager) Option {
	return func(b *Brain) {
		if cm != nil {
			b.contextMgr = cm
		}
	}
}

// WithLogger sets a structured logger for the Brain. If l is nil it is ignored
// and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(b *Brain) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the clock that supplies the date in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(b *Brain) {
		if now != nil {
			b.now = now
		}
	}
}

// WithSystemPrompt replaces the default system prompt. The function receives
// the current time so the prompt can carry today's date.
func WithSystemPrompt(fn func(time.Time) string) Option {
	return func(b *Brain) {
		if fn != nil {
			b.systemPrompt = fn
		}
	}
}

// Brain runs one chat exchange: a completion round with the tool catalog,
// at most one round of tool dispatch and a follow-up round that turns the
// tool outcomes into a reply. Brain holds no mutable state and is safe for
// concurrent use.
type Brain struct {
	client       domain.CompletionClient
	dispatcher   *ToolDispatcher
	contextMgr   domain.ContextManager // optional; nil sends history untouched
	logger       *slog.Logger          // optional; nil uses slog.Default()
	now          func() time.Time
	systemPrompt func(time.Time) string
}

// NewBrain returns a Brain using client for completions and dispatcher for
// tool calls. Panics if either is nil.
func NewBrain(client domain.CompletionClient, dispatcher *ToolDispatcher, opts ...Option) *Brain {
	if client == nil {
		panic("brain: completion client must not be nil")
	}
	if dispatcher == nil {
		panic("brain: dispatcher must not be nil")
	}
	b := &Brain{
		client:       client,
		dispatcher:   dispatcher,
		now:          time.Now,
		systemPrompt: SystemPrompt,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// log returns the Brain's logger, falling back to the default slog logger.
func (b *Brain) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// Handle processes one user message.
//
// When the first completion round fails the returned reply carries user
// guidance and no tool results, and the error (ErrRateLimited,
// ErrPaymentRequired or a *TransportError) is returned alongside it so
// transports can choose a status code. All later failures are absorbed:
// tool failures become error payloads and a failed follow-up round yields
// a reply marked Degraded.
func (b *Brain) Handle(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	messages := b.buildPrompt(req)
	logger := b.log().With("owner", req.OwnerID)
	b.warnInjection(logger, req)

	first, err := b.client.Complete(ctx, messages, b.dispatcher.Definitions())
	if err != nil {
		logger.Error("completion failed", "phase", "initial", "error", err)
		if !domain.IsTransport(err) {
			err = &domain.TransportError{Provider: "completion", Err: err}
		}
		reply := b.reply(req, Guidance(err), []domain.ToolResult{})
		reply.Degraded = true
		return reply, err
	}
	if first == nil {
		first = &domain.Completion{}
	}

	if len(first.ToolInvocations) == 0 {
		if first.Content == "" {
			logger.Warn("empty completion", "phase", "initial")
			reply := b.reply(req, GuidanceGeneric, []domain.ToolResult{})
			reply.Degraded = true
			return reply, nil
		}
		return b.reply(req, first.Content, []domain.ToolResult{}), nil
	}

	if req.OwnerID == "" {
		logger.Warn("tool calls requested without an owner", "tools", len(first.ToolInvocations))
		content := first.Content
		if content == "" {
			content = SignInHint
		}
		reply := b.reply(req, content, []domain.ToolResult{})
		reply.Degraded = true
		return reply, nil
	}

	results := b.dispatcher.ExecuteAll(ctx, first.ToolInvocations, req.OwnerID)
	followUp := buildFollowUp(messages, first, results)

	second, err := b.client.Complete(ctx, followUp, nil)
	if err == nil && second != nil && second.Content != "" {
		return b.reply(req, second.Content, results), nil
	}
	if err != nil {
		logger.Warn("follow-up completion failed", "phase", "follow_up", "error", err)
	} else {
		logger.Warn("empty completion", "phase", "follow_up")
	}
	content := first.Content
	if content == "" {
		content = summarize(results)
	}
	reply := b.reply(req, content, results)
	reply.Degraded = true
	return reply, nil
}

// buildPrompt assembles the first-round messages: system prompt, the
// (optionally fitted) history and the new user message.
func (b *Brain) buildPrompt(req domain.ChatRequest) []domain.Message {
	system := b.systemPrompt(b.now())
	history := req.History
	if b.contextMgr != nil && len(history) > 0 {
		fitted, err := b.contextMgr.FitToWindow(history, system)
		if err != nil {
			b.log().Warn("history fitting failed; sending full history", "error", err)
		} else {
			history = fitted
		}
	}
	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.SystemMessage(system))
	messages = append(messages, history...)
	messages = append(messages, domain.UserMessage(req.Message))
	return messages
}

// buildFollowUp extends the first-round messages with the assistant turn
// that requested the tools and one tool message per result, in order.
func buildFollowUp(messages []domain.Message, first *domain.Completion, results []domain.ToolResult) []domain.Message {
	out := make([]domain.Message, 0, len(messages)+1+len(results))
	out = append(out, messages...)
	assistant := domain.AssistantMessage(first.Content)
	assistant.ToolCalls = append([]domain.ToolInvocation(nil), first.ToolInvocations...)
	out = append(out, assistant)
	for _, r := range results {
		out = append(out, domain.ToolMessage(r.CallID, toolResultContent(r)))
	}
	return out
}

// reply builds the ChatReply and the caller's next conversation value.
func (b *Brain) reply(req domain.ChatRequest, content string, results []domain.ToolResult) *domain.ChatReply {
	conv := make([]domain.Message, 0, len(req.History)+2)
	conv = append(conv, req.History...)
	conv = append(conv, domain.UserMessage(req.Message), domain.AssistantMessage(content))
	return &domain.ChatReply{Reply: content, ToolResults: results, Conversation: conv}
}

// warnInjection logs user turns that look like attempts to override the
// system prompt. Caller-supplied history is scanned as well as the new message.
func (b *Brain) warnInjection(logger *slog.Logger, req domain.ChatRequest) {
	for i, m := range req.History {
		if scan := injection.ScanMessage(m); scan.Detected {
			logger.Warn("possible prompt injection", "source", "history", "index", i, "patterns", scan.Patterns)
		}
	}
	if scan := injection.ScanMessage(domain.UserMessage(req.Message)); scan.Detected {
		logger.Warn("possible prompt injection", "source", "message", "patterns", scan.Patterns)
	}
}
