package gateway

import (
	"context"
	"sync"

	"expensechat/internal/domain"
)

// fakeChat implements ChatHandler. It answers "re: <message>" with one tool
// result, or fails with err and a guidance reply.
type fakeChat struct {
	mu    sync.Mutex
	err   error
	reply *domain.ChatReply
	calls []domain.ChatRequest
}

func (f *fakeChat) Handle(_ context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return &domain.ChatReply{Reply: "Rate limit exceeded. Please try again in a moment.", Degraded: true}, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &domain.ChatReply{
		Reply: "re: " + req.Message,
		ToolResults: []domain.ToolResult{{
			CallID:  "call_1",
			Name:    "add_expense",
			Payload: map[string]any{"success": true},
		}},
	}, nil
}

func (f *fakeChat) requests() []domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatRequest(nil), f.calls...)
}
