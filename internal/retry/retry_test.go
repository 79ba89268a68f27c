package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"expensechat/internal/domain"
)

// =============================================================================
// Config Tests
// =============================================================================

func TestDefaultConfig_ShouldBeOptIn(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 0 {
		t.Errorf("want MaxRetries=0, got %d", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 500*time.Millisecond || cfg.MaxBackoff != 30*time.Second || cfg.Multiplier != 2.0 {
		t.Errorf("unexpected backoff shape %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must be valid: %v", err)
	}
}

func TestConfig_Validate_WhenOutOfRange_ShouldReturnError(t *testing.T) {
	cases := map[string]func(*Config){
		"negative retries":  func(c *Config) { c.MaxRetries = -1 },
		"zero initial":      func(c *Config) { c.InitialBackoff = 0 },
		"zero max":          func(c *Config) { c.MaxBackoff = 0 },
		"multiplier below 1": func(c *Config) { c.Multiplier = 0.5 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromDomain_ShouldConvertMilliseconds(t *testing.T) {
	cfg := FromDomain(&domain.RetryConfig{MaxRetries: 2, InitialBackoff: 250, MaxBackoff: 4000, Multiplier: 3})
	want := Config{MaxRetries: 2, InitialBackoff: 250 * time.Millisecond, MaxBackoff: 4 * time.Second, Multiplier: 3}
	if cfg != want {
		t.Errorf("want %+v, got %+v", want, cfg)
	}
}

func TestFromDomain_WhenNilOrZero_ShouldUseDefaults(t *testing.T) {
	if got := FromDomain(nil); got != DefaultConfig() {
		t.Errorf("nil: want defaults, got %+v", got)
	}
	got := FromDomain(&domain.RetryConfig{MaxRetries: 1})
	if got.InitialBackoff != 500*time.Millisecond || got.MaxRetries != 1 {
		t.Errorf("zero fields must keep defaults, got %+v", got)
	}
}

// =============================================================================
// Error Classification Tests
// =============================================================================

// timeoutErr is a test helper that implements net.Error with Timeout() = true.
type timeoutErr struct{}

func (t *timeoutErr) Error() string   { return "i/o timeout" }
func (t *timeoutErr) Timeout() bool   { return true }
func (t *timeoutErr) Temporary() bool { return true }

func transport(status int, err error) error {
	return &domain.TransportError{Provider: "gateway", StatusCode: status, Err: err}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", transport(500, errors.New("boom")), true},
		{"502", transport(502, errors.New("bad gateway")), true},
		{"503", transport(503, errors.New("unavailable")), true},
		{"504", transport(504, errors.New("timeout")), true},
		{"529", transport(529, errors.New("overloaded")), true},
		{"400", transport(400, errors.New("bad request")), false},
		{"401", transport(401, errors.New("unauthorized")), false},
		{"404", transport(404, errors.New("not found")), false},
		{"rate limited", fmt.Errorf("gateway: %w", domain.ErrRateLimited), false},
		{"payment required", fmt.Errorf("gateway: %w", domain.ErrPaymentRequired), false},
		{"network timeout", transport(0, &timeoutErr{}), true},
		{"connection refused", transport(0, errors.New("dial tcp: connection refused")), true},
		{"unexpected EOF", transport(0, errors.New("unexpected EOF")), true},
		{"other network", transport(0, errors.New("no such host")), false},
		{"context canceled", transport(0, context.Canceled), false},
		{"deadline", transport(0, context.DeadlineExceeded), false},
		{"wrapped 503", fmt.Errorf("call: %w", transport(503, errors.New("x"))), true},
		{"untyped", errors.New("500 something"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsRetryable(c.err); got != c.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

// =============================================================================
// RetryableClient Tests
// =============================================================================

// mockClient implements domain.CompletionClient for tests.
type mockClient struct {
	calls int32
	errs  []error
}

func (m *mockClient) Complete(_ context.Context, _ []domain.Message, _ []domain.ToolDefinition) (*domain.Completion, error) {
	idx := int(atomic.AddInt32(&m.calls, 1)) - 1
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	return &domain.Completion{Content: "ok"}, nil
}

// noopSleep replaces time.Sleep in tests to avoid real delays.
func noopSleep(time.Duration) {}

func newClient(inner domain.CompletionClient, maxRetries int) *RetryableClient {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	c := NewRetryableClient(inner, cfg)
	c.sleepFunc = noopSleep
	return c
}

func TestNewRetryableClient_WhenInnerIsNil_ShouldPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil inner client")
		}
	}()
	NewRetryableClient(nil, DefaultConfig())
}

func TestRetryableClient_Complete_WhenNoError_ShouldNotRetry(t *testing.T) {
	inner := &mockClient{}
	out, err := newClient(inner, 3).Complete(context.Background(), nil, nil)
	if err != nil || out.Content != "ok" {
		t.Fatalf("unexpected result %+v, %v", out, err)
	}
	if inner.calls != 1 {
		t.Errorf("want 1 call, got %d", inner.calls)
	}
}

func TestRetryableClient_Complete_WhenTransientThenSuccess_ShouldRetry(t *testing.T) {
	inner := &mockClient{errs: []error{transport(503, errors.New("x")), transport(0, errors.New("EOF"))}}
	out, err := newClient(inner, 3).Complete(context.Background(), nil, nil)
	if err != nil || out.Content != "ok" {
		t.Fatalf("unexpected result %+v, %v", out, err)
	}
	if inner.calls != 3 {
		t.Errorf("want 3 calls, got %d", inner.calls)
	}
}

func TestRetryableClient_Complete_WhenRateLimited_ShouldSurfaceImmediately(t *testing.T) {
	inner := &mockClient{errs: []error{domain.ErrRateLimited}}
	_, err := newClient(inner, 5).Complete(context.Background(), nil, nil)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("rate limiting must not be retried, got %d calls", inner.calls)
	}
}

func TestRetryableClient_Complete_WhenExhausted_ShouldWrapLastError(t *testing.T) {
	last := transport(502, errors.New("bad gateway"))
	inner := &mockClient{errs: []error{last, last, last}}
	_, err := newClient(inner, 2).Complete(context.Background(), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "retries exhausted after 3 attempts") {
		t.Fatalf("unexpected error %v", err)
	}
	if !domain.IsTransport(err) {
		t.Error("exhausted error must stay transport-class")
	}
}

func TestRetryableClient_Complete_WhenMaxRetriesZero_ShouldCallOnce(t *testing.T) {
	inner := &mockClient{errs: []error{transport(500, errors.New("x"))}}
	_, err := newClient(inner, 0).Complete(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("want 1 call, got %d", inner.calls)
	}
}

func TestRetryableClient_Complete_WhenContextCanceledDuringBackoff_ShouldReturnContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &mockClient{errs: []error{transport(503, errors.New("x")), transport(503, errors.New("x"))}}
	c := newClient(inner, 5)
	c.sleepFunc = func(time.Duration) { cancel() }

	_, err := c.Complete(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestRetryableClient_Complete_ShouldUseCappedExponentialBackoff(t *testing.T) {
	serverErr := transport(500, errors.New("x"))
	inner := &mockClient{errs: []error{serverErr, serverErr, serverErr, serverErr, serverErr}}
	c := NewRetryableClient(inner, Config{
		MaxRetries:     4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2.0,
	})
	var sleeps []time.Duration
	c.sleepFunc = func(d time.Duration) { sleeps = append(sleeps, d) }

	_, _ = c.Complete(context.Background(), nil, nil)

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if len(sleeps) != len(want) {
		t.Fatalf("want %d sleeps, got %v", len(want), sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d]: want %v, got %v", i, want[i], sleeps[i])
		}
	}
}
