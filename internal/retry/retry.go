package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"expensechat/internal/domain"
)

// =============================================================================
// Config
// =============================================================================

// Config controls retry behaviour for completion calls.
type Config struct {
	MaxRetries     int           `json:"maxRetries"`     // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration `json:"initialBackoff"` // Delay before first retry
	MaxBackoff     time.Duration `json:"maxBackoff"`     // Upper bound on backoff duration
	Multiplier     float64       `json:"multiplier"`     // Backoff multiplier (e.g. 2.0 for exponential)
}

// DefaultConfig returns the backoff shape used when retries are enabled.
// MaxRetries is 0: retrying is opt-in.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     0,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// FromDomain converts the millisecond-based config file section.
func FromDomain(rc *domain.RetryConfig) Config {
	cfg := DefaultConfig()
	if rc == nil {
		return cfg
	}
	cfg.MaxRetries = rc.MaxRetries
	if rc.InitialBackoff > 0 {
		cfg.InitialBackoff = time.Duration(rc.InitialBackoff) * time.Millisecond
	}
	if rc.MaxBackoff > 0 {
		cfg.MaxBackoff = time.Duration(rc.MaxBackoff) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		cfg.Multiplier = float64(rc.Multiplier)
	}
	return cfg
}

// Validate checks that all Config fields are within acceptable ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if c.InitialBackoff <= 0 {
		return errors.New("retry: InitialBackoff must be > 0")
	}
	if c.MaxBackoff <= 0 {
		return errors.New("retry: MaxBackoff must be > 0")
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

// =============================================================================
// Error Classification
// =============================================================================

// retryableStatusCodes are HTTP status codes that indicate a transient failure.
// 429 is deliberately absent: rate limiting is surfaced to the user.
var retryableStatusCodes = []int{500, 502, 503, 504, 529}

// IsRetryable reports whether err is a transient transport failure that may
// succeed on retry: a 5xx status, a network timeout, a refused connection or
// an unexpected EOF. Rate limiting, payment errors and context errors are
// never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrPaymentRequired) {
		return false
	}

	var te *domain.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.StatusCode != 0 {
		return slices.Contains(retryableStatusCodes, te.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "EOF")
}

// =============================================================================
// RetryableClient (Decorator)
// =============================================================================

// RetryableClient wraps a CompletionClient with retry-on-transient-error logic.
type RetryableClient struct {
	inner     domain.CompletionClient
	config    Config
	sleepFunc func(time.Duration) // injectable for testing
}

// NewRetryableClient returns a decorator that retries Complete calls on
// transient errors. inner must not be nil.
func NewRetryableClient(inner domain.CompletionClient, cfg Config) *RetryableClient {
	if inner == nil {
		panic("retry: inner client must not be nil")
	}
	return &RetryableClient{
		inner:     inner,
		config:    cfg,
		sleepFunc: time.Sleep,
	}
}

// Complete calls the inner client and retries transient errors with
// exponential backoff. It returns the first success, or the last error after
// retries are exhausted.
func (c *RetryableClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition) (*domain.Completion, error) {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		out, err := c.inner.Complete(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == c.config.MaxRetries {
			break
		}

		c.sleepFunc(backoff)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		next := time.Duration(float64(backoff) * c.config.Multiplier)
		if next > c.config.MaxBackoff {
			next = c.config.MaxBackoff
		}
		backoff = next
	}

	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

var _ domain.CompletionClient = (*RetryableClient)(nil)
