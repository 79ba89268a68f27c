package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"expensechat/internal/domain"
)

var errNoChoices = errors.New("no choices in response")

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 512

// classifyStatus maps a non-2xx completion response to the error classes the
// orchestration loop distinguishes: 429 and 402 get their own sentinels and
// everything else becomes a *domain.TransportError.
func classifyStatus(provider string, status int, body []byte) error {
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", provider, domain.ErrRateLimited)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w", provider, domain.ErrPaymentRequired)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &domain.TransportError{Provider: provider, StatusCode: status, Err: errors.New(msg)}
}

// transportErr wraps a failure that happened before a status was received.
func transportErr(provider, stage string, err error) error {
	return &domain.TransportError{Provider: provider, Err: fmt.Errorf("%s: %w", stage, err)}
}
