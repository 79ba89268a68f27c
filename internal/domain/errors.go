package domain

import (
	"errors"
	"fmt"
)

// Completion service failures.
var (
	ErrRateLimited     = errors.New("completion service rate limited the request")
	ErrPaymentRequired = errors.New("completion service requires payment")
)

// Tool execution failures. They never abort an exchange; the dispatcher turns
// them into error payloads.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrMissingOwner     = errors.New("no authenticated owner")
)

// TransportError is any non-success response (or network failure) from the
// completion service other than rate limiting and billing.
type TransportError struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StorageError is a failed ledger operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsTransport reports whether err belongs to the transport class
// (rate limited, payment required or a generic transport error).
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrPaymentRequired) || errors.As(err, &te)
}
