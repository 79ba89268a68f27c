// Package signals centralizes process shutdown handling for the binaries.
package signals

import (
	"context"
	"os/signal"
)

// notifyContext is signal.NotifyContext; tests may replace it.
var notifyContext = signal.NotifyContext

// NotifyContext returns a copy of parent that is canceled on the first
// shutdown signal. Call stop to release the signal registration.
func NotifyContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return notifyContext(parent, ShutdownSignals()...)
}
