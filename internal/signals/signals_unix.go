//go:build unix

package signals

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that stop the server and bridges.
// SIGTERM is what container runtimes and process managers send.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
