// Package cli implements the interactive and diagnostic subcommands of the
// expensechat binary: the chat REPL and the installation check.
package cli

import (
	"context"
	"os"

	"expensechat/internal/config"
	"expensechat/internal/domain"
	"expensechat/internal/ledger"
)

// Function variables for dependency injection in tests.
// Default values are the real implementations; tests may temporarily swap them.
var (
	getenv              = os.Getenv
	configWriteDefault  = config.WriteDefault
	configLoad          = config.Load
	ledgerSchemaVersion = func(ctx context.Context, url string) (int, error) {
		store, err := ledger.Open(ctx, url)
		if err != nil {
			return 0, err
		}
		defer store.Close()
		return store.SchemaVersion(ctx)
	}
)

// ChatRouter is the part of router.Router the REPL uses.
type ChatRouter interface {
	Route(ctx context.Context, channelID, ownerID, message string) (*domain.ChatReply, error)
	Forget(channelID string)
}
