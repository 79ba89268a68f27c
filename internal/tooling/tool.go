package tooling

import (
	"context"
	"encoding/json"
	"time"

	"expensechat/internal/domain"
)

// Scope is what a tool call runs against: the ledger, the owner every
// operation is restricted to, and the calendar date treated as "today".
type Scope struct {
	Ledger  domain.Ledger
	OwnerID string
	Today   time.Time
}

// LedgerTool is a tool whose input is described by a JSON Schema generated
// from a Go struct via invopop/jsonschema. The dispatcher validates arguments
// against Definition() before Call runs.
type LedgerTool interface {
	// Name returns the unique tool name used in function-calling (e.g. "add_expense").
	Name() string
	// Description returns a human-readable description for the model.
	Description() string
	// Definition returns the JSON Schema string for the tool's argument struct.
	Definition() string
	// Call decodes args into the typed argument record and runs the ledger
	// operation. It returns the success payload, or an error wrapping
	// domain.ErrInvalidArguments or a *domain.StorageError.
	Call(ctx context.Context, scope Scope, args json.RawMessage) (any, error)
}
