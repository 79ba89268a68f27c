package tooling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"expensechat/internal/domain"
)

// ToolRegistry holds LedgerTool implementations in registration order along
// with their compiled argument schemas. It is read-only once populated.
type ToolRegistry struct {
	order   []string
	tools   map[string]LedgerTool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry returns an empty, ready-to-use registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]LedgerTool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Returns an error if the tool is nil, its schema does
// not compile, or a tool with the same name is already registered.
func (r *ToolRegistry) Register(tool LedgerTool) error {
	if tool == nil {
		return fmt.Errorf("tool must not be nil")
	}
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	schema, err := CompileSchema(name, tool.Definition())
	if err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	r.tools[name] = tool
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool with the given name, or an error wrapping
// domain.ErrUnknownTool.
func (r *ToolRegistry) Get(name string) (LedgerTool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	return tool, nil
}

// Validate checks args against the schema of the named tool. Failures wrap
// domain.ErrInvalidArguments.
func (r *ToolRegistry) Validate(name string, args json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	if err := ValidateArgs(schema, args); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	return nil
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns domain.ToolDefinition for every registered tool in
// registration order, suitable for the function-calling API.
func (r *ToolRegistry) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  json.RawMessage(t.Definition()),
		})
	}
	return out
}

// Catalog returns the process-wide expense tool catalog, built on first use.
var Catalog = sync.OnceValue(func() *ToolRegistry {
	r := NewToolRegistry()
	for _, t := range []LedgerTool{
		&AddExpenseTool{},
		&GetExpensesTool{},
		&CalculateTotalTool{},
		&DeleteExpenseTool{},
	} {
		if err := r.Register(t); err != nil {
			panic("tooling: " + err.Error())
		}
	}
	return r
})
