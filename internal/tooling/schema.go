package tooling

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"expensechat/internal/domain"
)

// marshalFunc is the JSON marshaler used by GenerateSchema. Package-level so
// tests can inject a failing marshaler to cover the error return path.
var marshalFunc = json.Marshal

// GenerateSchema generates a JSON Schema string from a Go argument struct
// using invopop/jsonschema reflection. Fields without omitempty are required.
// The $schema keyword is dropped because several completion services reject
// it inside function parameters.
func GenerateSchema(input any) string {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(input)
	schema.Version = ""

	schemaBytes, err := marshalFunc(schema)
	if err != nil {
		return ""
	}
	return string(schemaBytes)
}

// CompileSchema compiles a JSON Schema string for repeated validation.
func CompileSchema(name, schemaStr string) (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString("tool://"+name, schemaStr)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", name, err)
	}
	return schema, nil
}

// ValidateArgs validates raw JSON arguments against a compiled schema.
func ValidateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	var inputData any
	dec := json.NewDecoder(bytes.NewReader(normalizeArgs(args)))
	dec.UseNumber()
	if err := dec.Decode(&inputData); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	if err := schema.Validate(inputData); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// normalizeArgs maps absent or null arguments to an empty object.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	return trimmed
}

// decodeArgs decodes validated arguments into the tool's typed record.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(normalizeArgs(args)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	return out, nil
}
