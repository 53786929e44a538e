package providers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileSchema compiles a JSON schema for repeated validation.
func CompileSchema(schemaRaw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaRaw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// FilterBySchema returns the items that validate against the schema,
// preserving order. Invalid items are dropped, not repaired: a fact the model
// could not state completely is not worth storing.
func FilterBySchema(items []json.RawMessage, schemaRaw json.RawMessage) ([]json.RawMessage, error) {
	schema, err := CompileSchema(schemaRaw)
	if err != nil {
		return nil, err
	}

	valid := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var inst any
		if err := json.Unmarshal(item, &inst); err != nil {
			continue
		}
		if err := schema.Validate(inst); err != nil {
			continue
		}
		valid = append(valid, item)
	}
	return valid, nil
}
