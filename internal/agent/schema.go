package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles and caches JSON Schemas keyed by their source text,
// the same sync.Map-based compile-once pattern the teacher uses for plugin
// config validation.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// compileSchema compiles raw (a JSON Schema document) and caches the result
// under its exact source text. Re-registering an identical schema string
// reuses the cached compiled form.
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if key == "" || key == "null" {
		return nil, nil
	}
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := fmt.Sprintf("tool:%s.input.json", name)
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	schemaCache.Store(key, schema)
	return schema, nil
}

// validateInput validates raw JSON input against a compiled schema. A nil
// schema accepts anything.
func validateInput(schema *jsonschema.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return err
	}
	return nil
}
