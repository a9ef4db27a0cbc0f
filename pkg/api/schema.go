package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://schemas.fleet-intake.local/"

var (
	normalizeSchema = mustCompileSchema("normalize_request.json")
	validateSchema  = mustCompileSchema("validate_request.json")
)

func mustCompileSchema(name string) *jsonschema.Schema {
	s, err := compileSchema(name)
	if err != nil {
		panic(err)
	}
	return s
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := schemaBaseURL + name
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// validateBody checks raw JSON against schema before it is decoded into a
// typed request.
func validateBody(schema *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	return nil
}
