package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the JSON Schema a raw definition document must satisfy
// before it is unmarshalled. Structural invariants (acyclicity, references)
// are checked afterwards by WorkflowDefinition.Validate.
var definitionSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "name", "steps"},
	"properties": map[string]any{
		"id":       map[string]any{"type": "string", "minLength": 1},
		"name":     map[string]any{"type": "string", "minLength": 3},
		"version":  map[string]any{"type": "integer"},
		"category": map[string]any{"type": "string"},
		"active":   map[string]any{"type": "boolean"},
		"steps": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "name", "type"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string", "minLength": 1},
					"name": map[string]any{"type": "string", "minLength": 1},
					"type": map[string]any{
						"type": "string",
						"enum": []any{"approval", "review", "data_entry", "system_action", "parallel", "decision", "timer"},
					},
					"dependencies":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"parallel_steps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"time_limit":     map[string]any{"type": "integer"},
					"auto_advance":   map[string]any{"type": "boolean"},
				},
			},
		},
		"escalation_rules": map[string]any{"type": "array"},
		"deadlines":        map[string]any{"type": "array"},
		"triggers":         map[string]any{"type": "array"},
	},
}

// ValidateDefinitionDocument checks a raw definition document against the
// definition schema.
func ValidateDefinitionDocument(raw []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(definitionSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("invalid definition document: %s", strings.Join(details, "; "))
}
