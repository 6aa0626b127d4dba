package tools

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateArgs checks tool-call arguments against the tool's input schema.
// A nil argument object is validated as an empty object.
func ValidateArgs(tool Tool, args map[string]any) error {
	schema := tool.InputSchema()
	if schema == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", tool.Name(), strings.Join(details, "; "))
	}

	return nil
}

// ObjectSchema builds a JSON object schema from property definitions and a
// required-name list. Shared by the concrete tool implementations.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
