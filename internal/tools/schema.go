// ABOUTME: Small constructors for the JSON Schemas used by tool definitions.
// ABOUTME: Keeps the tool table readable and every schema plain JSON Schema.

package tools

import "github.com/google/jsonschema-go/jsonschema"

func ptr[T any](v T) *T { return &v }

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

// id is a non-empty string identifier.
func id(desc string) *jsonschema.Schema { return nonEmpty(desc) }

func nonEmpty(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc, MinLength: ptr(1)}
}

func emailAddr(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc, MinLength: ptr(3), Format: "email"}
}

func integer(desc string, min, max float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc, Minimum: ptr(min), Maximum: ptr(max)}
}

func boolean(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func enum(desc string, values ...string) *jsonschema.Schema {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: desc, Enum: vals}
}

func array(desc string, items *jsonschema.Schema, minItems, maxItems int) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "array", Description: desc, Items: items, MinItems: ptr(minItems)}
	if maxItems > 0 {
		s.MaxItems = ptr(maxItems)
	}
	return s
}

func freeform(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Description: desc}
}

// Shared pagination parameters.
func limitParam() *jsonschema.Schema {
	return integer("Maximum number of items to return (1-100, default 10)", 1, 100)
}

func cursorParam() *jsonschema.Schema {
	return str("Cursor from next_starting_after of the previous page")
}
