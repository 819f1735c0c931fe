// ABOUTME: Field-level argument validation producing parameter-specific failures.
// ABOUTME: Runs before the resolved JSON Schema check so messages name the bad parameter.

package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/instantly-mcp/internal/classify"
	"github.com/2389/instantly-mcp/internal/tools"
)

// decodeArgs parses raw tool arguments. Absent or null arguments are an
// empty object.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil || args == nil {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	return args, nil
}

// violation is the first problem found with one parameter.
type violation struct {
	param   string
	problem string
}

// validate checks args against the definition and returns a BadRequest
// failure naming the first offending parameter.
func validate(def *tools.Definition, args map[string]any) *classify.Failure {
	if v := checkObject(def.Schema, args, ""); v != nil {
		f := classify.New(classify.BadRequest, fmt.Sprintf(
			"Invalid parameter %q for %s: %s. Hint: %s.",
			v.param, def.Name, v.problem, tools.ParamHint(def.Name, topLevel(v.param))))
		return &f
	}
	if err := def.Validate(args); err != nil {
		f := classify.New(classify.BadRequest, fmt.Sprintf(
			"Invalid arguments for %s: %v. Check the schema from tools/list.", def.Name, err))
		return &f
	}
	return nil
}

func topLevel(param string) string {
	if i := strings.IndexAny(param, ".["); i > 0 {
		return param[:i]
	}
	return param
}

func checkObject(s *jsonschema.Schema, obj map[string]any, prefix string) *violation {
	for _, name := range s.Required {
		if v, ok := obj[name]; !ok || v == nil {
			return &violation{prefix + name, "missing required parameter"}
		}
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := obj[name]
		if !ok {
			continue
		}
		if v == nil {
			// The schema gate cannot render null; callers omit optional
			// parameters instead.
			return &violation{prefix + name, fmt.Sprintf("expected %s, got null", typeOrValue(s.Properties[name]))}
		}
		if viol := checkValue(s.Properties[name], v, prefix+name); viol != nil {
			return viol
		}
	}
	return nil
}

func checkValue(s *jsonschema.Schema, v any, path string) *violation {
	if s.Type != "" && !hasType(s.Type, v) {
		return &violation{path, fmt.Sprintf("expected %s, got %s", s.Type, typeName(v))}
	}

	if len(s.Enum) > 0 && !inEnum(s.Enum, v) {
		return &violation{path, fmt.Sprintf("must be one of %s", enumList(s.Enum))}
	}

	switch val := v.(type) {
	case string:
		if s.MinLength != nil && len([]rune(val)) < *s.MinLength {
			if *s.MinLength == 1 {
				return &violation{path, "must not be empty"}
			}
			return &violation{path, fmt.Sprintf("must be at least %d characters", *s.MinLength)}
		}
	case float64:
		if s.Minimum != nil && val < *s.Minimum {
			return &violation{path, fmt.Sprintf("must be at least %v", *s.Minimum)}
		}
		if s.Maximum != nil && val > *s.Maximum {
			return &violation{path, fmt.Sprintf("must be at most %v", *s.Maximum)}
		}
	case []any:
		if s.MinItems != nil && len(val) < *s.MinItems {
			return &violation{path, fmt.Sprintf("must contain at least %d item(s)", *s.MinItems)}
		}
		if s.MaxItems != nil && len(val) > *s.MaxItems {
			return &violation{path, fmt.Sprintf("must contain at most %d items", *s.MaxItems)}
		}
		if s.Items != nil {
			for i, item := range val {
				if viol := checkValue(s.Items, item, fmt.Sprintf("%s[%d]", path, i)); viol != nil {
					return viol
				}
			}
		}
	case map[string]any:
		if len(s.Properties) > 0 || len(s.Required) > 0 {
			return checkObject(s, val, path+".")
		}
	}
	return nil
}

func typeOrValue(s *jsonschema.Schema) string {
	if s.Type == "" {
		return "a value"
	}
	return s.Type
}

func hasType(t string, v any) bool {
	switch t {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case "number":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

func typeName(v any) string {
	switch v := v.(type) {
	case string:
		return "string"
	case float64:
		if v == math.Trunc(v) {
			return "integer"
		}
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func inEnum(values []any, v any) bool {
	for _, e := range values {
		if e == v {
			return true
		}
	}
	return false
}

func enumList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
