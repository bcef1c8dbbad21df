package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// argField describes one exported struct field of an argument type.
type argField struct {
	name        string
	kind        string
	description string
	required    bool
}

// argFields lists the JSON-visible fields of a struct type in declaration
// order. A field is optional when it is a pointer or tagged omitempty.
func argFields(t reflect.Type) []argField {
	fields := make([]argField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields = append(fields, argField{
			name:        name,
			kind:        jsonKind(f.Type),
			description: f.Tag.Get("description"),
			required:    f.Type.Kind() != reflect.Ptr && !hasOption(opts, "omitempty"),
		})
	}
	return fields
}

func hasOption(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == want {
			return true
		}
	}
	return false
}

// CreateSchema builds the object schema a model sees for an argument struct.
// Property names come from json tags and descriptions from description tags.
// Non-struct values yield an empty object schema.
func CreateSchema(v any) map[string]any {
	properties := map[string]any{}
	schema := map[string]any{"type": "object", "properties": properties}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for _, f := range argFields(t) {
		prop := map[string]any{"type": f.kind}
		if f.description != "" {
			prop["description"] = f.description
		}
		properties[f.name] = prop
		if f.required {
			required = append(required, f.name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidateParameters checks params against an object schema. A required
// field must be present and non-null; a null optional field counts as absent.
// Properties the schema does not declare are allowed.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range RequiredFields(schema) {
		v, ok := params[name]
		switch {
		case !ok:
			return &ValidationError{Field: name, Message: "required field is missing"}
		case v == nil:
			return &ValidationError{Field: name, Message: "required field must not be null"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range params {
		if value == nil {
			continue
		}
		prop, _ := properties[name].(map[string]any)
		want, _ := prop["type"].(string)
		if want != "" && !matchesKind(value, want) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", want, value),
			}
		}
	}
	return nil
}

// DecodeArgs copies validated params into the struct pointed to by dst.
// Null values leave the destination field at its zero value.
func DecodeArgs(params map[string]any, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// RequiredFields returns the schema's required list, accepting both []string
// (as built in Go) and []any (as decoded from JSON).
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// matchesKind reports whether a decoded JSON value has the schema type. JSON
// numbers decode as float64, so integers are accepted when integral.
func matchesKind(value any, kind string) bool {
	switch kind {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "integer", "number":
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case float32:
			f = float64(v)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		default:
			return false
		}
		return kind == "number" || f == float64(int64(f))
	default:
		return true
	}
}
