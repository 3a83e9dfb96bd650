package util

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError reports every schema violation found in a document.
type ValidationError struct {
	Field   string   `json:"field"` // first offending field
	Details []string `json:"details"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, strings.Join(e.Details, "; "))
}

// CreateSchema derives a JSON object schema from the exported fields of a
// struct value or pointer. Field names follow json tags; fields without
// omitempty and of non-pointer type are required. Anything that is not a
// struct yields an empty object schema.
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
	for _, field := range reflect.VisibleFields(t) {
		if !field.IsExported() || field.Anonymous {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}

		prop := map[string]any{"type": jsonType(field.Type)}
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		properties[name] = prop

		if !strings.Contains(opts, "omitempty") && field.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidateParameters validates decoded tool arguments against a JSON schema.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	return validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(params))
}

// ValidateDocument validates a raw JSON document against a raw JSON schema.
func ValidateDocument(schema, doc []byte) error {
	return validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
}

func validate(schema, doc gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(schema, doc)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for i, re := range result.Errors() {
		if i == 0 {
			verr.Field = re.Field()
		}
		verr.Details = append(verr.Details, re.String())
	}
	return verr
}

func jsonType(t reflect.Type) string {
	switch k := t.Kind(); {
	case k == reflect.Ptr:
		return jsonType(t.Elem())
	case k == reflect.Bool:
		return "boolean"
	case k >= reflect.Int && k <= reflect.Uint64:
		return "integer"
	case k == reflect.Float32 || k == reflect.Float64:
		return "number"
	case k == reflect.Slice || k == reflect.Array:
		return "array"
	case k == reflect.Map || k == reflect.Struct:
		return "object"
	default:
		return "string"
	}
}
