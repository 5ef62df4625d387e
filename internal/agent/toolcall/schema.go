package toolcall

import (
	"reflect"
	"strings"
)

// BuildSchema derives a JSON Schema object from an args struct, for tools
// whose arguments are declared as Go types rather than hand-written schema
// maps. Field names come from the `json` tag; the `jsonschema` tag
// supplies `description=<text>`, `enum=<a|b|c>`, and `required` markers.
// Anything that is not a struct yields an empty object schema.
func BuildSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	props := map[string]any{}
	var required []string

	if t != nil && t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, ok := fieldName(f)
			if !ok {
				continue
			}

			prop := map[string]any{"type": jsonType(f.Type)}
			if f.Type.Kind() == reflect.Slice || f.Type.Kind() == reflect.Array {
				prop["items"] = map[string]any{"type": jsonType(f.Type.Elem())}
			}

			for _, attr := range strings.Split(f.Tag.Get("jsonschema"), ",") {
				switch {
				case attr == "required":
					required = append(required, name)
				case strings.HasPrefix(attr, "description="):
					prop["description"] = strings.TrimPrefix(attr, "description=")
				case strings.HasPrefix(attr, "enum="):
					vals := strings.Split(strings.TrimPrefix(attr, "enum="), "|")
					enum := make([]any, len(vals))
					for i, v := range vals {
						enum[i] = v
					}
					prop["enum"] = enum
				}
			}

			props[name] = prop
		}
	}

	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// fieldName resolves a struct field's schema property name from its json
// tag, reporting false for unexported or json:"-" fields.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return f.Name, true
	}
	return name, true
}

func jsonType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
