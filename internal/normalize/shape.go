package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"medreport/internal/models"
)

// A field value must be a string or a flat list of strings.
const flatValueSchema = `{
	"oneOf": [
		{"type": "string"},
		{"type": "array", "items": {"type": "string"}}
	]
}`

var flatValue = jsonschema.MustCompileString("flat_value.json", flatValueSchema)

// validateFlat reports whether raw JSON matches the flat value shape.
func validateFlat(raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return flatValue.Validate(v)
}

// toValue converts a parsed JSON value. Flat values map directly. Scalars are
// kept as their literal text, nested objects become "key: value" items and
// null yields ok=false.
func toValue(res gjson.Result) (v models.Value, coerced bool, ok bool) {
	if err := validateFlat(res.Raw); err == nil {
		if res.IsArray() {
			items := make([]string, 0, len(res.Array()))
			for _, item := range res.Array() {
				if s := strings.TrimSpace(item.String()); s != "" {
					items = append(items, s)
				}
			}
			return models.List(items...), false, true
		}
		return models.Text(strings.TrimSpace(res.String())), false, true
	}

	switch {
	case res.Type == gjson.Null:
		return models.Value{}, true, false
	case res.IsArray():
		var items []string
		for _, item := range res.Array() {
			if s := strings.TrimSpace(flatten(item)); s != "" {
				items = append(items, s)
			}
		}
		return models.List(items...), true, true
	case res.IsObject():
		var items []string
		res.ForEach(func(k, val gjson.Result) bool {
			if s := strings.TrimSpace(flatten(val)); s != "" {
				items = append(items, k.String()+": "+s)
			}
			return true
		})
		return models.List(items...), true, true
	default:
		return models.Text(res.Raw), true, true
	}
}

// flatten renders one JSON value as display text.
func flatten(res gjson.Result) string {
	switch {
	case res.Type == gjson.Null:
		return ""
	case res.Type == gjson.String:
		return res.String()
	case res.IsArray():
		parts := make([]string, 0, len(res.Array()))
		for _, item := range res.Array() {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case res.IsObject():
		var parts []string
		res.ForEach(func(k, val gjson.Result) bool {
			if s := flatten(val); s != "" {
				parts = append(parts, k.String()+": "+s)
			}
			return true
		})
		return strings.Join(parts, "; ")
	default:
		return res.Raw
	}
}
