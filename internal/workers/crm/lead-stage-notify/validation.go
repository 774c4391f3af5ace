package leadstagenotify

import (
	"encoding/json"
	"fmt"

	"amocrm-relay/internal/common/validation"
)

func GetResponseSchema() map[string]interface{} {
	nullableString := map[string]interface{}{"type": []interface{}{"string", "null"}}

	lead := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"id", "name", "price", "pipeline_id", "status_id", "custom_fields", "contacts", "link"},
		"properties": map[string]interface{}{
			"id":            map[string]interface{}{"type": "string", "minLength": 1},
			"name":          nullableString,
			"custom_fields": map[string]interface{}{"type": "object"},
			"contacts": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"id", "name"},
				},
			},
			"link": nullableString,
		},
	}

	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"ok", "webhook_minimal", "leads_full"},
		"properties": map[string]interface{}{
			"ok": map[string]interface{}{"const": true},
			"webhook_minimal": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": nullableString,
			},
			"leads_full": map[string]interface{}{
				"type":  "array",
				"items": lead,
			},
		},
	}
}

type responseValidator struct {
	schema *validation.Schema
}

func newResponseValidator() *responseValidator {
	return &responseValidator{schema: validation.MustSchema(GetResponseSchema())}
}

// check reports whether the encoded response matches the response schema.
func (v *responseValidator) check(resp *WebhookResponse) error {
	if v == nil || v.schema == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if result := v.schema.ValidateJSON(raw); !result.Valid {
		return result
	}
	return nil
}
