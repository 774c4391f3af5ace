package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"amocrm-relay/internal/common/validation"
)

// Reserved targets that select a contact's phones or emails by field code
// instead of a custom field id.
const (
	TargetPhone = "PHONE"
	TargetEmail = "EMAIL"
)

// FieldMapping binds an output key to a custom field id or reserved code.
type FieldMapping struct {
	Key    string
	Target string
}

// FieldMap is an ordered list of mappings. Order is the order the keys
// appeared in the configured JSON object.
type FieldMap []FieldMapping

func (m FieldMap) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the target mapped to key.
func (m FieldMap) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Target, true
		}
	}
	return "", false
}

func (m FieldMap) String() string {
	parts := make([]string, len(m))
	for i, f := range m {
		parts[i] = fmt.Sprintf("%s=%s", f.Key, f.Target)
	}
	return strings.Join(parts, ",")
}

var fieldMapSchema = validation.MustSchema(validation.FieldMapSchema)

// DefaultLeadFields is used when no lead field map is configured.
func DefaultLeadFields(trainingDayID string) FieldMap {
	return FieldMap{{Key: "training_day", Target: trainingDayID}}
}

// DefaultContactFields is used when no contact field map is configured.
func DefaultContactFields() FieldMap {
	return FieldMap{
		{Key: "phone", Target: TargetPhone},
		{Key: "email", Target: TargetEmail},
	}
}

// ParseFieldMap decodes a JSON object of key to field id while keeping key
// order. Integer ids are kept as their decimal text. A repeated key keeps its
// first position and its last value.
func ParseFieldMap(raw string) (FieldMap, error) {
	if result := fieldMapSchema.ValidateJSON([]byte(raw)); !result.Valid {
		return nil, fmt.Errorf("invalid field map: %s", result.Error())
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid field map: %w", err)
	}

	var out FieldMap
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid field map: %w", err)
		}
		key, _ := tok.(string)

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid field map value for %q: %w", key, err)
		}

		var target string
		switch v := value.(type) {
		case string:
			target = strings.TrimSpace(v)
		case json.Number:
			target = v.String()
		default:
			return nil, fmt.Errorf("invalid field map value for %q", key)
		}

		if i, ok := index[key]; ok {
			out[i].Target = target
			continue
		}
		index[key] = len(out)
		out = append(out, FieldMapping{Key: key, Target: target})
	}
	return out, nil
}

// resolveFieldMap returns the parsed map, or def with a warning when raw is
// empty or malformed.
func resolveFieldMap(name, raw string, def FieldMap) (FieldMap, string) {
	if strings.TrimSpace(raw) == "" {
		return def, ""
	}
	m, err := ParseFieldMap(raw)
	if err != nil {
		return def, fmt.Sprintf("%s: %v; using default %s", name, err, def)
	}
	return m, ""
}
