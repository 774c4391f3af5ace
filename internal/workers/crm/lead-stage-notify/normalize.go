package leadstagenotify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"amocrm-relay/internal/common/errors"
)

// NormalizeValue turns one webhook value into a trimmed plain string.
// nil yields absent. A non-empty array is reduced to its first element and
// an array starting with null is absent; an empty array becomes "[]".
// Objects are rendered as compact JSON, numbers keep their literal text.
// One layer of matching single or double quotes is stripped.
func NormalizeValue(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	if arr, ok := v.([]interface{}); ok {
		if len(arr) == 0 {
			return "[]", true
		}
		if arr[0] == nil {
			return "", false
		}
		v = arr[0]
	}
	if arr, ok := v.([]string); ok {
		if len(arr) == 0 {
			return "[]", true
		}
		v = arr[0]
	}

	s := strings.TrimSpace(stringify(v))
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s, true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]interface{}, []interface{}:
		var buf bytes.Buffer
		if err := writeJSON(&buf, t); err != nil {
			return fmt.Sprint(t)
		}
		return buf.String()
	default:
		return fmt.Sprint(t)
	}
}

// KeyValue is one form or query field in wire order.
type KeyValue struct {
	Key   string
	Value string
}

// CollectPayload merges the JSON body, form fields and query fields into one
// normalized payload. JSON keys go in first, form fields overwrite them and
// query fields only fill keys that are still missing. A body that is not a
// JSON object is ignored and reported as MALFORMED_INPUT; the payload is
// still built from the form and query fields.
func CollectPayload(jsonBody []byte, form, query []KeyValue) (*RawPayload, error) {
	merged := newOrderedValues()

	entries, bodyErr := decodeObject(jsonBody)
	for _, kv := range entries {
		merged.set(kv.key, kv.value)
	}
	for _, kv := range firstValues(form) {
		merged.set(kv.Key, kv.Value)
	}
	for _, kv := range firstValues(query) {
		merged.setIfAbsent(kv.Key, kv.Value)
	}

	payload := NewRawPayload()
	for _, k := range merged.keys {
		if s, ok := NormalizeValue(merged.values[k]); ok {
			payload.Set(k, &s)
		} else {
			payload.Set(k, nil)
		}
	}
	return payload, bodyErr
}

// ParseOrderedQuery parses an application/x-www-form-urlencoded string and
// keeps field order. Undecodable pairs are skipped.
func ParseOrderedQuery(raw string) []KeyValue {
	var out []KeyValue
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		out = append(out, KeyValue{Key: key, Value: val})
	}
	return out
}

// firstValues keeps the first occurrence of each key.
func firstValues(kvs []KeyValue) []KeyValue {
	seen := make(map[string]bool, len(kvs))
	out := make([]KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		if seen[kv.Key] {
			continue
		}
		seen[kv.Key] = true
		out = append(out, kv)
	}
	return out
}

type orderedValues struct {
	keys   []string
	values map[string]interface{}
}

func newOrderedValues() *orderedValues {
	return &orderedValues{values: make(map[string]interface{})}
}

func (o *orderedValues) set(k string, v interface{}) {
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

func (o *orderedValues) setIfAbsent(k string, v interface{}) {
	if _, ok := o.values[k]; ok {
		return
	}
	o.keys = append(o.keys, k)
	o.values[k] = v
}

type rawEntry struct {
	key   string
	value interface{}
}

// decodeObject reads a top-level JSON object in key order. An empty body or
// a literal null yields nothing without error.
func decodeObject(body []byte) ([]rawEntry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.NewMalformedInputError("webhook body is not valid JSON", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.NewMalformedInputError(fmt.Sprintf("webhook body is %s, not a JSON object", jsonKind(tok)), nil)
	}

	var out []rawEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.NewMalformedInputError("webhook body is not valid JSON", err)
		}
		key, _ := tok.(string)
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, errors.NewMalformedInputError(fmt.Sprintf("invalid value for key %q", key), err)
		}
		out = append(out, rawEntry{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.NewMalformedInputError("webhook body is not valid JSON", err)
	}
	return out, nil
}

func jsonKind(tok json.Token) string {
	switch tok.(type) {
	case json.Delim:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return "not an object"
	}
}
