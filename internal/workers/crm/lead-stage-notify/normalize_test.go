package leadstagenotify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amocrm-relay/internal/common/errors"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		present bool
	}{
		{"nil is absent", nil, "", false},
		{"trimmed", "  42 \n", "42", true},
		{"double quotes stripped", `"42"`, "42", true},
		{"single quotes stripped", " 'abc' ", "abc", true},
		{"one layer only", `""x""`, `"x"`, true},
		{"mismatched quotes kept", `"abc'`, `"abc'`, true},
		{"lone quote kept", `"`, `"`, true},
		{"first array element", []interface{}{" 7 ", "8"}, "7", true},
		{"empty array", []interface{}{}, "[]", true},
		{"array starting with null", []interface{}{nil, "x"}, "", false},
		{"string slice", []string{"a", "b"}, "a", true},
		{"number keeps literal", json.Number("1.50"), "1.50", true},
		{"bool", true, "true", true},
		{"object as compact json", map[string]interface{}{"a": json.Number("1")}, `{"a":1}`, true},
		{"nested array in array", []interface{}{[]interface{}{"x"}}, `["x"]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeValue(tt.input)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectPayload_Precedence(t *testing.T) {
	jsonBody := []byte(`{"a":"json","b":" json ","c":null,"n":5}`)
	form := []KeyValue{{"a", "form"}, {"d", "form"}, {"d", "second"}}
	query := []KeyValue{{"a", "query"}, {"b", "query"}, {"e", "'query'"}}

	p, err := CollectPayload(jsonBody, form, query)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "n", "d", "e"}, p.Keys())

	v, ok := p.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "form", v)

	v, _ = p.Get("b")
	assert.Equal(t, "json", v)

	assert.True(t, p.Has("c"))
	_, ok = p.Get("c")
	assert.False(t, ok)

	v, _ = p.Get("n")
	assert.Equal(t, "5", v)

	v, _ = p.Get("d")
	assert.Equal(t, "form", v)

	v, _ = p.Get("e")
	assert.Equal(t, "query", v)
}

func TestCollectPayload_IgnoresBadJSON(t *testing.T) {
	query := []KeyValue{{"lead_id", "9"}}

	for _, body := range []string{`{"a":`, `[1,2]`, `"text"`, `42`} {
		p, err := CollectPayload([]byte(body), nil, query)
		assert.Equal(t, []string{"lead_id"}, p.Keys(), "body %q", body)
		require.Error(t, err, "body %q", body)
		assert.Equal(t, errors.ErrCodeMalformedInput, errors.CodeOf(err), "body %q", body)
	}

	for _, body := range []string{``, `  `, `null`} {
		p, err := CollectPayload([]byte(body), nil, query)
		assert.NoError(t, err, "body %q", body)
		assert.Equal(t, []string{"lead_id"}, p.Keys(), "body %q", body)
	}
}

func TestRawPayload_MarshalJSON(t *testing.T) {
	p, err := CollectPayload([]byte(`{"z":"1","a":null}`), nil, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"1","a":null}`, string(raw))

	html, err := CollectPayload([]byte(`{"t":"<b>"}`), nil, nil)
	require.NoError(t, err)
	direct, err := html.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"t":"<b>"}`, string(direct))
}

func TestParseOrderedQuery(t *testing.T) {
	raw := "leads%5Bstatus%5D%5B0%5D%5Bid%5D=42&x=a+b&bad=%zz&&flag"

	assert.Equal(t, []KeyValue{
		{"leads[status][0][id]", "42"},
		{"x", "a b"},
		{"flag", ""},
	}, ParseOrderedQuery(raw))

	assert.Empty(t, ParseOrderedQuery(""))
}

func TestCollectPayload_FormOverridesJSONOverridesQuery(t *testing.T) {
	p, err := CollectPayload(
		[]byte(`{"a":"1"}`),
		[]KeyValue{{"a", "2"}},
		[]KeyValue{{"a", "3"}, {"b", "4"}},
	)
	require.NoError(t, err)

	raw, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":"2","b":"4"}`, string(raw))
}
