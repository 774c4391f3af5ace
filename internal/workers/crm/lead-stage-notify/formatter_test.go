package leadstagenotify

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFormatNotification(t *testing.T) {
	lead := &EnrichedLead{
		ID:   "42",
		Name: strPtr("Test & Co <x>"),
		CustomFields: CustomFields{
			{Key: "training_day", Value: One("2024-05-01")},
			{Key: "tags", Value: Many([]interface{}{"a", json.Number("2")})},
			{Key: "empty", Value: One("")},
			{Key: "zero", Value: One(json.Number("0"))},
			{Key: "off", Value: One(false)},
			{Key: "missing", Value: Absent()},
			{Key: "a<b", Value: One("\"quoted\"")},
		},
		Link: strPtr("https://acme.amocrm.ru/leads/detail/42?a=1&b=2"),
	}

	want := strings.Join([]string{
		"✅ <b>Сделка</b> <code>42</code>",
		"<b>Test &amp; Co &lt;x&gt;</b>",
		"training_day: <b>2024-05-01</b>",
		"tags: <b>a, 2</b>",
		"empty: <b>—</b>",
		"zero: <b>—</b>",
		"off: <b>—</b>",
		"missing: <b>—</b>",
		"a&lt;b: <b>&#34;quoted&#34;</b>",
		"https://acme.amocrm.ru/leads/detail/42?a=1&amp;b=2",
	}, "\n")

	assert.Equal(t, want, FormatNotification(lead, DefaultLabels()))
}

func TestFormatNotification_Untitled(t *testing.T) {
	tests := []struct {
		name string
		lead *EnrichedLead
	}{
		{"nil name", &EnrichedLead{ID: "7"}},
		{"empty name", &EnrichedLead{ID: "7", Name: strPtr("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatNotification(tt.lead, DefaultLabels())
			assert.Equal(t, "✅ <b>Сделка</b> <code>7</code>\n<b>Без названия</b>", got)
		})
	}
}

func TestFormatNotification_CustomLabels(t *testing.T) {
	labels := Labels{Title: "Deal & Co", Untitled: "<none>", Placeholder: "n/a"}
	lead := &EnrichedLead{
		ID:           "1",
		CustomFields: CustomFields{{Key: "x", Value: Absent()}},
	}

	got := FormatNotification(lead, labels)
	assert.Equal(t, "✅ <b>Deal &amp; Co</b> <code>1</code>\n<b>&lt;none&gt;</b>\nx: <b>n/a</b>", got)
}

func TestLeadLink(t *testing.T) {
	assert.Nil(t, LeadLink("", "42"))

	link := LeadLink("https://acme.amocrm.ru/", "42")
	require.NotNil(t, link)
	assert.Equal(t, "https://acme.amocrm.ru/leads/detail/42", *link)
}
