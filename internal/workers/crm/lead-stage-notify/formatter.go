package leadstagenotify

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Labels are the fixed texts of a card.
type Labels struct {
	Title       string
	Untitled    string
	Placeholder string
}

func DefaultLabels() Labels {
	return Labels{Title: "Сделка", Untitled: "Без названия", Placeholder: "—"}
}

// FormatNotification renders a lead as an HTML card:
//
//	✅ <b>{title}</b> <code>{id}</code>
//	<b>{name}</b>
//	{key}: <b>{value}</b>   one line per custom field
//	{link}                  when set
//
// Every interpolated text is HTML escaped.
func FormatNotification(lead *EnrichedLead, labels Labels) string {
	name := labels.Untitled
	if lead.Name != nil && *lead.Name != "" {
		name = *lead.Name
	}

	lines := []string{
		fmt.Sprintf("✅ <b>%s</b> <code>%s</code>", html.EscapeString(labels.Title), html.EscapeString(lead.ID)),
		fmt.Sprintf("<b>%s</b>", html.EscapeString(name)),
	}
	for _, f := range lead.CustomFields {
		lines = append(lines, fmt.Sprintf("%s: <b>%s</b>", html.EscapeString(f.Key), html.EscapeString(displayValue(f.Value, labels.Placeholder))))
	}
	if lead.Link != nil && *lead.Link != "" {
		lines = append(lines, html.EscapeString(*lead.Link))
	}
	return strings.Join(lines, "\n")
}

// displayValue joins Many values with ", " and renders falsy values
// (absent, null, "", zero, false) as the placeholder.
func displayValue(v FieldValue, placeholder string) string {
	switch v.Kind() {
	case FieldMany:
		parts := make([]string, 0, len(v.Values()))
		for _, item := range v.Values() {
			parts = append(parts, valueText(item))
		}
		return strings.Join(parts, ", ")
	case FieldOne:
		if !truthy(v.Value()) {
			return placeholder
		}
		return valueText(v.Value())
	default:
		return placeholder
	}
}

func valueText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		return !isZeroNumber(t.String())
	case map[string]interface{}:
		return len(t) > 0
	case []interface{}:
		return len(t) > 0
	default:
		return true
	}
}

func isZeroNumber(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 0
}

// LeadLink builds the lead detail page URL, or nil without a base URL.
func LeadLink(baseURL, leadID string) *string {
	if baseURL == "" {
		return nil
	}
	link := fmt.Sprintf("%s/leads/detail/%s", strings.TrimRight(baseURL, "/"), leadID)
	return &link
}
