package leadstagenotify

import "regexp"

var leadStatusKey = regexp.MustCompile(`^leads\[status\]\[\d+\]\[id\]$`)

// fallbackLeadKeys are checked after the status keys, in this order.
var fallbackLeadKeys = []string{"lead_id", "id", "leadId"}

// ExtractLeadIDs returns the distinct lead ids of a payload in first-seen
// order: status keys in payload order, then the fallback keys. Absent and
// empty values are ignored.
func ExtractLeadIDs(payload *RawPayload) []string {
	var ids []string
	seen := make(map[string]bool)

	add := func(key string) {
		v, ok := payload.Get(key)
		if !ok || v == "" || seen[v] {
			return
		}
		seen[v] = true
		ids = append(ids, v)
	}

	for _, key := range payload.Keys() {
		if leadStatusKey.MatchString(key) {
			add(key)
		}
	}
	for _, key := range fallbackLeadKeys {
		add(key)
	}
	return ids
}
