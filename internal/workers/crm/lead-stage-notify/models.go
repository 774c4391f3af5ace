package leadstagenotify

import (
	"bytes"
	"context"
	"encoding/json"

	"amocrm-relay/internal/common/amocrm"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/observability"
	"amocrm-relay/internal/common/phone"
)

// RawPayload is the normalized webhook input. Keys keep first-insertion
// order; a value is nil when the source value normalized to absent.
type RawPayload struct {
	keys   []string
	values map[string]*string
}

func NewRawPayload() *RawPayload {
	return &RawPayload{values: make(map[string]*string)}
}

// Set stores value under key. An existing key keeps its position.
func (p *RawPayload) Set(key string, value *string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it is present and not absent.
func (p *RawPayload) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[key]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

func (p *RawPayload) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.values[key]
	return ok
}

func (p *RawPayload) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

func (p *RawPayload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

func (p *RawPayload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, p.values[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FieldKind tells which variant a FieldValue holds.
type FieldKind int

const (
	FieldAbsent FieldKind = iota
	FieldOne
	FieldMany
)

// FieldValue is the result of reading a custom field: absent, exactly one
// value, or several values in CRM order. Values are strings, json.Number,
// bools or nil as decoded from the CRM.
type FieldValue struct {
	kind   FieldKind
	values []interface{}
}

func Absent() FieldValue { return FieldValue{kind: FieldAbsent} }

func One(v interface{}) FieldValue { return FieldValue{kind: FieldOne, values: []interface{}{v}} }

// Many builds a multi-valued result. Fewer than two values collapse to the
// matching variant.
func Many(vs []interface{}) FieldValue {
	switch len(vs) {
	case 0:
		return Absent()
	case 1:
		return One(vs[0])
	}
	return FieldValue{kind: FieldMany, values: append([]interface{}(nil), vs...)}
}

func (f FieldValue) Kind() FieldKind { return f.kind }

func (f FieldValue) IsAbsent() bool { return f.kind == FieldAbsent }

// Value returns the single value of a One result, nil otherwise.
func (f FieldValue) Value() interface{} {
	if f.kind != FieldOne {
		return nil
	}
	return f.values[0]
}

// Values returns every value: none for Absent, one for One.
func (f FieldValue) Values() []interface{} {
	return append([]interface{}(nil), f.values...)
}

func (f FieldValue) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case FieldOne:
		return json.Marshal(f.values[0])
	case FieldMany:
		return json.Marshal(f.values)
	default:
		return []byte("null"), nil
	}
}

// NamedField is one resolved custom field of a lead.
type NamedField struct {
	Key   string
	Value FieldValue
}

// CustomFields keeps the configured field order when encoded.
type CustomFields []NamedField

func (c CustomFields) Get(key string) (FieldValue, bool) {
	for _, f := range c {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Absent(), false
}

func (c CustomFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ContactRecord is the flattened contact: id, name, then one entry per
// contact field map key. Phone and email entries hold []string, other
// entries hold a FieldValue.
type ContactRecord struct {
	ID     int64
	Name   *string
	fields []contactField
}

type contactField struct {
	key   string
	value interface{}
}

// Set adds or replaces a field map entry.
func (r *ContactRecord) Set(key string, value interface{}) {
	for i := range r.fields {
		if r.fields[i].key == key {
			r.fields[i].value = value
			return
		}
	}
	r.fields = append(r.fields, contactField{key: key, value: value})
}

func (r *ContactRecord) Get(key string) (interface{}, bool) {
	for _, f := range r.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// MarshalJSON writes id and name first. A field map key named id or name
// replaces the attribute in place.
func (r ContactRecord) MarshalJSON() ([]byte, error) {
	entries := []contactField{{key: "id", value: r.ID}, {key: "name", value: r.Name}}
	for _, f := range r.fields {
		replaced := false
		for i := range entries[:2] {
			if entries[i].key == f.key {
				entries[i].value = f.value
				replaced = true
			}
		}
		if !replaced {
			entries = append(entries, f)
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, e.key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, e.value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EnrichedLead is one lead of the webhook response.
type EnrichedLead struct {
	ID           string          `json:"id"`
	Name         *string         `json:"name"`
	Price        json.RawMessage `json:"price"`
	PipelineID   json.RawMessage `json:"pipeline_id"`
	StatusID     json.RawMessage `json:"status_id"`
	CustomFields CustomFields    `json:"custom_fields"`
	Contacts     []ContactRecord `json:"contacts"`
	Link         *string         `json:"link"`
}

// WebhookResponse is returned for every authenticated call.
type WebhookResponse struct {
	OK             bool           `json:"ok"`
	WebhookMinimal *RawPayload    `json:"webhook_minimal"`
	LeadsFull      []EnrichedLead `json:"leads_full"`
}

// CRM is the part of the amoCRM client the service needs.
type CRM interface {
	GetLead(ctx context.Context, leadID string) (*amocrm.Lead, error)
	ListContacts(ctx context.Context, ids []int64) ([]amocrm.Contact, error)
}

// Notifier delivers one formatted card.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

type ServiceDependencies struct {
	Logger        logger.Logger
	CRM           CRM
	Notifiers     []Notifier
	Phones        *phone.Normalizer
	Observability *observability.Observability
}

// writeJSON encodes v without HTML escaping so cards and payloads are echoed
// byte for byte.
func writeJSON(buf *bytes.Buffer, v interface{}) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}
