package amocrm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Lead is the subset of GET /api/v4/leads/{id} the relay reads. Pass-through
// attributes stay raw so they are echoed exactly as the CRM sent them.
type Lead struct {
	ID                 json.Number        `json:"id"`
	Name               *string            `json:"name"`
	Price              json.RawMessage    `json:"price"`
	PipelineID         json.RawMessage    `json:"pipeline_id"`
	StatusID           json.RawMessage    `json:"status_id"`
	CustomFieldsValues []CustomFieldBlock `json:"custom_fields_values"`
	Embedded           struct {
		Contacts []EntityRef `json:"contacts"`
	} `json:"_embedded"`
}

// ContactIDs returns the ids of the embedded contacts, skipping missing,
// zero or non-integer ids, in CRM order.
func (l *Lead) ContactIDs() []int64 {
	ids := make([]int64, 0, len(l.Embedded.Contacts))
	for _, ref := range l.Embedded.Contacts {
		id, err := ref.ID.Int64()
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

type EntityRef struct {
	ID json.Number `json:"id"`
}

// Contact is one element of GET /api/v4/contacts.
type Contact struct {
	ID                 int64              `json:"id"`
	Name               *string            `json:"name"`
	CustomFieldsValues []CustomFieldBlock `json:"custom_fields_values"`
}

type contactList struct {
	Embedded struct {
		Contacts []Contact `json:"contacts"`
	} `json:"_embedded"`
}

// CustomFieldBlock is one entry of custom_fields_values.
type CustomFieldBlock struct {
	FieldID   FieldID            `json:"field_id"`
	FieldCode string             `json:"field_code"`
	Values    []CustomFieldValue `json:"values"`
}

// CustomFieldValue is a value container. It is kept as a map because the
// reader needs to know whether the value and enum_id keys are present.
// Numbers decode as json.Number.
type CustomFieldValue map[string]interface{}

// FieldID accepts numeric or string ids and stores their text.
type FieldID string

func (f *FieldID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FieldID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field_id: %w", err)
	}
	*f = FieldID(n.String())
	return nil
}

func (f FieldID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

func (f FieldID) String() string {
	return string(f)
}
