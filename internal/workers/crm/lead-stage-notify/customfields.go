package leadstagenotify

import (
	"strings"

	"amocrm-relay/internal/common/amocrm"
	"amocrm-relay/internal/common/config"
)

// ReadCustomField resolves fieldID against the first block whose field_id
// has the same text. Each value container contributes its value when
// present and not null, otherwise its enum_id when that key exists.
func ReadCustomField(blocks []amocrm.CustomFieldBlock, fieldID string) FieldValue {
	fieldID = strings.TrimSpace(fieldID)
	if fieldID == "" {
		return Absent()
	}
	for _, block := range blocks {
		if block.FieldID.String() != fieldID {
			continue
		}

		var values []interface{}
		for _, container := range block.Values {
			if v, ok := container["value"]; ok && v != nil {
				values = append(values, v)
				continue
			}
			if enumID, ok := container["enum_id"]; ok {
				values = append(values, enumID)
			}
		}
		return Many(values)
	}
	return Absent()
}

// ReadLeadFields resolves every lead field map entry in configured order.
func ReadLeadFields(lead *amocrm.Lead, fields config.FieldMap) CustomFields {
	out := make(CustomFields, 0, len(fields))
	for _, f := range fields {
		out = append(out, NamedField{Key: f.Key, Value: ReadCustomField(lead.CustomFieldsValues, f.Target)})
	}
	return out
}
