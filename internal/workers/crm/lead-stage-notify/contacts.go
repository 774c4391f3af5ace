package leadstagenotify

import (
	"context"
	"fmt"
	"strings"

	"amocrm-relay/internal/common/amocrm"
	"amocrm-relay/internal/common/config"
	"amocrm-relay/internal/common/errors"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/phone"
)

// ContactSet holds enriched contacts keyed by id, in CRM response order.
type ContactSet struct {
	order   []int64
	records map[int64]*ContactRecord
}

func newContactSet() *ContactSet {
	return &ContactSet{records: make(map[int64]*ContactRecord)}
}

func (s *ContactSet) put(r *ContactRecord) {
	if _, ok := s.records[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = r
}

func (s *ContactSet) Get(id int64) (*ContactRecord, bool) {
	r, ok := s.records[id]
	return r, ok
}

func (s *ContactSet) Len() int { return len(s.order) }

// Records returns the contacts in response order. Never nil.
func (s *ContactSet) Records() []ContactRecord {
	out := make([]ContactRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// ContactEnricher loads contacts in one batch and flattens them with the
// contact field map.
type ContactEnricher struct {
	crm    CRM
	fields config.FieldMap
	phones *phone.Normalizer
	logger logger.Logger
}

func NewContactEnricher(crm CRM, fields config.FieldMap, phones *phone.Normalizer, log logger.Logger) *ContactEnricher {
	return &ContactEnricher{crm: crm, fields: fields, phones: phones, logger: log}
}

// Enrich returns an empty set without calling the CRM when ids is empty.
// Lookup failures are logged and also yield an empty set; the error is
// returned so the caller can count the failed lookup.
func (e *ContactEnricher) Enrich(ctx context.Context, ids []int64) (*ContactSet, error) {
	set := newContactSet()
	if len(ids) == 0 {
		return set, nil
	}

	contacts, err := e.crm.ListContacts(ctx, ids)
	if err != nil {
		fields := map[string]interface{}{
			"contactIds": ids,
			"errorCode":  string(errors.CodeOf(err)),
			"error":      err.Error(),
		}
		if errors.HasCode(err, errors.ErrCodeConfigurationMissing) {
			e.logger.Debug("Contact lookup skipped", fields)
		} else {
			e.logger.Warn("Contact lookup failed", fields)
		}
		return newContactSet(), err
	}

	for _, c := range contacts {
		set.put(e.flatten(c))
	}
	return set, nil
}

func (e *ContactEnricher) flatten(c amocrm.Contact) *ContactRecord {
	phones, emails := collectCodes(c.CustomFieldsValues)
	if e.phones.Enabled() {
		phones = e.phones.NormalizeAll(phones)
	}

	record := &ContactRecord{ID: c.ID, Name: c.Name}
	for _, f := range e.fields {
		switch f.Target {
		case config.TargetPhone:
			record.Set(f.Key, phones)
		case config.TargetEmail:
			record.Set(f.Key, emails)
		default:
			record.Set(f.Key, ReadCustomField(c.CustomFieldsValues, f.Target))
		}
	}
	return record
}

// collectCodes gathers PHONE and EMAIL values by field code. Strings are
// trimmed, other values are rendered as text; empty results are dropped.
func collectCodes(blocks []amocrm.CustomFieldBlock) (phones, emails []string) {
	phones, emails = []string{}, []string{}
	for _, block := range blocks {
		if block.FieldCode != config.TargetPhone && block.FieldCode != config.TargetEmail {
			continue
		}
		for _, container := range block.Values {
			val := codeValue(container["value"])
			if val == "" {
				continue
			}
			if block.FieldCode == config.TargetPhone {
				phones = append(phones, val)
			} else {
				emails = append(emails, val)
			}
		}
	}
	return phones, emails
}

func codeValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		s := fmt.Sprint(t)
		if isZeroNumber(s) {
			return ""
		}
		return s
	}
}
