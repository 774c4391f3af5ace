package leadstagenotify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"amocrm-relay/internal/common/amocrm"
	"amocrm-relay/internal/common/config"
	"amocrm-relay/internal/common/errors"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/phone"
)

const contactsJSON = `[
	{
		"id": 12,
		"name": "Ann",
		"custom_fields_values": [
			{"field_id": 1, "field_code": "PHONE", "values": [{"value": " 8 (912) 345-67-89 "}, {"value": ""}, {"value": "+31 6 12345678"}]},
			{"field_id": 2, "field_code": "EMAIL", "values": [{"value": "ann@example.com"}, {"value": null}]},
			{"field_id": 555, "values": [{"value": "Moscow"}]}
		]
	},
	{"id": 11, "name": null}
]`

func decodeContacts(t *testing.T) []amocrm.Contact {
	t.Helper()
	var contacts []amocrm.Contact
	dec := json.NewDecoder(strings.NewReader(contactsJSON))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&contacts))
	return contacts
}

func contactFieldMap() config.FieldMap {
	return config.FieldMap{
		{Key: "phone", Target: config.TargetPhone},
		{Key: "email", Target: config.TargetEmail},
		{Key: "city", Target: "555"},
	}
}

func TestContactEnricher_EmptyIDsSkipsCall(t *testing.T) {
	crm := new(MockCRM)
	enricher := NewContactEnricher(crm, contactFieldMap(), nil, logger.NewTestLogger(t))

	set, err := enricher.Enrich(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.NotNil(t, set.Records())
	crm.AssertNotCalled(t, "ListContacts", mock.Anything, mock.Anything)
}

func TestContactEnricher_Enrich(t *testing.T) {
	crm := new(MockCRM)
	crm.On("ListContacts", mock.Anything, []int64{11, 12}).Return(decodeContacts(t), nil).Once()

	enricher := NewContactEnricher(crm, contactFieldMap(), nil, logger.NewTestLogger(t))
	set, err := enricher.Enrich(context.Background(), []int64{11, 12})
	require.NoError(t, err)
	crm.AssertExpectations(t)

	records := set.Records()
	require.Len(t, records, 2)
	assert.Equal(t, int64(12), records[0].ID, "response order is kept")
	assert.Equal(t, int64(11), records[1].ID)

	ann, ok := set.Get(12)
	require.True(t, ok)
	phones, _ := ann.Get("phone")
	assert.Equal(t, []string{"8 (912) 345-67-89", "+31 6 12345678"}, phones)

	raw, err := json.Marshal(records)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":12,"name":"Ann","phone":["8 (912) 345-67-89","+31 6 12345678"],"email":["ann@example.com"],"city":"Moscow"},
		{"id":11,"name":null,"phone":[],"email":[],"city":null}
	]`, string(raw))
}

func TestContactEnricher_NormalizesPhones(t *testing.T) {
	crm := new(MockCRM)
	crm.On("ListContacts", mock.Anything, []int64{12}).Return(decodeContacts(t)[:1], nil)

	enricher := NewContactEnricher(crm, contactFieldMap(), phone.NewNormalizer("RU"), logger.NewTestLogger(t))
	set, err := enricher.Enrich(context.Background(), []int64{12})
	require.NoError(t, err)

	ann, _ := set.Get(12)
	phones, _ := ann.Get("phone")
	assert.Equal(t, []string{"+79123456789", "+31612345678"}, phones)
}

func TestContactEnricher_FailureYieldsEmptySet(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"upstream", errors.NewUpstreamError("amocrm", fmt.Errorf("status 500"))},
		{"not configured", errors.NewConfigurationMissingError("amocrm", "no token")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := new(MockCRM)
			crm.On("ListContacts", mock.Anything, []int64{1}).Return(nil, tt.err)

			enricher := NewContactEnricher(crm, contactFieldMap(), nil, logger.NewTestLogger(t))
			set, err := enricher.Enrich(context.Background(), []int64{1})
			assert.Error(t, err)
			assert.Equal(t, 0, set.Len())
			assert.Empty(t, set.Records())
		})
	}
}

func TestContactRecord_ReservedKeysReplaceAttributes(t *testing.T) {
	name := "Bob"
	r := ContactRecord{ID: 5, Name: &name}
	r.Set("name", "override")
	r.Set("extra", []string{})

	raw, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":5,"name":"override","extra":[]}`, string(raw))
}
