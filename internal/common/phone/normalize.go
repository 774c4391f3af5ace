// Package phone formats contact phone numbers.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalizer formats numbers to E.164 using a default region for numbers
// written without a country code. A zero Normalizer only trims.
type Normalizer struct {
	region string
}

func NewNormalizer(region string) *Normalizer {
	return &Normalizer{region: strings.ToUpper(strings.TrimSpace(region))}
}

// KnownRegion reports whether region is a two-letter region code the
// numbering plan metadata knows about.
func KnownRegion(region string) bool {
	return phonenumbers.GetCountryCodeForRegion(strings.ToUpper(region)) != 0
}

func (n *Normalizer) Enabled() bool {
	return n != nil && n.region != ""
}

// Normalize returns the E.164 form of input, or the trimmed input when it
// cannot be parsed as a valid number.
func (n *Normalizer) Normalize(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || !n.Enabled() {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, n.region)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// NormalizeAll applies Normalize to every element and keeps order.
func (n *Normalizer) NormalizeAll(inputs []string) []string {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = n.Normalize(in)
	}
	return out
}
