package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for numbers libphonenumber cannot accept
var ErrInvalid = errors.New("invalid phone number")

// Result contains a normalized phone number.
type Result struct {
	E164          string `json:"e164"`
	International string `json:"international"`
	Region        string `json:"region"`
	Mobile        bool   `json:"mobile"`
}

// Normalizer parses contact numbers relative to a default region,
// used when the submitter omits the country prefix.
type Normalizer struct {
	region string
}

// NewNormalizer creates a normalizer for region (ISO 3166 alpha-2, e.g. "BR")
func NewNormalizer(region string) *Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "US"
	}
	return &Normalizer{region: region}
}

// Region returns the default region
func (n *Normalizer) Region() string {
	return n.region
}

// Normalize parses and validates raw, returning it in E.164 among other formats.
func (n *Normalizer) Normalize(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}

	parsed, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, raw)
	}

	kind := phonenumbers.GetNumberType(parsed)
	return &Result{
		E164:          phonenumbers.Format(parsed, phonenumbers.E164),
		International: phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL),
		Region:        phonenumbers.GetRegionCodeForNumber(parsed),
		Mobile:        kind == phonenumbers.MOBILE || kind == phonenumbers.FIXED_LINE_OR_MOBILE,
	}, nil
}

// E164 is a shorthand for Normalize(raw).E164
func (n *Normalizer) E164(raw string) (string, error) {
	res, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}
	return res.E164, nil
}
