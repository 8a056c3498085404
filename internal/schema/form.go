package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/medirisk-server/internal/domain"
)

// CoerceForm converts string form or CLI values to a RawInput using the
// domain schema. Empty values are dropped so the validator reports them as
// missing; fields unknown to the schema are kept verbatim.
func (r *Registry) CoerceForm(domainID string, values map[string]string) (domain.RawInput, error) {
	s, err := r.Get(domainID)
	if err != nil {
		return nil, err
	}

	raw := make(domain.RawInput, len(values))
	for name, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if !s.Has(name) {
			raw[name] = value
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", name, value)
		}
		raw[name] = f
	}
	return raw, nil
}
