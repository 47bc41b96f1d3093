package types

import (
	"maps"
	"slices"

	"github.com/goccy/go-json"
)

// Record is the string-valued document every backend stores at a path.
type Record map[string]string

// Props is a property bag. Values are either strings or JSON-serialisable values.
// Strings are stored as-is, everything else as canonical JSON (sorted object keys).
type Props map[string]any

// Clone returns a shallow copy of the record; nil stays nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Equal reports whether both records hold the same fields. A nil record equals an empty one.
func (r Record) Equal(other Record) bool {
	return maps.Equal(r, other)
}

// Keys returns the sorted field names.
func (r Record) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}

// EncodeValue converts a single property value to its stored form.
func EncodeValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeValue parses a stored value as JSON, falling back to the raw string.
func DecodeValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// Encode converts the bag into a record.
func (p Props) Encode() (Record, error) {
	out := make(Record, len(p))
	for k, v := range p {
		s, err := EncodeValue(v)
		if err != nil {
			return nil, Err(ErrInvalidArgument, err, "property %q is not serialisable", k)
		}
		out[k] = s
	}
	return out, nil
}

// Decode converts a record back into a property bag. An empty record yields nil.
func (r Record) Decode() Props {
	if len(r) == 0 {
		return nil
	}
	out := make(Props, len(r))
	for k, v := range r {
		out[k] = DecodeValue(v)
	}
	return out
}

// MarshalCanonical encodes any value as canonical JSON.
func MarshalCanonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
