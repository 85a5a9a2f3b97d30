package cache

// Key identifies one cached query. It is an ordered sequence of primitive
// segments: a resource name first, then filters, sort options or an id.
//
// Two keys are equal when their segments are equal in order. Comparison goes
// through the default serializer so the int 3 and the float64 3 (what JSON
// gives back after a restore) are the same segment.
type Key []any

var segments = defaultKeySerializer{}

// NewKey copies parts into a new Key.
func NewKey(parts ...any) Key {
	return append(Key(nil), parts...)
}

// Append returns a new Key with parts added after k's segments.
func (k Key) Append(parts ...any) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// String encodes the key with the default serializer.
func (k Key) String() string {
	return segments.SerializeKey(k...)
}

// Equal reports whether k and other have the same segments in order.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// HasPrefix reports whether prefix matches k's leading segments.
// Matching is segment-wise: [expenses] is a prefix of [expenses food] but
// not of [expenses_archive].
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if segments.serializeValue(k[i]) != segments.serializeValue(prefix[i]) {
			return false
		}
	}
	return true
}
