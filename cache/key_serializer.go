package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// KeySerializer turns the segments of a Key into the string the entry store
// is indexed by. It must be deterministic across runs, since persisted
// entries are restored under the same encoding.
type KeySerializer interface {
	SerializeKey(parts ...any) string
}

// defaultKeySerializer implements KeySerializer using reflection.
// Numbers are normalized so a key restored from JSON (where every number is
// a float64) encodes exactly like the int key that produced it.
//
// The encoding is injective: plain strings are written as is, and any string
// that could read as another kind ("7", "nil", "true") or that holds a
// reserved character is quoted with its colons escaped. No encoded segment
// contains "::", so segment boundaries stay unambiguous.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins the serialized segments with KeySeparator.
func (s defaultKeySerializer) SerializeKey(parts ...any) string {
	if len(parts) == 0 {
		return ""
	}

	out := make([]string, len(parts))
	for i, part := range parts {
		out[i] = s.serializeValue(part)
	}
	return strings.Join(out, KeySeparator)
}

// serializeValue handles individual segment serialization based on type.
func (s defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.String:
		return serializeString(rv.String())
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Func, reflect.Chan:
		// Only stable within one process. Never persist keys holding these.
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	}

	return s.jsonFallback(v)
}

// reservedKeyChars may not appear in an unquoted string segment.
const reservedKeyChars = ":,=\"{}[]\\"

func serializeString(v string) string {
	if isPlainString(v) {
		return v
	}
	return strings.ReplaceAll(strconv.Quote(v), ":", `\x3a`)
}

// isPlainString reports whether v cannot be confused with the encoding of a
// number, bool, nil or composite segment.
func isPlainString(v string) bool {
	if v == "" || strings.ContainsAny(v, reservedKeyChars) {
		return false
	}
	switch v {
	case "nil", "true", "false":
		return false
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return false
	}
	return true
}

// serializeList handles slices and arrays recursively.
func (s defaultKeySerializer) serializeList(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap handles map serialization with sorted keys for determinism.
func (s defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct handles struct serialization with exported field names.
func (s defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// jsonFallback provides JSON serialization as a last resort.
func (s defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%T", v)
	}
	return "json:" + strings.ReplaceAll(string(data), ":", `\u003a`)
}
