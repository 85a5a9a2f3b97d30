package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-query-cache/faults"
)

// Codec encodes values for the persisted blob and for cached query data.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

var mapStringAny = reflect.TypeOf(map[string]any(nil))

// Names accepted by ByName.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
	NameCBOR    = "cbor"
)

// JSON uses encoding/json. The zero value is ready to use.
type JSON struct{}

func (JSON) Name() string                    { return NameJSON }
func (JSON) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Msgpack uses vmihailenco/msgpack. The zero value is ready to use.
//
// Structs are keyed by their json tags so the same types round trip through
// every codec.
type Msgpack struct{}

func (Msgpack) Name() string { return NameMsgpack }

func (Msgpack) Marshal(v any) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack) Unmarshal(b []byte, v any) error {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// CBOR uses fxamacker/cbor with core deterministic encoding so equal values
// produce equal bytes, which keeps checksums stable.
// The zero value is NOT ready to use. Construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR builds a deterministic CBOR codec.
func NewCBOR() (CBOR, error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{DefaultMapType: mapStringAny}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (CBOR) Name() string                      { return NameCBOR }
func (c CBOR) Marshal(v any) ([]byte, error)   { return c.enc.Marshal(v) }
func (c CBOR) Unmarshal(b []byte, v any) error { return c.dec.Unmarshal(b, v) }

// ByName returns the codec registered under name. Empty selects JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case "", NameJSON:
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	case NameCBOR:
		return NewCBOR()
	default:
		return nil, faults.Serialization(nil, fmt.Sprintf("unknown codec %q", name))
	}
}
