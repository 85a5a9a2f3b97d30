package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-query-cache/faults"
)

var frameMagic = []byte("QCB1")

// Frame prefixes payload with a magic header, the codec name and an xxhash64
// checksum so Unframe can reject truncated or foreign blobs.
//
//	magic(4) | nameLen(1) | name | checksum(8, big endian) | payload
func Frame(codecName string, payload []byte) []byte {
	out := make([]byte, 0, len(frameMagic)+1+len(codecName)+8+len(payload))
	out = append(out, frameMagic...)
	out = append(out, byte(len(codecName)))
	out = append(out, codecName...)
	out = binary.BigEndian.AppendUint64(out, xxhash.Sum64(payload))
	return append(out, payload...)
}

// Unframe validates blob and returns the codec name and payload.
// Every failure is a serialization fault.
func Unframe(blob []byte) (string, []byte, error) {
	if len(blob) < len(frameMagic)+1 || !bytes.Equal(blob[:len(frameMagic)], frameMagic) {
		return "", nil, faults.Serialization(nil, "blob has no frame header")
	}
	rest := blob[len(frameMagic):]
	nameLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < nameLen+8 {
		return "", nil, faults.Serialization(nil, "blob frame truncated")
	}
	name := string(rest[:nameLen])
	sum := binary.BigEndian.Uint64(rest[nameLen : nameLen+8])
	payload := rest[nameLen+8:]
	if xxhash.Sum64(payload) != sum {
		return "", nil, faults.Serialization(nil, "blob checksum mismatch")
	}
	return name, payload, nil
}
