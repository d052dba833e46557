package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1

	// KindToken frames values of the durable token store.
	KindToken byte = 1
	// KindGeneral frames values of the durable general store.
	KindGeneral byte = 2
)

var (
	ErrCorrupt = errors.New("opscache: corrupt stored value")
	magic4     = [...]byte{'O', 'P', 'S', 'C'}
)

const hdrLen = 4 + 1 + 1 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Envelope is one persisted value.
type Envelope struct {
	Kind      byte
	WrittenAt int64 // unix millis
	Payload   []byte
}

// Encode frames payload:
//
//	magic(4) | ver(1) | kind(1) | writtenAt(i64 be, unix ms) | vlen(u32 be) | payload(vlen)
func Encode(kind byte, writtenAtMs int64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(writtenAtMs))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses an envelope of the expected kind. The payload aliases b.
// Trailing bytes, foreign magic and kind mismatches are all ErrCorrupt.
func Decode(want byte, b []byte) (Envelope, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != want {
		return Envelope{}, ErrCorrupt
	}

	off := 6

	// writtenAt
	at := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	// vlen
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // overflow-safe, no trailing bytes
		return Envelope{}, ErrCorrupt
	}

	return Envelope{Kind: want, WrittenAt: at, Payload: b[off : off+vlen]}, nil
}
