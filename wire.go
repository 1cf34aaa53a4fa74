package usftp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// buffer is a consume-only byte buffer used to decode incoming message
// bodies; outgoing bodies are built by appending to a []byte with the put*
// functions below. It never silently over-reads
// past the end of a message: every getter checks remaining length first and
// returns an error, matching Design Notes' "check declared length against
// remaining message buffer before allocating."
type buffer struct {
	b []byte
}

func newBuffer(b []byte) *buffer { return &buffer{b: b} }

func (r *buffer) len() int { return len(r.b) }

func (r *buffer) need(n int) error {
	if n < 0 || n > len(r.b) {
		return &ProtocolError{cause: errors.Errorf("short message: need %d bytes, have %d", n, len(r.b))}
	}
	return nil
}

func (r *buffer) getUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v, nil
}

func (r *buffer) getUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b)
	r.b = r.b[4:]
	return v, nil
}

func (r *buffer) getUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b)
	r.b = r.b[8:]
	return v, nil
}

// getBytes returns a length-prefixed byte string. The returned slice is a
// copy: callers may retain it past the lifetime of the decode buffer.
func (r *buffer) getBytes() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.b[:n])
	r.b = r.b[n:]
	return v, nil
}

// getString decodes the same length-prefixed wire form as getBytes, as a
// Go string.
func (r *buffer) getString() (string, error) {
	v, err := r.getBytes()
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func putUint8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func putUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func putUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// putBytes appends a u32 length prefix followed by the raw bytes.
func putBytes(dst []byte, s []byte) []byte {
	dst = putUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// putString is the C-string wire form: identical to putBytes.
func putString(dst []byte, s string) []byte {
	return putBytes(dst, []byte(s))
}
