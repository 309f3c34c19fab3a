// Package msgid codes nsqd message identifiers: 64-bit values exchanged on
// the wire as exactly 16 ASCII hex digits.
package msgid

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HexLen is the wire length of an encoded ID.
const HexLen = 16

var ErrInvalid = errors.New("msgid: invalid message id")

// InvalidError carries the bytes that failed to decode.
type InvalidError struct {
	Raw []byte
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("msgid: invalid message id: %q", e.Raw)
}

func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// ID is an opaque message identifier.
type ID uint64

const hexDigits = "0123456789abcdef"

// FromHex decodes 16 hex digits (either case) as a big-endian uint64.
func FromHex(b []byte) (ID, error) {
	if len(b) != HexLen {
		return 0, invalid(b)
	}
	var raw [8]byte
	for i := range raw {
		hi, ok := nibble(b[2*i])
		if !ok {
			return 0, invalid(b)
		}
		lo, ok := nibble(b[2*i+1])
		if !ok {
			return 0, invalid(b)
		}
		raw[i] = hi<<4 | lo
	}
	return ID(binary.BigEndian.Uint64(raw[:])), nil
}

// Parse is FromHex for strings.
func Parse(s string) (ID, error) {
	return FromHex([]byte(s))
}

// AppendHex appends the 16 lowercase hex digits of id to dst.
func (id ID) AppendHex(dst []byte) []byte {
	for shift := 60; shift >= 0; shift -= 4 {
		dst = append(dst, hexDigits[(uint64(id)>>uint(shift))&0xf])
	}
	return dst
}

func (id ID) Hex() []byte {
	return id.AppendHex(make([]byte, 0, HexLen))
}

func (id ID) String() string {
	return string(id.Hex())
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func invalid(b []byte) error {
	raw := make([]byte, len(b))
	copy(raw, b)
	return &InvalidError{Raw: raw}
}
