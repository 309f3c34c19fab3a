package protocol

import (
	"strconv"
	"unicode/utf8"
)

// Payload is frame data that may or may not be UTF-8 text. The bytes are
// kept exactly as received either way.
type Payload []byte

func (p Payload) IsText() bool {
	return utf8.Valid(p)
}

// Text returns the payload as a string when it is valid UTF-8.
func (p Payload) Text() (string, bool) {
	if !p.IsText() {
		return "", false
	}
	return string(p), true
}

func (p Payload) Bytes() []byte {
	return []byte(p)
}

// String returns the text, or a quoted form when the payload is binary.
func (p Payload) String() string {
	if s, ok := p.Text(); ok {
		return s
	}
	return strconv.Quote(string(p))
}
