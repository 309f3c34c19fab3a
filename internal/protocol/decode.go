package protocol

import "github.com/danmuck/nsqwire/internal/protocol/frame"

// Decode interprets one raw frame. Unknown type codes and malformed message
// frames are errors; the stream should be closed after either.
func Decode(typ frame.Type, payload []byte) (Frame, error) {
	switch typ {
	case frame.TypeResponse:
		return ParseResponse(payload), nil
	case frame.TypeError:
		return ParseError(payload), nil
	case frame.TypeMessage:
		m, err := ParseMessage(payload)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, &UnknownFrameTypeError{Code: typ}
}

// ReadFrame reads and decodes the next frame from r.
func ReadFrame(r *frame.Reader) (Frame, error) {
	typ, payload, err := r.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Decode(typ, payload)
}
