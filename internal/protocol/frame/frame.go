package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// SizeLen is the width of the leading frame_length field.
	SizeLen = 4
	// HeaderLen covers frame_length and frame_type.
	HeaderLen = SizeLen + 4

	minBufferSize            = 4096
	maxConsecutiveEmptyReads = 100
)

// Type is the frame_type code. Codes outside the known three are preserved.
type Type uint32

const (
	TypeResponse Type = 0
	TypeError    Type = 1
	TypeMessage  Type = 2
)

func (t Type) Known() bool {
	return t <= TypeMessage
}

func (t Type) String() string {
	switch t {
	case TypeResponse:
		return "response"
	case TypeError:
		return "error"
	case TypeMessage:
		return "message"
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

var (
	ErrConnectionClosed = errors.New("frame: connection closed")
	ErrInvalidLength    = errors.New("frame: invalid frame length")
	ErrFrameTooLarge    = errors.New("frame: frame too large")
)

// Limits constrains decode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 16 * 1024 * 1024,
	}
}

// Reader decodes frames from a byte stream. Bytes that arrive ahead of the
// frame being decoded stay buffered for the next ReadFrame call.
//
// buf[r:w] holds unread bytes. Consuming a frame only advances r; unread
// bytes move to the front only when more must be read behind them, so every
// byte is copied at most once per frame it belongs to.
type Reader struct {
	rd     io.Reader
	limits Limits
	buf    []byte
	r, w   int
	err    error
}

func NewReader(rd io.Reader, limits Limits) *Reader {
	if limits.MaxFrameBytes == 0 {
		limits = DefaultLimits()
	}
	return &Reader{
		rd:     rd,
		limits: limits,
		buf:    make([]byte, minBufferSize),
	}
}

// Buffered returns the number of bytes read from the stream but not yet
// consumed by a frame.
func (r *Reader) Buffered() int {
	return r.w - r.r
}

// ReadFrame returns the next frame's type code and payload. The payload is
// owned by the caller. End of stream is reported as ErrConnectionClosed.
// ErrInvalidLength and ErrFrameTooLarge leave the stream unsynchronized.
func (r *Reader) ReadFrame() (Type, []byte, error) {
	if err := r.fill(HeaderLen); err != nil {
		return 0, nil, err
	}
	size := binary.BigEndian.Uint32(r.buf[r.r : r.r+SizeLen])
	if size < HeaderLen-SizeLen {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidLength, size)
	}
	if size > r.limits.MaxFrameBytes {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, r.limits.MaxFrameBytes)
	}

	total := SizeLen + int(size)
	if err := r.fill(total); err != nil {
		return 0, nil, err
	}

	typ := Type(binary.BigEndian.Uint32(r.buf[r.r+SizeLen : r.r+HeaderLen]))
	payload := make([]byte, total-HeaderLen)
	copy(payload, r.buf[r.r+HeaderLen:r.r+total])

	r.r += total
	if r.r == r.w {
		r.r, r.w = 0, 0
	}
	return typ, payload, nil
}

// fill reads until at least n unread bytes are buffered.
func (r *Reader) fill(n int) error {
	empty := 0
	for r.w-r.r < n {
		if r.err != nil {
			return r.readErr()
		}
		r.makeRoom(n)

		m, err := r.rd.Read(r.buf[r.w:])
		r.w += m
		if err != nil {
			r.err = err
			continue
		}
		if m > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxConsecutiveEmptyReads {
			r.err = io.ErrNoProgress
		}
	}
	return nil
}

// makeRoom guarantees buf can hold n unread bytes starting at r and that
// there is free space after w.
func (r *Reader) makeRoom(n int) {
	if len(r.buf)-r.r >= n && r.w < len(r.buf) {
		return
	}
	if r.r > 0 {
		copy(r.buf, r.buf[r.r:r.w])
		r.w -= r.r
		r.r = 0
	}
	if len(r.buf) < n {
		size := 2 * len(r.buf)
		if size < n {
			size = n
		}
		grown := make([]byte, size)
		copy(grown, r.buf[:r.w])
		r.buf = grown
	}
}

func (r *Reader) readErr() error {
	err := r.err
	r.err = nil
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if partial := r.w - r.r; partial > 0 {
			return fmt.Errorf("%w: %d bytes of partial frame buffered", ErrConnectionClosed, partial)
		}
		return ErrConnectionClosed
	}
	return err
}

// AppendFrame appends one server frame (length, type, payload) to dst.
func AppendFrame(dst []byte, typ Type, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(HeaderLen-SizeLen+len(payload)))
	dst = binary.BigEndian.AppendUint32(dst, uint32(typ))
	return append(dst, payload...)
}
