package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/danmuck/nsqwire/internal/testutil/testlog"
)

// pipelined holds two OK responses and two message frames back to back.
func pipelined() []byte {
	var b []byte
	b = append(b, "\x00\x00\x00\x06\x00\x00\x00\x00OK"...)
	b = append(b, "\x00\x00\x00\x06\x00\x00\x00\x00OK"...)
	b = append(b, "\x00\x00\x00\x25\x00\x00\x00\x02\x13\xf1\xb2\xd4\x35\x47\xd1\x52\x00\x0308a1b6139740c001hmmmmmm"...)
	b = append(b, "\x00\x00\x00\x25\x00\x00\x00\x02\x13\xf1\xb4\x71\x13\x13\x63\x53\x00\x0108a1b6139740c005hmmmmmm"...)
	return b
}

func checkPipelined(t *testing.T, r *Reader) {
	t.Helper()
	for i := 0; i < 2; i++ {
		typ, data, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if typ != TypeResponse || string(data) != "OK" {
			t.Fatalf("frame %d: got type=%s data=%q", i, typ, data)
		}
	}

	typ, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if typ != TypeMessage || len(data) != 33 {
		t.Fatalf("frame 2: got type=%s len=%d", typ, len(data))
	}
	if !bytes.Equal(data[0:8], []byte("\x13\xf1\xb2\xd4\x35\x47\xd1\x52")) {
		t.Fatalf("frame 2 timestamp bytes: %x", data[0:8])
	}
	if !bytes.Equal(data[8:10], []byte{0, 3}) {
		t.Fatalf("frame 2 attempts bytes: %x", data[8:10])
	}
	if string(data[10:26]) != "08a1b6139740c001" || string(data[26:]) != "hmmmmmm" {
		t.Fatalf("frame 2 id/body: %q", data[10:])
	}

	typ, data, err = r.ReadFrame()
	if err != nil {
		t.Fatalf("frame 3: %v", err)
	}
	if typ != TypeMessage || string(data[10:26]) != "08a1b6139740c005" || !bytes.Equal(data[8:10], []byte{0, 1}) {
		t.Fatalf("frame 3: got type=%s data=%q", typ, data)
	}

	if _, _, err := r.ReadFrame(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed at end of stream, got %v", err)
	}
}

func TestReadFrameResponseOK(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader([]byte("\x00\x00\x00\x06\x00\x00\x00\x00OK")), DefaultLimits())
	typ, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if typ != TypeResponse || string(data) != "OK" {
		t.Fatalf("got type=%s data=%q", typ, data)
	}
	if r.Buffered() != 0 {
		t.Fatalf("unexpected buffered bytes: %d", r.Buffered())
	}
}

func TestReadFramePipelined(t *testing.T) {
	testlog.Start(t)
	checkPipelined(t, NewReader(bytes.NewReader(pipelined()), DefaultLimits()))
}

func TestReadFrameOneByteAtATime(t *testing.T) {
	testlog.Start(t)
	checkPipelined(t, NewReader(iotest.OneByteReader(bytes.NewReader(pipelined())), DefaultLimits()))
}

func TestReadFrameDataWithEOF(t *testing.T) {
	testlog.Start(t)
	checkPipelined(t, NewReader(iotest.DataErrReader(bytes.NewReader(pipelined())), DefaultLimits()))
}

func TestReadFrameHalfReads(t *testing.T) {
	testlog.Start(t)
	checkPipelined(t, NewReader(iotest.HalfReader(bytes.NewReader(pipelined())), DefaultLimits()))
}

func TestReadFrameKeepsPipelinedBytes(t *testing.T) {
	testlog.Start(t)
	b := pipelined()
	r := NewReader(bytes.NewReader(b), DefaultLimits())
	if _, _, err := r.ReadFrame(); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if want := len(b) - 10; r.Buffered() != want {
		t.Fatalf("buffered=%d want=%d", r.Buffered(), want)
	}
}

func TestReadFrameUnknownTypeIsPreserved(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader(AppendFrame(nil, Type(7), []byte("x"))), DefaultLimits())
	typ, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if typ != Type(7) || typ.Known() || string(data) != "x" {
		t.Fatalf("got type=%s data=%q", typ, data)
	}
	if typ.String() != "unknown(7)" {
		t.Fatalf("unexpected string: %s", typ)
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader(AppendFrame(nil, TypeResponse, nil)), DefaultLimits())
	typ, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if typ != TypeResponse || len(data) != 0 {
		t.Fatalf("got type=%s data=%q", typ, data)
	}
}

func TestReadFrameClosedMidFrame(t *testing.T) {
	testlog.Start(t)
	b := AppendFrame(nil, TypeResponse, []byte("_heartbeat_"))
	r := NewReader(bytes.NewReader(b[:len(b)-3]), DefaultLimits())
	_, _, err := r.ReadFrame()
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestReadFrameClosedBeforeHeader(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader([]byte{0, 0}), DefaultLimits())
	if _, _, err := r.ReadFrame(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestReadFrameTransportErrorIsDistinct(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	r := NewReader(iotest.ErrReader(boom), DefaultLimits())
	_, _, err := r.ReadFrame()
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("transport error must not look like a closed connection")
	}
}

type flakyReader struct {
	failed bool
	r      io.Reader
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, errors.New("i/o timeout")
	}
	return f.r.Read(p)
}

func TestReadFrameRecoversAfterTransientError(t *testing.T) {
	testlog.Start(t)
	r := NewReader(&flakyReader{r: bytes.NewReader(AppendFrame(nil, TypeResponse, []byte("OK")))}, DefaultLimits())
	if _, _, err := r.ReadFrame(); err == nil {
		t.Fatalf("expected first read to fail")
	}
	typ, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if typ != TypeResponse || string(data) != "OK" {
		t.Fatalf("got type=%s data=%q", typ, data)
	}
}

type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }

func TestReadFrameNoProgress(t *testing.T) {
	testlog.Start(t)
	r := NewReader(zeroReader{}, DefaultLimits())
	if _, _, err := r.ReadFrame(); !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("expected io.ErrNoProgress, got %v", err)
	}
}

func TestReadFrameInvalidLength(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader([]byte("\x00\x00\x00\x03\x00\x00\x00\x00")), DefaultLimits())
	if _, _, err := r.ReadFrame(); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	testlog.Start(t)
	b := AppendFrame(nil, TypeMessage, make([]byte, 64))
	r := NewReader(bytes.NewReader(b), Limits{MaxFrameBytes: 32})
	if _, _, err := r.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameLargerThanBuffer(t *testing.T) {
	testlog.Start(t)
	body := bytes.Repeat([]byte("abcdefgh"), 3*minBufferSize)
	var b []byte
	b = AppendFrame(b, TypeMessage, body)
	b = AppendFrame(b, TypeResponse, []byte("OK"))
	r := NewReader(iotest.HalfReader(bytes.NewReader(b)), DefaultLimits())

	typ, data, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("read large frame: %v", err)
	}
	if typ != TypeMessage || !bytes.Equal(data, body) {
		t.Fatalf("large frame mismatch: type=%s len=%d", typ, len(data))
	}
	typ, data, err = r.ReadFrame()
	if err != nil || typ != TypeResponse || string(data) != "OK" {
		t.Fatalf("trailing frame: type=%s data=%q err=%v", typ, data, err)
	}
}

func TestReadFrameBufferStaysBounded(t *testing.T) {
	testlog.Start(t)
	var b []byte
	const n = 20000
	for i := 0; i < n; i++ {
		b = AppendFrame(b, TypeResponse, []byte("_heartbeat_"))
	}
	r := NewReader(bytes.NewReader(b), DefaultLimits())
	for i := 0; i < n; i++ {
		if _, data, err := r.ReadFrame(); err != nil || string(data) != "_heartbeat_" {
			t.Fatalf("frame %d: data=%q err=%v", i, data, err)
		}
	}
	if len(r.buf) != minBufferSize {
		t.Fatalf("buffer grew to %d for small frames", len(r.buf))
	}
}

func TestReadFrameReturnsOwnedPayload(t *testing.T) {
	testlog.Start(t)
	var b []byte
	b = AppendFrame(b, TypeResponse, []byte("first"))
	b = AppendFrame(b, TypeResponse, []byte("other"))
	r := NewReader(bytes.NewReader(b), DefaultLimits())
	_, first, _ := r.ReadFrame()
	_, _, _ = r.ReadFrame()
	if string(first) != "first" {
		t.Fatalf("payload aliased reader buffer: %q", first)
	}
}

func TestAppendFrameLayout(t *testing.T) {
	testlog.Start(t)
	got := AppendFrame(nil, TypeResponse, []byte("OK"))
	if !bytes.Equal(got, []byte("\x00\x00\x00\x06\x00\x00\x00\x00OK")) {
		t.Fatalf("unexpected layout: %x", got)
	}
}
