// Package command encodes client-to-nsqd commands.
//
// Every command is assembled in memory and handed to the writer in a single
// Write call. Nothing here flushes; buffering is the caller's concern.
package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/danmuck/nsqwire/internal/protocol/identify"
	"github.com/danmuck/nsqwire/internal/protocol/msgid"
)

// Magic is the protocol preamble, sent once before any command.
const Magic = "  V2"

const maxNameLen = 64

var (
	ErrBodyTooLarge    = errors.New("command: body exceeds 32-bit length prefix")
	ErrInvalidTopic    = errors.New("command: invalid topic name")
	ErrInvalidChannel  = errors.New("command: invalid channel name")
	ErrMPubUnsupported = errors.New("command: MPUB is not supported")
)

var validName = regexp.MustCompile(`^[.a-zA-Z0-9_-]+(#ephemeral)?$`)

// ValidName reports whether name is acceptable to nsqd as a topic or channel.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > maxNameLen {
		return false
	}
	return validName.MatchString(name)
}

func WriteMagic(w io.Writer) error {
	_, err := io.WriteString(w, Magic)
	return err
}

// WriteIdentify writes "IDENTIFY\n" followed by the length-prefixed JSON
// descriptor. It must follow WriteMagic before any other command.
func WriteIdentify(w io.Writer, id identify.Identification) error {
	body, err := id.Marshal()
	if err != nil {
		return err
	}
	return writeWithBody(w, []byte("IDENTIFY\n"), body)
}

func WriteSub(w io.Writer, topic, channel string) error {
	if !ValidName(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if !ValidName(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	buf := make([]byte, 0, len("SUB  \n")+len(topic)+len(channel))
	buf = append(buf, "SUB "...)
	buf = append(buf, topic...)
	buf = append(buf, ' ')
	buf = append(buf, channel...)
	buf = append(buf, '\n')
	return write(w, buf)
}

func WritePub(w io.Writer, topic string, body []byte) error {
	if !ValidName(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	line := make([]byte, 0, len("PUB \n")+len(topic))
	line = append(line, "PUB "...)
	line = append(line, topic...)
	line = append(line, '\n')
	return writeWithBody(w, line, body)
}

// WriteMPub is not implemented. The MPUB wire shape is
//
//	"MPUB <topic>\n" + u32 BE body size + u32 BE message count +
//	per message: u32 BE message size + message bytes
//
// where body size covers everything after itself.
func WriteMPub(w io.Writer, topic string, messages [][]byte) error {
	return ErrMPubUnsupported
}

// WriteRdy declares readiness for count more messages.
func WriteRdy(w io.Writer, count uint32) error {
	buf := append([]byte("RDY "), strconv.FormatUint(uint64(count), 10)...)
	return write(w, append(buf, '\n'))
}

func WriteFin(w io.Writer, id msgid.ID) error {
	buf := make([]byte, 0, len("FIN \n")+msgid.HexLen)
	buf = append(buf, "FIN "...)
	buf = id.AppendHex(buf)
	return write(w, append(buf, '\n'))
}

// WriteReq requeues id after timeout, sent as whole milliseconds.
func WriteReq(w io.Writer, id msgid.ID, timeout time.Duration) error {
	ms := timeout.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	buf := make([]byte, 0, 32)
	buf = append(buf, "REQ "...)
	buf = id.AppendHex(buf)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, ms, 10)
	return write(w, append(buf, '\n'))
}

func WriteTouch(w io.Writer, id msgid.ID) error {
	buf := make([]byte, 0, len("TOUCH \n")+msgid.HexLen)
	buf = append(buf, "TOUCH "...)
	buf = id.AppendHex(buf)
	return write(w, append(buf, '\n'))
}

func WriteCls(w io.Writer) error {
	return write(w, []byte("CLS\n"))
}

func WriteNop(w io.Writer) error {
	return write(w, []byte("NOP\n"))
}

func WriteAuth(w io.Writer, secret []byte) error {
	return writeWithBody(w, []byte("AUTH\n"), secret)
}

func checkBodyLen(n uint64) error {
	if n > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, n)
	}
	return nil
}

func writeWithBody(w io.Writer, line, body []byte) error {
	if err := checkBodyLen(uint64(len(body))); err != nil {
		return err
	}
	buf := make([]byte, 0, len(line)+4+len(body))
	buf = append(buf, line...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	return write(w, buf)
}

func write(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}
