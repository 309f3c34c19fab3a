package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/danmuck/nsqwire/internal/protocol/frame"
	"github.com/danmuck/nsqwire/internal/protocol/msgid"
)

// Frame is one of Response, ErrorFrame or Message.
type Frame interface {
	Type() frame.Type
	isFrame()
}

type ResponseKind uint8

const (
	ResponseData ResponseKind = iota
	ResponseHeartbeat
	ResponseOK
	ResponseCloseWait
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseHeartbeat:
		return "heartbeat"
	case ResponseOK:
		return "ok"
	case ResponseCloseWait:
		return "close_wait"
	}
	return "data"
}

var responseBodies = []struct {
	body []byte
	kind ResponseKind
}{
	{[]byte("_heartbeat_"), ResponseHeartbeat},
	{[]byte("OK"), ResponseOK},
	{[]byte("CLOSE_WAIT"), ResponseCloseWait},
}

// Response is a response frame. Data is set only for ResponseData.
type Response struct {
	Kind ResponseKind
	Data Payload
}

func (Response) Type() frame.Type { return frame.TypeResponse }
func (Response) isFrame()         {}

func (r Response) String() string {
	if r.Kind == ResponseData {
		return fmt.Sprintf("response(%s)", r.Data)
	}
	return "response(" + r.Kind.String() + ")"
}

// ParseResponse matches the fixed response bodies; anything else is data.
func ParseResponse(payload []byte) Response {
	for _, rb := range responseBodies {
		if bytes.Equal(payload, rb.body) {
			return Response{Kind: rb.kind}
		}
	}
	return Response{Kind: ResponseData, Data: Payload(payload)}
}

type ErrorKind uint8

const (
	ErrorUnknown ErrorKind = iota
	ErrorInvalid
	ErrorBadBody
	ErrorBadTopic
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorInvalid:
		return "invalid"
	case ErrorBadBody:
		return "bad_body"
	case ErrorBadTopic:
		return "bad_topic"
	}
	return "unknown"
}

// Error codes with a dedicated ErrorKind. Every other code decodes as
// ErrorUnknown with Code still populated.
const (
	CodeInvalid  = "E_INVALID"
	CodeBadBody  = "E_BAD_BODY"
	CodeBadTopic = "E_BAD_TOPIC"
)

var errorKinds = map[string]ErrorKind{
	CodeInvalid:  ErrorInvalid,
	CodeBadBody:  ErrorBadBody,
	CodeBadTopic: ErrorBadTopic,
}

// ErrorFrame is an error frame sent by nsqd. It also satisfies error so it
// can be returned from request/reply helpers.
type ErrorFrame struct {
	Kind ErrorKind
	// Code is the leading token of the payload, e.g. "E_BAD_CHANNEL".
	Code string
	// Detail is the text after "<code> ", valid when HasDetail is set.
	Detail    Payload
	HasDetail bool
	Raw       Payload
}

func (ErrorFrame) Type() frame.Type { return frame.TypeError }
func (ErrorFrame) isFrame()         {}

func (e ErrorFrame) Error() string {
	return "nsqd: " + e.Raw.String()
}

// ParseError splits "<code>[ <detail>]" and maps known codes to a kind.
func ParseError(payload []byte) ErrorFrame {
	ef := ErrorFrame{Raw: Payload(payload)}
	code, detail, found := bytes.Cut(payload, []byte(" "))
	ef.Code = string(code)
	if found {
		ef.Detail = Payload(detail)
		ef.HasDetail = true
	}
	ef.Kind = errorKinds[ef.Code]
	return ef
}

// MessageHeaderLen is timestamp(8) + attempts(2) + hex id(16).
const MessageHeaderLen = 8 + 2 + msgid.HexLen

// Message is a delivered message frame.
type Message struct {
	Timestamp int64
	Attempts  uint16
	ID        msgid.ID
	Body      Payload
}

func (Message) Type() frame.Type { return frame.TypeMessage }
func (Message) isFrame()         {}

// Time reads Timestamp as nanoseconds since the Unix epoch, the unit nsqd
// stamps messages with.
func (m Message) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

func ParseMessage(payload []byte) (Message, error) {
	if len(payload) < MessageHeaderLen {
		return Message{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidMessageFrame, len(payload), MessageHeaderLen)
	}
	id, err := msgid.FromHex(payload[10:MessageHeaderLen])
	if err != nil {
		return Message{}, err
	}
	return Message{
		Timestamp: int64(binary.BigEndian.Uint64(payload[0:8])),
		Attempts:  binary.BigEndian.Uint16(payload[8:10]),
		ID:        id,
		Body:      Payload(payload[MessageHeaderLen:]),
	}, nil
}
