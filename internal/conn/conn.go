package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danmuck/nsqwire/internal/logging"
	"github.com/danmuck/nsqwire/internal/observability"
	"github.com/danmuck/nsqwire/internal/protocol"
	"github.com/danmuck/nsqwire/internal/protocol/command"
	"github.com/danmuck/nsqwire/internal/protocol/frame"
	"github.com/danmuck/nsqwire/internal/protocol/identify"
	"github.com/danmuck/nsqwire/internal/protocol/msgid"
)

var (
	ErrAddressRequired = errors.New("conn: address required")
	ErrUnexpectedFrame = errors.New("conn: unexpected frame")
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Conn is one nsqd connection.
type Conn struct {
	rw     io.ReadWriter
	cfg    Config
	reader *frame.Reader
	addr   string
}

// Dial opens a TCP connection to addr and sends the magic preamble.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	if addr == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logging.Warnf("conn.Dial addr=%q err=%v", addr, err)
		return nil, err
	}
	c, err := New(raw, cfg)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established stream and immediately writes the magic
// preamble, before any other traffic.
func New(rw io.ReadWriter, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	c := &Conn{
		rw:     rw,
		cfg:    cfg,
		reader: frame.NewReader(rw, cfg.Limits),
		addr:   "stream",
	}
	if nc, ok := rw.(net.Conn); ok && nc.RemoteAddr() != nil {
		c.addr = nc.RemoteAddr().String()
	}
	if err := c.send("MAGIC", 0, command.WriteMagic); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr is the remote address, or "stream" for non-network streams.
func (c *Conn) Addr() string {
	return c.addr
}

// Close closes the underlying stream when it is closable.
func (c *Conn) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		logging.Debugf("conn.Conn close addr=%s", c.addr)
		return cl.Close()
	}
	return nil
}

func (c *Conn) SendIdentify(id identify.Identification) error {
	return c.send("IDENTIFY", 0, func(w io.Writer) error {
		return command.WriteIdentify(w, id)
	})
}

// Identify sends IDENTIFY and reads nsqd's reply. With feature negotiation
// the reply is a JSON document; otherwise it is OK and the zero
// ServerFeatures is returned. An error frame is returned as the error.
func (c *Conn) Identify(id identify.Identification) (identify.ServerFeatures, error) {
	if err := c.SendIdentify(id); err != nil {
		return identify.ServerFeatures{}, err
	}
	f, err := c.RecvFrame()
	if err != nil {
		return identify.ServerFeatures{}, err
	}
	switch f := f.(type) {
	case protocol.ErrorFrame:
		return identify.ServerFeatures{}, f
	case protocol.Response:
		switch {
		case f.Kind == protocol.ResponseOK:
			return identify.ServerFeatures{}, nil
		case f.Kind == protocol.ResponseData && id.FeatureNegotiation:
			features, err := identify.ParseServerFeatures(f.Data)
			if err != nil {
				return identify.ServerFeatures{}, err
			}
			logging.Debugf("conn.Conn identify addr=%s version=%q max_rdy_count=%d", c.addr, features.Version, features.MaxRdyCount)
			return features, nil
		}
	}
	return identify.ServerFeatures{}, fmt.Errorf("%w: %s in reply to IDENTIFY", ErrUnexpectedFrame, frameLabel(f))
}

func (c *Conn) SendSub(topic, channel string) error {
	return c.send("SUB", 0, func(w io.Writer) error {
		return command.WriteSub(w, topic, channel)
	})
}

func (c *Conn) SendPub(topic string, body []byte) error {
	return c.send("PUB", len(body), func(w io.Writer) error {
		return command.WritePub(w, topic, body)
	})
}

func (c *Conn) SendRdy(count uint32) error {
	return c.send("RDY", 0, func(w io.Writer) error {
		return command.WriteRdy(w, count)
	})
}

func (c *Conn) SendFin(id msgid.ID) error {
	return c.send("FIN", 0, func(w io.Writer) error {
		return command.WriteFin(w, id)
	})
}

func (c *Conn) SendReq(id msgid.ID, timeout time.Duration) error {
	return c.send("REQ", 0, func(w io.Writer) error {
		return command.WriteReq(w, id, timeout)
	})
}

func (c *Conn) SendTouch(id msgid.ID) error {
	return c.send("TOUCH", 0, func(w io.Writer) error {
		return command.WriteTouch(w, id)
	})
}

func (c *Conn) SendCls() error {
	return c.send("CLS", 0, command.WriteCls)
}

func (c *Conn) SendNop() error {
	return c.send("NOP", 0, command.WriteNop)
}

func (c *Conn) SendAuth(secret []byte) error {
	return c.send("AUTH", len(secret), func(w io.Writer) error {
		return command.WriteAuth(w, secret)
	})
}

// RecvFrame reads and decodes the next frame. Every error except a
// transport timeout leaves the stream unusable; close and reconnect.
func (c *Conn) RecvFrame() (protocol.Frame, error) {
	if c.cfg.ReadTimeout > 0 {
		if d, ok := c.rw.(readDeadliner); ok {
			if err := d.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				return nil, err
			}
		}
	}

	typ, payload, err := c.reader.ReadFrame()
	if err != nil {
		reason := "transport"
		if errors.Is(err, frame.ErrConnectionClosed) {
			reason = "closed"
		} else if errors.Is(err, frame.ErrInvalidLength) || errors.Is(err, frame.ErrFrameTooLarge) {
			reason = "protocol"
		}
		observability.RecordReadError(reason)
		logging.Debugf("conn.Conn recv addr=%s reason=%s err=%v", c.addr, reason, err)
		return nil, err
	}

	f, err := protocol.Decode(typ, payload)
	if err != nil {
		observability.RecordReadError("protocol")
		logging.Warnf("conn.Conn decode addr=%s type=%s len=%d err=%v", c.addr, typ, len(payload), err)
		return nil, err
	}
	observability.RecordFrameReceived(typ.String(), len(payload))
	logging.Tracef("conn.Conn recv addr=%s frame=%s len=%d", c.addr, frameLabel(f), len(payload))
	return f, nil
}

func (c *Conn) send(name string, bodyLen int, write func(io.Writer) error) error {
	if c.cfg.WriteTimeout > 0 {
		if d, ok := c.rw.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return err
			}
		}
	}
	if err := write(c.rw); err != nil {
		logging.Warnf("conn.Conn send addr=%s command=%s err=%v", c.addr, name, err)
		return err
	}
	observability.RecordCommandSent(name, bodyLen)
	logging.Tracef("conn.Conn send addr=%s command=%s", c.addr, name)
	return nil
}

func frameLabel(f protocol.Frame) string {
	switch f := f.(type) {
	case protocol.Response:
		return "response/" + f.Kind.String()
	case protocol.ErrorFrame:
		return "error/" + f.Code
	case protocol.Message:
		return "message/" + f.ID.String()
	}
	return "none"
}
