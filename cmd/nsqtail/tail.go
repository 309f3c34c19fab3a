package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/danmuck/nsqwire/internal/conn"
	"github.com/danmuck/nsqwire/internal/logging"
	"github.com/danmuck/nsqwire/internal/observability"
	"github.com/danmuck/nsqwire/internal/protocol"
	"github.com/danmuck/nsqwire/internal/protocol/frame"
	"github.com/danmuck/nsqwire/internal/protocol/identify"
	"github.com/spf13/cobra"
)

func tailCmd(configPath *string) *cobra.Command {
	var (
		addr, topic, channel, metricsAddr string
		maxMessages                       int
		rdy                               uint32
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Subscribe to a topic and print message bodies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadTailConfig(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("topic") {
				cfg.Topic = topic
			}
			if flags.Changed("channel") {
				cfg.Channel = channel
			}
			if flags.Changed("max-messages") {
				cfg.MaxMessages = maxMessages
			}
			if flags.Changed("rdy") {
				cfg.RDY = rdy
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.validateTail(); err != nil {
				return err
			}
			return runTail(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "nsqd TCP address")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic to subscribe to")
	cmd.Flags().StringVar(&channel, "channel", "", "channel to subscribe on")
	cmd.Flags().IntVarP(&maxMessages, "max-messages", "n", 0, "close after this many messages (0 = forever)")
	cmd.Flags().Uint32Var(&rdy, "rdy", 1, "RDY count to declare after subscribing")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address while tailing")
	return cmd
}

func runTail(ctx context.Context, cfg tailConfig, out io.Writer) error {
	if cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := observability.Serve(metricsCtx, ln, cfg.MetricsCORS); err != nil {
				logging.Warnf("nsqtail metrics addr=%s err=%v", cfg.MetricsAddr, err)
			}
		}()
	}

	c, err := conn.Dial(ctx, cfg.Addr, cfg.Conn)
	if err != nil {
		return err
	}
	defer c.Close()

	// Unblock a pending read when the command is interrupted.
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := handshake(c, cfg); err != nil {
		return err
	}
	if err := c.SendSub(cfg.Topic, cfg.Channel); err != nil {
		return err
	}
	if err := expectOK(c, "SUB"); err != nil {
		return err
	}
	if err := c.SendRdy(cfg.RDY); err != nil {
		return err
	}
	logging.Infof("nsqtail subscribed addr=%s topic=%q channel=%q rdy=%d", c.Addr(), cfg.Topic, cfg.Channel, cfg.RDY)

	err = consume(c, cfg.MaxMessages, out)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func handshake(c *conn.Conn, cfg tailConfig) error {
	id := identify.New().WithUserAgent(cfg.UserAgent)
	if cfg.ClientID != "" {
		id = id.WithClientID(cfg.ClientID)
	}
	if cfg.Hostname != "" {
		id = id.WithHostname(cfg.Hostname)
	}
	if cfg.HeartbeatInterval != 0 {
		id = id.WithHeartbeatInterval(cfg.HeartbeatInterval)
	}
	features, err := c.Identify(id)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	logging.Debugf("nsqtail identified addr=%s version=%q auth_required=%t", c.Addr(), features.Version, features.AuthRequired)

	if features.AuthRequired || cfg.AuthSecret != "" {
		if cfg.AuthSecret == "" {
			return fmt.Errorf("nsqd requires auth but no auth_secret is configured")
		}
		if err := c.SendAuth([]byte(cfg.AuthSecret)); err != nil {
			return err
		}
		f, err := c.RecvFrame()
		if err != nil {
			return err
		}
		if ef, ok := f.(protocol.ErrorFrame); ok {
			return fmt.Errorf("auth: %w", ef)
		}
	}
	return nil
}

// consume prints message bodies and acknowledges them until nsqd answers
// CLS with CLOSE_WAIT. Heartbeats are answered with NOP.
func consume(c *conn.Conn, maxMessages int, out io.Writer) error {
	var received int
	for {
		f, err := c.RecvFrame()
		if err != nil {
			if errors.Is(err, frame.ErrConnectionClosed) {
				logging.Infof("nsqtail connection closed addr=%s received=%d", c.Addr(), received)
				return nil
			}
			return err
		}
		switch f := f.(type) {
		case protocol.Response:
			switch f.Kind {
			case protocol.ResponseHeartbeat:
				if err := c.SendNop(); err != nil {
					return err
				}
			case protocol.ResponseCloseWait:
				logging.Infof("nsqtail close_wait addr=%s received=%d", c.Addr(), received)
				return nil
			default:
				logging.Debugf("nsqtail response addr=%s %s", c.Addr(), f)
			}
		case protocol.ErrorFrame:
			return f
		case protocol.Message:
			received++
			if _, err := fmt.Fprintf(out, "%s\n", f.Body); err != nil {
				return err
			}
			if err := c.SendFin(f.ID); err != nil {
				return err
			}
			if maxMessages > 0 && received == maxMessages {
				if err := c.SendCls(); err != nil {
					return err
				}
			}
		}
	}
}

func expectOK(c *conn.Conn, command string) error {
	f, err := c.RecvFrame()
	if err != nil {
		return err
	}
	switch f := f.(type) {
	case protocol.ErrorFrame:
		return fmt.Errorf("%s: %w", command, f)
	case protocol.Response:
		if f.Kind == protocol.ResponseOK {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", command, conn.ErrUnexpectedFrame)
}
