package main

import (
	"fmt"
	"io"

	"github.com/danmuck/nsqwire/internal/conn"
	"github.com/danmuck/nsqwire/internal/logging"
	"github.com/spf13/cobra"
)

func pubCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "pub <topic> [body]",
		Short: "Publish one message; the body is read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadTailConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			var body []byte
			if len(args) == 2 {
				body = []byte(args[1])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			c, err := conn.Dial(cmd.Context(), cfg.Addr, cfg.Conn)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := handshake(c, cfg); err != nil {
				return err
			}
			if err := c.SendPub(args[0], body); err != nil {
				return err
			}
			if err := expectOK(c, "PUB"); err != nil {
				return err
			}
			logging.Infof("nsqtail published addr=%s topic=%q bytes=%d", c.Addr(), args[0], len(body))
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "nsqd TCP address")
	return cmd
}
