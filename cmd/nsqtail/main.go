package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/nsqwire/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	logging.ConfigureRuntime()

	var configPath string
	rootCmd := &cobra.Command{
		Use:           "nsqtail",
		Short:         "Consume from or publish to a single nsqd over the TCP protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	rootCmd.AddCommand(
		tailCmd(&configPath),
		pubCmd(&configPath),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nsqtail: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nsqtail version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nsqtail", version)
		},
	}
}
