package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/lzjever/mbos-dash/internal/logrelay"
)

var logSource string

var logsCmd = &cobra.Command{
	Use:   "logs <workspace-or-instance-id>",
	Short: "Stream workspace logs to stdout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		src, err := logrelay.ParseSource(logSource)
		if err != nil {
			fail(err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		rm, err := dialRemote(ctx)
		if err != nil {
			fail(err)
		}
		defer rm.relay.Close()

		st, err := rm.relay.Subscribe(ctx, src, args[0])
		if err != nil {
			fail(err)
		}
		defer st.Close()

		if err := st.CopyTo(ctx, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			fail(err)
		}
	},
}

func init() {
	logsCmd.Flags().StringVar(&logSource, "source", string(logrelay.SourceHeadless), "Log source (headless, image-build)")
	rootCmd.AddCommand(logsCmd)
}
