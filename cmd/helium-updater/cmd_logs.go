package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"github.com/imputnet/helium-updater/internal/debug"
	"github.com/imputnet/helium-updater/internal/exitcodes"
)

func init() {
	var flagFollow bool
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Tail the updater debug log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadCfg()
			lp := debug.LogPath(cfg.HomeDir)
			if _, err := os.Stat(lp); err != nil {
				if flagOutput == "json" {
					getPrinter().JSON(map[string]any{"ok": false, "error": "log file not found", "path": lp})
				} else {
					getPrinter().Error(fmt.Sprintf("log file not found: %s", lp))
					getPrinter().Info("Run a command with --debug (or HELIUM_UPDATER_DEBUG=1) to produce one")
				}
				return silentErr{exitcodes.PreconditionError("log file not found")}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				<-sigs
				cancel()
			}()

			return streamLog(ctx, lp, flagFollow, os.Stdout)
		},
	}
	logsCmd.Flags().BoolVarP(&flagFollow, "follow", "f", false, "Keep following the log (handles rotation)")
	rootCmd.AddCommand(logsCmd)
}

// streamLog prints the log file, optionally following it across
// rotations.
func streamLog(ctx context.Context, path string, follow bool, out io.Writer) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok || line == nil {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}
