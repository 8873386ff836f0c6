package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	ui "github.com/imputnet/helium-updater/internal/ui"
)

func init() {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic updater with a live status view",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()

			// The policy file is re-read at every session boundary, so
			// edits apply without restarting the watcher.
			coord, err := newCoordinator(d, cfgProvider())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go coord.Run(ctx)

			model := newWatchModel(d, coord)
			prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = prog.Run()
			ui.ResetTerminalAfterTUI()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watch view failed: %w", err)
			}
			return nil
		},
	}
	rootCmd.AddCommand(watchCmd)
}
