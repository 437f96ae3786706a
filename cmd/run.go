package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/miditake/internal/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive looper session",
	Long: `Start the looper: play something on the MIDI input to begin a take,
press space to replay it, e to export it as a .mid file. New input while
replaying cancels the replay and starts a fresh take.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("Starting looper session",
			"input", orAny(cfg.MIDI.InputPort),
			"output", orAny(cfg.MIDI.OutputPort),
			"export_dir", cfg.Output.Directory)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		svc := service.New(cfg)
		svc.Start(ctx)

		if err := svc.RunUI(); err != nil {
			return fmt.Errorf("looper session failed: %w", err)
		}
		return nil
	},
}

func orAny(port string) string {
	if port == "" {
		return "(first available)"
	}
	return port
}
