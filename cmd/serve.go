package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/miditake/internal/server"
	"github.com/audiolibrelab/miditake/internal/service"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the looper headless with an HTTP control API",
	Long: `Run the looper without the terminal UI and expose play/stop/export and
status over HTTP, so the session can be controlled from another device on
the network. Capture still starts from the MIDI input as usual.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg)
		svc.Start(ctx)

		if err := server.New(svc, port).Start(ctx); err != nil {
			return fmt.Errorf("serve failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the HTTP control API")
}
