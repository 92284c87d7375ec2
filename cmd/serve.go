package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/clipcapture/internal/config"
	"github.com/audiolibrelab/clipcapture/internal/server"
	"github.com/audiolibrelab/clipcapture/internal/service"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the ClipCapture web server to record from a browser.
This allows you to preview the camera, pick the music track, record, listen to
the music and download clips from your smartphone or any device on the same
network.

The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg, cfgFile)
		defer svc.Close()
		if err := svc.RestoreSelection(ctx); err != nil {
			slog.Warn("Could not restore the previous music track", "error", err)
		}

		srv := server.New(svc, server.Config{
			Host:            host,
			Port:            port,
			Version:         version,
			TracksDirectory: cfg.Output.TracksDirectory,
			TrackExtensions: config.GetSupportedTrackExtensions(cfgFile),
			OutputDirectory: cfg.Output.Directory,
		}, slog.Default())

		slog.Info("ClipCapture web server starting", "port", port, "config", cfgFile)

		if err := srv.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "port for the web server")
	serveCmd.Flags().String("host", "", "address to bind (default: all interfaces)")
}
