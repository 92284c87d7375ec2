package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/clipcapture/internal/device"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"sources"},
	Short:   "List available cameras and microphones",
	Long: `List the camera nodes and ALSA capture devices that can be used for recording.
When a config file is loaded, the configured devices are checked as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		discovery := device.NewDiscovery()
		devices, err := discovery.ListDevices(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		fmt.Printf("Capture devices (%s)\n", runtime.GOOS)
		fmt.Printf("=======================================\n\n")

		for _, kind := range []device.Kind{device.KindVideo, device.KindAudio} {
			var found []device.Info
			for _, d := range devices {
				if d.Kind == kind {
					found = append(found, d)
				}
			}
			fmt.Printf("%s devices (%d found):\n", kind, len(found))
			for i, d := range found {
				fmt.Printf("  %d. %s  %s\n", i+1, d.Path, d.Name)
			}
			fmt.Println()
		}

		fmt.Printf("Available backends: %v\n", device.GetAvailableBackends())

		if cfg == nil {
			return nil
		}

		fmt.Printf("\nConfigured devices:\n")
		for facing, video := range cfg.Cameras() {
			path, err := discovery.Resolve(cmd.Context(), device.KindVideo, video)
			status := "ok"
			if err != nil {
				status = err.Error()
			}
			fmt.Printf("  %-12s %s -> %s [%s]\n", facing, video, path, status)
		}
		fmt.Printf("  %-12s %s\n", "microphone", cfg.Microphone())
		return nil
	},
}
