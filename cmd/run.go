package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [track]",
	Short: "Execute pipeline steps",
	Long: `Execute the pipeline steps given with -p. Recording (r) runs the countdown,
records the microphone pre-roll and then the music track, and stops when the
track ends, after --max-duration, or on Ctrl+C. Download (d) writes the
recordings to the output directory and play (p) opens the newest one.

Without a track, the track selected by the previous run is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rdp)")
		}

		track := ""
		if len(args) == 1 {
			track = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx, track)
		if err != nil {
			return err
		}
		defer svc.Close()

		opts := pipelineOptions(cmd.Flags())
		steps := strings.ToLower(pipeline)
		if strings.ContainsRune(steps, 'r') {
			fmt.Println("Pipeline: recording stops when the track ends - Press Ctrl+C to stop earlier")
		}
		if err := svc.RunPipeline(ctx, steps, opts); err != nil {
			return err
		}
		fmt.Println("Pipeline: completed")
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	runCmd.Flags().Duration("max-duration", 0, "stop recording after this long (default: when the track ends)")
}
