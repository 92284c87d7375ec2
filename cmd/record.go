package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [track]",
	Short: "Record one clip over a music track",
	Long: `Record the camera and microphone. After the countdown the microphone is
recorded for the pre-roll, then the recorded sound switches to the music
track. Press Enter to toggle between microphone and music, Ctrl+C to stop.
The clip is written to the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRecordingFlags(cmd); err != nil {
			return err
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

		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		fmt.Printf("Recording starts in %s - Press Enter to toggle mic/music, Ctrl+C to stop\n", cfg.Recording.Countdown())

		go toggleOnEnter(svc)

		opts := pipelineOptions(cmd.Flags())
		waitCtx := ctx
		if opts.MaxDuration > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, cfg.Recording.Countdown()+opts.MaxDuration)
			defer cancel()
		}

		if err := svc.Wait(waitCtx); err != nil {
			slog.Info("Stopping recording...")
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := svc.Stop(stopCtx); err != nil && !errors.Is(err, service.ErrNotRecording) {
				return fmt.Errorf("failed to stop recording: %w", err)
			}
		}

		latest, err := svc.Gallery().Latest()
		if err != nil {
			if msg := svc.GetLastError(); msg != "" {
				return errors.New(msg)
			}
			fmt.Println("Nothing was recorded")
			return nil
		}

		path, err := svc.Gallery().Download(latest.ID, opts.OutputDirectory)
		if err != nil {
			return fmt.Errorf("failed to save recording: %w", err)
		}
		fmt.Printf("Saved %s (%s, %s)\n", path, latest.Duration.Round(time.Millisecond), latest.Artifact.HumanSize())

		// The clip is already on disk, so a following download step has nothing new
		if pipeline != "" {
			return executePipeline(context.Background(), svc, 'r', opts)
		}
		return nil
	},
}

// toggleOnEnter flips the recorded source each time Enter is pressed.
func toggleOnEnter(svc service.Service) {
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		if buf[0] != '\n' {
			continue
		}
		state, err := svc.ToggleSource()
		if err != nil {
			fmt.Printf("Cannot toggle now: %v\n", err)
			continue
		}
		fmt.Printf("Recording %s\n", state.Source())
	}
}

// applyRecordingFlags overrides the timing settings of the loaded profile.
func applyRecordingFlags(cmd *cobra.Command) error {
	for _, name := range []string{"countdown", "preroll"} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, _ := cmd.Flags().GetFloat64(name)
		if v < 0 {
			return fmt.Errorf("--%s cannot be negative", name)
		}
		if name == "countdown" {
			cfg.Recording.CountdownSeconds = &v
		} else {
			cfg.Recording.PrerollSeconds = &v
		}
	}
	return nil
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	recordCmd.Flags().Duration("max-duration", 0, "stop recording after this long (default: when the track ends)")
	recordCmd.Flags().Float64("countdown", 0, "countdown seconds before capture (overrides config)")
	recordCmd.Flags().Float64("preroll", 0, "microphone pre-roll seconds before the music (overrides config)")
}
