package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/capture"
	"github.com/audiolibrelab/clipcapture/internal/config"
	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and encoding support",
	Long:  `Display the resolved configuration with inheritance indicators, the ffmpeg binary in use and which recording profiles it can produce. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance
		if inh == nil {
			inh = &config.InheritanceInfo{}
		}
		rec := cfg.Recording

		fmt.Printf("=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("backend: %s %s\n", cfg.Capture.Backend, getInheritanceIndicator(inh.Capture.Backend))
		fmt.Printf("resolution: %dx%d %s\n", cfg.Capture.Width, cfg.Capture.Height, getInheritanceIndicator(inh.Capture.Resolution))
		fmt.Printf("framerate: %d %s\n", cfg.Capture.FrameRate, getInheritanceIndicator(inh.Capture.FrameRate))
		fmt.Printf("facing: %s %s\n", cfg.Capture.Facing, getInheritanceIndicator(inh.Capture.Facing))

		fmt.Printf("\n[Devices]\n")
		for i, d := range cfg.Devices {
			status := inh.Devices[d.Name]
			fmt.Printf("%d. name: %s (%s)\n", i, d.Name, d.Facing)
			fmt.Printf("   video: %s %s\n", d.Video, getInheritanceIndicator(status.Video))
			fmt.Printf("   audio: %s %s\n", d.Audio, getInheritanceIndicator(status.Audio))
		}

		fmt.Printf("\n[Recording]\n")
		fmt.Printf("countdown: %s %s\n", rec.Countdown(), getInheritanceIndicator(inh.Recording.Countdown))
		fmt.Printf("preroll: %s %s\n", rec.PreRoll(), getInheritanceIndicator(inh.Recording.PreRoll))
		fmt.Printf("crossfade: %s %s\n", rec.Crossfade(), getInheritanceIndicator(inh.Recording.Crossfade))
		fmt.Printf("container: %s video=%s audio=%s %s\n", rec.Container, rec.VideoCodec, rec.AudioCodec,
			getInheritanceIndicator(inh.Recording.Profile))
		fmt.Printf("gallery_size: %d %s\n", rec.GallerySize, getInheritanceIndicator(inh.Recording.Gallery))
		fmt.Printf("filename_pattern: %s\n", rec.FilenamePattern)

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
		fmt.Printf("tracks_directory: %s\n", cfg.Output.TracksDirectory)

		return printEncodingSupport(cmd.Context())
	},
}

// printEncodingSupport reports which recording profiles ffmpeg can encode.
func printEncodingSupport(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fmt.Printf("\n=== ENCODING ===\n")
	detector := ffmpeg.NewDetector()
	caps, err := detector.Detect(ctx)
	if err != nil {
		fmt.Printf("ffmpeg: unavailable (%v)\n", err)
		return nil
	}
	fmt.Printf("ffmpeg: %s\n", caps.Path)

	candidates := []capture.Profile{capture.PreferredProfile, capture.DefaultProfile}
	if p, ok := capture.ProfileFor(cfg.Recording.Container, cfg.Recording.VideoCodec, cfg.Recording.AudioCodec); ok {
		candidates = append([]capture.Profile{p}, candidates...)
	}
	for _, p := range candidates {
		status := "supported"
		if err := capture.Negotiate(ctx, detector, p); err != nil {
			status = err.Error()
		}
		fmt.Printf("%-16s %-32s %s\n", p.Name, p.MimeType, status)
	}
	return nil
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[default]"
	}
}
