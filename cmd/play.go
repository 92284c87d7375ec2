package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/play"

	"github.com/spf13/cobra"
)

var recordingExtensions = map[string]bool{".webm": true, ".mkv": true, ".mp4": true, ".mov": true}

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Play a downloaded recording",
	Long: `Play a recording with an external player (mpv, VLC or ffplay, whichever is
installed first). Without a file, the newest recording in the output directory
is played.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := ""
		if len(args) == 1 {
			file = args[0]
		} else {
			latest, err := latestRecording(cfg.Output.Directory)
			if err != nil {
				return err
			}
			file = latest
		}

		player, _ := cmd.Flags().GetString("player")
		fmt.Printf("Playing: %s\n", file)
		if err := play.New(player).Play(context.Background(), file); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}

// latestRecording returns the most recently modified recording in dir.
func latestRecording(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read output directory: %w", err)
	}

	var latest string
	var latestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !recordingExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(dir, entry.Name())
			latestTime = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no recordings found in %s", dir)
	}
	return latest, nil
}

func init() {
	playCmd.Flags().String("player", "", "player binary (default: first of mpv, vlc, ffplay)")
}
