package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/audiolibrelab/clipcapture/internal/config"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X .../cmd.version=v1.2.3".
var version = "dev"

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "clipcapture [track]",
	Short: "Record camera clips over a music track",
	Long: `ClipCapture records the camera and the microphone, starting with a short
microphone pre-roll and then switching the recorded sound to a music track.
While recording you can toggle between the microphone and the music.

Recordings stay in memory until they are downloaded, either from the web
interface (clipcapture serve) or with the d pipeline step.

When a track is provided, it acts as 'clipcapture run [track]'.`,
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel, "text")

		// Device listing works without a config file
		if cmd.Name() == "devices" && cfgFile == "" {
			return nil
		}

		if err := loadConfig(); err != nil {
			return err
		}
		if cfg.Logging.Format != "text" {
			setupLogging(verboseLevel, cfg.Logging.Format)
		}

		return validatePipeline()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 || pipeline != "" {
			return runCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/clipcapture.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, d=download, p=play (e.g., 'rdp', 'rd', 'p')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=max tracing")

	rootCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	rootCmd.Flags().Duration("max-duration", 0, "stop recording after this long (default: when the track ends)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/clipcapture.yaml")
}

// loadConfig reads the selected profile. Without --config, a missing default
// file means built-in defaults.
func loadConfig() error {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = defaultConfigPath()
	}

	if _, err := os.Stat(cfgFile); !explicit && errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No config file, using defaults", "path", cfgFile)
		cfg = config.Default()
		return nil
	}

	var err error
	cfg, err = config.LoadWithProfile(cfgFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, format string) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		// ffmpeg output is logged at debug level
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	// Set environment variables for maximum tracing (level 3)
	if level >= 3 {
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}
