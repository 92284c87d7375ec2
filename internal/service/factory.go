package service

import (
	"log/slog"

	"github.com/audiolibrelab/clipcapture/internal/audio"
	"github.com/audiolibrelab/clipcapture/internal/capture"
	"github.com/audiolibrelab/clipcapture/internal/clock"
	"github.com/audiolibrelab/clipcapture/internal/config"
	"github.com/audiolibrelab/clipcapture/internal/device"
	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"
	"github.com/audiolibrelab/clipcapture/internal/gallery"
	"github.com/audiolibrelab/clipcapture/internal/mix"
	"github.com/audiolibrelab/clipcapture/internal/monitor"
	"github.com/audiolibrelab/clipcapture/internal/play"
)

// New creates a controller backed by ffmpeg devices and encoders, as
// described by cfg.
func New(cfg *config.Config, configFile string) *Controller {
	cameras := make(map[device.Facing]string)
	for facing, video := range cfg.Cameras() {
		cameras[device.Facing(facing)] = video
	}

	backend := device.NewBackend(device.Options{
		Backend:    cfg.Capture.Backend,
		Cameras:    cameras,
		Microphone: cfg.Microphone(),
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
		FrameRate:  cfg.Capture.FrameRate,
	})

	deps := Deps{
		Devices:  device.NewManager(backend, device.Facing(cfg.Capture.Facing)),
		Engine:   mix.NewEngine(),
		Gallery:  gallery.New(cfg.Recording.GallerySize, cfg.Recording.DownloadDelay()),
		Monitor:  monitor.NewBroadcaster(),
		Encoders: capture.FFmpegFactory(ffmpeg.NewDetector(), cfg.Recording.VideoBitrate),
		Clock:    clock.Real{},
		Decoder:  audio.DecodeFile,
		Player:   play.New(""),
	}

	opts := Options{
		AppName:         "clipcapture",
		Countdown:       cfg.Recording.Countdown(),
		PreRoll:         cfg.Recording.PreRoll(),
		Crossfade:       cfg.Recording.Crossfade(),
		FilenamePattern: cfg.Recording.FilenamePattern,
		Width:           cfg.Capture.Width,
		Height:          cfg.Capture.Height,
		FrameRate:       cfg.Capture.FrameRate,
		Profiles:        profiles(cfg.Recording),
		TracksDirectory: cfg.Output.TracksDirectory,
		TrackExtensions: config.GetSupportedTrackExtensions(configFile),
	}

	slog.Debug("Controller configured",
		"backend", backend.Name(),
		"countdown", opts.Countdown,
		"pre_roll", opts.PreRoll,
		"profiles", len(opts.Profiles))

	return NewController(deps, opts)
}

// profiles returns the configured profile followed by the runtime default.
func profiles(rec config.RecordingConfig) []capture.Profile {
	if rec.Container == "" {
		return nil
	}
	p, ok := capture.ProfileFor(rec.Container, rec.VideoCodec, rec.AudioCodec)
	if !ok {
		slog.Warn("Unsupported container, using the default profiles", "container", rec.Container)
		return nil
	}
	if p.Container == capture.DefaultProfile.Container && p.VideoCodec == "" && p.AudioCodec == "" {
		return []capture.Profile{capture.DefaultProfile}
	}
	return []capture.Profile{p, capture.DefaultProfile}
}
