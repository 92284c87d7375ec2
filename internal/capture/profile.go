package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"
)

var ErrUnsupportedProfile = errors.New("encoding profile not supported by this runtime")

// Profile is a container plus codec choice and the MIME type it produces.
type Profile struct {
	Name       string `json:"name"`
	Container  string `json:"container"`   // ffmpeg muxer
	VideoCodec string `json:"video_codec"` // empty: muxer default
	AudioCodec string `json:"audio_codec"` // empty: muxer default
	MimeType   string `json:"mime_type"`
	Ext        string `json:"ext"`
}

var (
	// PreferredProfile is tried first.
	PreferredProfile = Profile{
		Name:       "webm-vp9-opus",
		Container:  "webm",
		VideoCodec: "libvpx-vp9",
		AudioCodec: "libopus",
		MimeType:   "video/webm;codecs=vp9,opus",
		Ext:        "webm",
	}

	// DefaultProfile leaves codec choice to the runtime.
	DefaultProfile = Profile{
		Name:      "default",
		Container: "matroska",
		MimeType:  "video/x-matroska",
		Ext:       "mkv",
	}
)

// CapabilityProber reports what the encoding runtime supports.
type CapabilityProber interface {
	Detect(ctx context.Context) (*ffmpeg.Capabilities, error)
}

// Negotiate checks that every part of p is available.
func Negotiate(ctx context.Context, prober CapabilityProber, p Profile) error {
	caps, err := prober.Detect(ctx)
	if err != nil {
		return err
	}
	if !caps.HasMuxer(p.Container) {
		return fmt.Errorf("%w: %s: container %s", ErrUnsupportedProfile, p.Name, p.Container)
	}
	if p.VideoCodec != "" && !caps.HasEncoder(p.VideoCodec) {
		return fmt.Errorf("%w: %s: video codec %s", ErrUnsupportedProfile, p.Name, p.VideoCodec)
	}
	if p.AudioCodec != "" && !caps.HasEncoder(p.AudioCodec) {
		return fmt.Errorf("%w: %s: audio codec %s", ErrUnsupportedProfile, p.Name, p.AudioCodec)
	}
	return nil
}

// containerTypes maps ffmpeg muxers to the MIME type and extension of their
// output.
var containerTypes = map[string]struct{ mime, ext string }{
	"webm":     {"video/webm", "webm"},
	"matroska": {"video/x-matroska", "mkv"},
	"mkv":      {"video/x-matroska", "mkv"},
	"mp4":      {"video/mp4", "mp4"},
	"mov":      {"video/quicktime", "mov"},
}

// ProfileFor builds a profile for a configured container and codec pair.
// It reports false for containers that cannot be streamed to a pipe.
func ProfileFor(container, videoCodec, audioCodec string) (Profile, bool) {
	t, ok := containerTypes[container]
	if !ok {
		return Profile{}, false
	}
	if container == "mkv" {
		container = "matroska"
	}
	mime := t.mime
	if videoCodec != "" && audioCodec != "" {
		mime = fmt.Sprintf("%s;codecs=%s,%s", t.mime, codecTag(videoCodec), codecTag(audioCodec))
	}
	return Profile{
		Name:       "configured-" + t.ext,
		Container:  container,
		VideoCodec: videoCodec,
		AudioCodec: audioCodec,
		MimeType:   mime,
		Ext:        t.ext,
	}, true
}

// codecTag turns an ffmpeg encoder name into its codec name, e.g.
// libvpx-vp9 into vp9.
func codecTag(encoder string) string {
	switch encoder {
	case "libvpx-vp9":
		return "vp9"
	case "libvpx":
		return "vp8"
	case "libx264":
		return "avc1"
	case "libopus":
		return "opus"
	case "libvorbis":
		return "vorbis"
	}
	return encoder
}
