package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"
)

// ErrEmptyTrack is returned when a file decodes to less than one frame.
var ErrEmptyTrack = errors.New("track contains no audio")

// Track is a decoded music file ready to be played by one or more handles.
type Track struct {
	Name    string
	Path    string
	Samples []int16 // interleaved stereo, 48 kHz
}

// Duration returns the playable length of the track.
func (t *Track) Duration() time.Duration {
	if t == nil {
		return 0
	}
	return time.Duration(len(t.Samples)/FrameSamples) * FrameDuration
}

// Frames returns the number of whole 20ms frames in the track.
func (t *Track) Frames() int {
	return len(t.Samples) / FrameSamples
}

// Decoder turns a file into PCM samples.
type Decoder func(ctx context.Context, path string) ([]int16, error)

// DecodeFile runs ffmpeg to decode an audio file to interleaved stereo
// s16le PCM at 48 kHz. Any container ffmpeg understands is accepted.
func DecodeFile(ctx context.Context, path string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, ffmpeg.Binary(),
		"-hide_banner",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffmpeg decode %s: %w (%s)", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	return BytesToSamples(out), nil
}

// LoadTrack decodes the file at path with decode (DecodeFile when nil).
func LoadTrack(ctx context.Context, path string, decode Decoder) (*Track, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}
	if decode == nil {
		decode = DecodeFile
	}

	samples, err := decode(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(samples) < FrameSamples {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyTrack)
	}

	return &Track{
		Name:    filepath.Base(path),
		Path:    path,
		Samples: samples,
	}, nil
}
