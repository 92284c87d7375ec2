package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Inputs are the live tracks combined into one recording.
type Inputs struct {
	Video     <-chan []byte  // MJPEG frames
	Audio     <-chan []int16 // mixed 20ms s16 stereo frames
	Width     int
	Height    int
	FrameRate int
}

// Encoder turns live inputs into ordered chunks of an encoded container.
// onChunk is called from a single goroutine in output order; onFinalize is
// called exactly once, after the last chunk, when the encoder has flushed.
type Encoder interface {
	Profile() Profile
	Start(ctx context.Context, in Inputs, onChunk func([]byte), onFinalize func(error)) error
	// Stop requests a flush. It does not wait for onFinalize.
	Stop()
}

// EncoderFactory builds an encoder for a profile, failing with
// ErrUnsupportedProfile when the runtime cannot produce it.
type EncoderFactory func(ctx context.Context, p Profile) (Encoder, error)

// NewEncoder returns an encoder for the first profile that can be built.
// Any construction failure moves on to the next profile; only a cancelled
// ctx stops the search early.
func NewEncoder(ctx context.Context, factory EncoderFactory, profiles ...Profile) (Encoder, error) {
	if len(profiles) == 0 {
		profiles = []Profile{PreferredProfile, DefaultProfile}
	}

	var lastErr error
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		enc, err := factory(ctx, p)
		if err == nil {
			slog.Debug("Selected encoding profile", "profile", p.Name, "mime_type", p.MimeType)
			return enc, nil
		}
		if errors.Is(err, ErrUnsupportedProfile) {
			slog.Info("Encoding profile unsupported, falling back", "profile", p.Name, "error", err)
		} else {
			slog.Warn("Encoder construction failed, falling back", "profile", p.Name, "error", err)
		}
		lastErr = fmt.Errorf("create encoder (%s): %w", p.Name, err)
	}
	return nil, fmt.Errorf("no usable encoding profile: %w", lastErr)
}
