package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyBound is returned when a handle already feeds another sink.
// A handle can drive exactly one consumer; use Duplicate for a second one.
var ErrAlreadyBound = errors.New("handle already bound to a sink")

// Handle is a playable position over a decoded track. The visible handle is
// what the user hears; duplicates are off-screen copies that feed the
// recording graph.
type Handle struct {
	track     *Track
	offscreen bool

	mu      sync.Mutex
	frame   int
	playing bool
	sink    FrameWriter
}

// NewHandle creates the visible handle for a track.
func NewHandle(t *Track) *Handle {
	return &Handle{track: t}
}

// Duplicate creates an off-screen handle over the same decoded samples. It
// starts paused at position zero with no sink.
func (h *Handle) Duplicate() *Handle {
	return &Handle{track: h.track, offscreen: true}
}

// Track returns the decoded track behind the handle.
func (h *Handle) Track() *Track {
	return h.track
}

// Offscreen reports whether this is a duplicate handle.
func (h *Handle) Offscreen() bool {
	return h.offscreen
}

// Bind attaches the sink that receives frames while playing.
func (h *Handle) Bind(sink FrameWriter) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sink != nil {
		return ErrAlreadyBound
	}
	h.sink = sink
	return nil
}

// Unbind detaches the current sink.
func (h *Handle) Unbind() {
	h.mu.Lock()
	h.sink = nil
	h.mu.Unlock()
}

// Seek moves the handle to the given position, rounded down to a frame.
func (h *Handle) Seek(pos time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := int(pos / FrameDuration)
	if f < 0 {
		f = 0
	}
	if f > h.track.Frames() {
		f = h.track.Frames()
	}
	h.frame = f
}

// Position returns the current playback position.
func (h *Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.frame) * FrameDuration
}

// Playing reports whether the handle advances on each tick.
func (h *Handle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *Handle) setPlaying(p bool) {
	h.mu.Lock()
	h.playing = p
	h.mu.Unlock()
}

// step emits the frame at the current position and advances. It reports
// true once the end of the track has been reached.
func (h *Handle) step() bool {
	h.mu.Lock()
	if !h.playing {
		h.mu.Unlock()
		return false
	}
	total := h.track.Frames()
	if h.frame >= total {
		h.playing = false
		h.mu.Unlock()
		return true
	}
	start := h.frame * FrameSamples
	frame := h.track.Samples[start : start+FrameSamples]
	h.frame++
	sink := h.sink
	ended := h.frame >= total
	if ended {
		h.playing = false
	}
	h.mu.Unlock()

	if sink != nil {
		sink.WriteFrame(frame)
	}
	return ended
}
