// Package device owns the camera and microphone: it opens them together as
// one stream, switches the camera facing and releases every track it opened.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Facing is the camera direction.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Opposite returns the other camera direction.
func (f Facing) Opposite() Facing {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// Valid reports whether f is a known facing mode.
func (f Facing) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

var (
	ErrPermissionDenied  = errors.New("camera or microphone permission denied")
	ErrDeviceUnavailable = errors.New("camera or microphone unavailable")
	ErrSuperseded        = errors.New("device request superseded by a newer one")
)

// Backend opens the physical (or synthetic) devices.
type Backend interface {
	Name() string
	// Authorize checks once that the devices may be opened at all.
	Authorize(ctx context.Context) error
	OpenVideo(ctx context.Context, facing Facing) (*VideoTrack, error)
	OpenAudio(ctx context.Context) (*AudioTrack, error)
}

// Stream is a live camera + microphone pair.
type Stream struct {
	ID        string
	Facing    Facing
	Video     *VideoTrack
	Audio     *AudioTrack
	StartedAt time.Time
}

// Stop stops both tracks.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	if s.Video != nil {
		s.Video.Stop()
	}
	if s.Audio != nil {
		s.Audio.Stop()
	}
}

// Live reports whether both tracks are still running.
func (s *Stream) Live() bool {
	return s != nil && s.Video != nil && s.Audio != nil && !s.Video.Stopped() && !s.Audio.Stopped()
}

// Manager holds at most one open stream.
type Manager struct {
	backend Backend

	mu         sync.Mutex
	current    *Stream
	facing     Facing
	gen        uint64
	authorized bool
	authMu     sync.Mutex
}

// NewManager creates a manager that will open devices facing initial.
func NewManager(b Backend, initial Facing) *Manager {
	if !initial.Valid() {
		initial = FacingUser
	}
	return &Manager{backend: b, facing: initial}
}

// Backend returns the backend streams are opened from.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Current returns the open stream, or nil.
func (m *Manager) Current() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Facing returns the most recently requested camera direction.
func (m *Manager) Facing() Facing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facing
}

// Acquire releases the current stream, if any, and opens a new one facing
// the given direction. When another request starts before this one
// completes, the result of this one is stopped and ErrSuperseded returned.
func (m *Manager) Acquire(ctx context.Context, facing Facing) (*Stream, error) {
	if !facing.Valid() {
		return nil, fmt.Errorf("invalid facing mode %q", facing)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.facing = facing
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
		slog.Debug("Released device stream", "stream", prev.ID, "facing", prev.Facing)
	}

	if err := m.authorize(ctx); err != nil {
		return nil, err
	}

	stream, err := m.open(ctx, facing)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			m.revoke()
		}
		return nil, err
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		stream.Stop()
		slog.Debug("Dropped superseded device stream", "stream", stream.ID, "facing", facing)
		return nil, ErrSuperseded
	}
	m.current = stream
	m.mu.Unlock()

	slog.Info("Device stream acquired", "stream", stream.ID, "facing", facing, "backend", m.backend.Name())
	return stream, nil
}

// SwitchFacing releases every track of the current stream and acquires the
// opposite camera direction.
func (m *Manager) SwitchFacing(ctx context.Context) (*Stream, error) {
	m.mu.Lock()
	next := m.facing.Opposite()
	m.mu.Unlock()
	return m.Acquire(ctx, next)
}

// Release stops every open track. In-flight acquisitions are superseded.
// Release is idempotent.
func (m *Manager) Release() {
	m.mu.Lock()
	m.gen++
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
		slog.Debug("Released device stream", "stream", prev.ID)
	}
}

func (m *Manager) authorize(ctx context.Context) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	if m.authorized {
		return nil
	}
	if err := m.backend.Authorize(ctx); err != nil {
		return fmt.Errorf("authorize %s devices: %w", m.backend.Name(), err)
	}
	m.authorized = true
	return nil
}

// revoke forgets a grant the devices no longer honour.
func (m *Manager) revoke() {
	m.authMu.Lock()
	m.authorized = false
	m.authMu.Unlock()
}

func (m *Manager) open(ctx context.Context, facing Facing) (*Stream, error) {
	video, err := m.backend.OpenVideo(ctx, facing)
	if err != nil {
		return nil, fmt.Errorf("open camera (%s): %w", facing, err)
	}

	audio, err := m.backend.OpenAudio(ctx)
	if err != nil {
		video.Stop()
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	return &Stream{
		ID:        uuid.NewString(),
		Facing:    facing,
		Video:     video,
		Audio:     audio,
		StartedAt: time.Now(),
	}, nil
}
