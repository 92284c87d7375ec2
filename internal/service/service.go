package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/audiolibrelab/clipcapture/internal/audio"
	"github.com/audiolibrelab/clipcapture/internal/capture"
	"github.com/audiolibrelab/clipcapture/internal/clock"
	"github.com/audiolibrelab/clipcapture/internal/device"
	"github.com/audiolibrelab/clipcapture/internal/gallery"
	"github.com/audiolibrelab/clipcapture/internal/mix"
	"github.com/audiolibrelab/clipcapture/internal/monitor"
	"github.com/audiolibrelab/clipcapture/internal/protocol"
)

// Service represents the core ClipCapture service interface
type Service interface {
	// Recording operations
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*capture.Artifact, error)
	ToggleSource() (protocol.State, error)
	Wait(ctx context.Context) error
	Status() Status

	// Device operations
	SwitchFacing(ctx context.Context) (device.Facing, error)
	Preview(ctx context.Context) (<-chan []byte, func(), error)

	// Music track operations
	ListTracks() ([]TrackInfo, error)
	SelectTrack(ctx context.Context, name string) (*TrackInfo, error)

	// Finished recordings
	Gallery() *gallery.Gallery
	Monitor() *monitor.Broadcaster

	// Pipeline operations
	RunPipeline(ctx context.Context, steps string, opts PipelineOptions) error

	GetLastError() string
	Close() error
}

// RecordingStatus represents the current recording state
type RecordingStatus string

const (
	StatusStandby    RecordingStatus = "STANDBY"
	StatusCountdown  RecordingStatus = "COUNTDOWN"
	StatusRecording  RecordingStatus = "RECORDING"
	StatusFinalizing RecordingStatus = "FINALIZING"
)

var (
	ErrNoDevice         = errors.New("no camera or microphone available")
	ErrNoTrackSelected  = errors.New("no music track selected")
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrCancelled        = errors.New("recording cancelled before capture began")
	ErrClosed           = errors.New("controller closed")
	ErrSwitchingCamera  = errors.New("camera switch in progress")
)

// Status is a snapshot of the controller for the UI.
type Status struct {
	State              RecordingStatus `json:"state"`
	Protocol           protocol.State  `json:"protocol"`
	Source             mix.Source      `json:"source,omitempty"`
	CountdownRemaining time.Duration   `json:"countdown_remaining"`
	PreRollRemaining   time.Duration   `json:"preroll_remaining"`
	SessionID          string          `json:"session_id,omitempty"`
	Elapsed            time.Duration   `json:"elapsed"`
	RecordedBytes      int             `json:"recorded_bytes"`
	RecordedHuman      string          `json:"recorded_human"`
	Track              string          `json:"track,omitempty"`
	TrackDuration      time.Duration   `json:"track_duration"`
	Facing             device.Facing   `json:"facing"`
	DeviceReady        bool            `json:"device_ready"`
	GalleryCount       int             `json:"gallery_count"`
	LastError          string          `json:"last_error,omitempty"`
}

// Player opens a finished recording for preview.
type Player interface {
	Play(ctx context.Context, file string) error
}

// Deps are the collaborators a controller drives.
type Deps struct {
	Devices  *device.Manager
	Engine   *mix.Engine
	Gallery  *gallery.Gallery
	Monitor  *monitor.Broadcaster // receives the visible music handle, may be nil
	Encoders capture.EncoderFactory
	Clock    clock.Clock
	Decoder  audio.Decoder
	Player   Player
}

// Options configure the recording protocol and output.
type Options struct {
	AppName         string
	Countdown       time.Duration
	PreRoll         time.Duration
	Crossfade       time.Duration
	FilenamePattern string
	Width           int
	Height          int
	FrameRate       int
	// Profiles are tried in order; empty uses the preferred then the
	// default profile.
	Profiles        []capture.Profile
	TracksDirectory string
	TrackExtensions []string
}

// Controller is the session lifecycle controller. It owns the device stream,
// the audio engine and at most one recording session.
type Controller struct {
	deps     Deps
	opts     Options
	protocol *protocol.Protocol

	// ctx outlives requests: encoders run under it until Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	status      RecordingStatus
	gen         uint64
	track       *audio.Track
	countdown   clock.Timer
	countdownAt time.Time
	active      *session
	cycleDone   chan struct{}
	switching   int
	closed      bool

	trackMutex sync.RWMutex

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*Controller)(nil)

// NewController creates an idle controller.
func NewController(deps Deps, opts Options) *Controller {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Engine == nil {
		deps.Engine = mix.NewEngine()
	}
	if deps.Gallery == nil {
		deps.Gallery = gallery.New(gallery.DefaultCapacity, gallery.DefaultDownloadDelay)
	}
	if opts.AppName == "" {
		opts.AppName = "clipcapture"
	}
	if opts.FilenamePattern == "" {
		opts.FilenamePattern = capture.DefaultFilenamePattern
	}
	if opts.Countdown < 0 {
		opts.Countdown = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:     deps,
		opts:     opts,
		protocol: protocol.New(deps.Clock, opts.PreRoll),
		ctx:      ctx,
		cancel:   cancel,
		status:   StatusStandby,
	}
	c.protocol.OnChange(func(s protocol.State) {
		slog.Debug("Protocol state changed", "state", s)
	})
	return c
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:       c.status,
		Facing:      c.deps.Devices.Facing(),
		DeviceReady: c.deps.Devices.Current().Live(),
	}
	if c.status == StatusCountdown && !c.countdownAt.IsZero() {
		if d := c.countdownAt.Sub(c.deps.Clock.Now()); d > 0 {
			st.CountdownRemaining = d
		}
	}
	if c.track != nil {
		st.Track = c.track.Name
		st.TrackDuration = c.track.Duration()
	}
	if s := c.active; s != nil {
		st.SessionID = s.capture.ID
		end := c.deps.Clock.Now()
		if s.stopping {
			end = s.stoppedAt
		}
		st.Elapsed = end.Sub(s.capture.StartedAt)
		st.RecordedBytes = s.capture.Size()
	}
	c.mu.Unlock()

	st.Protocol = c.protocol.State()
	st.Source = st.Protocol.Source()
	st.PreRollRemaining = c.protocol.Remaining()
	st.RecordedHuman = humanize.Bytes(uint64(st.RecordedBytes))
	st.GalleryCount = c.deps.Gallery.Len()
	st.LastError = c.GetLastError()
	return st
}

// Gallery returns the finished recordings of this process.
func (c *Controller) Gallery() *gallery.Gallery {
	return c.deps.Gallery
}

// Monitor returns the broadcaster carrying the music at full volume, or nil.
func (c *Controller) Monitor() *monitor.Broadcaster {
	return c.deps.Monitor
}

// Preview subscribes to the live camera, opening the devices if needed. The
// returned channel closes when the stream is replaced or released.
func (c *Controller) Preview(ctx context.Context) (<-chan []byte, func(), error) {
	stream, err := c.stream(ctx)
	if err != nil {
		return nil, nil, err
	}
	frames, cancel := stream.Video.Subscribe()
	return frames, cancel, nil
}

// SwitchFacing flips the camera direction. It is rejected while a recording
// is being prepared or captured, and Start is rejected until it returns.
func (c *Controller) SwitchFacing(ctx context.Context) (device.Facing, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.deps.Devices.Facing(), ErrClosed
	}
	if c.status != StatusStandby {
		c.mu.Unlock()
		return c.deps.Devices.Facing(), ErrAlreadyRecording
	}
	c.switching++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.switching--
		c.mu.Unlock()
	}()

	stream, err := c.deps.Devices.SwitchFacing(ctx)
	if err != nil {
		if errors.Is(err, device.ErrSuperseded) {
			return c.deps.Devices.Facing(), err
		}
		c.setLastError(fmt.Sprintf("Failed to switch camera: %v", err))
		return c.deps.Devices.Facing(), err
	}
	c.clearLastError()
	return stream.Facing, nil
}

// Close stops any recording, releases the devices and cancels encoders.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := c.Stop(ctx); err != nil && !errors.Is(err, ErrNotRecording) {
		slog.Warn("Failed to finalize recording on close", "error", err)
	}

	c.deps.Devices.Release()
	c.cancel()
	slog.Debug("Controller closed")
	return nil
}

// stream returns the open device stream, acquiring one if needed.
func (c *Controller) stream(ctx context.Context) (*device.Stream, error) {
	if s := c.deps.Devices.Current(); s.Live() {
		return s, nil
	}
	return c.deps.Devices.Acquire(ctx, c.deps.Devices.Facing())
}

// GetLastError returns the last error message (thread-safe)
func (c *Controller) GetLastError() string {
	c.lastErrorMutex.RLock()
	defer c.lastErrorMutex.RUnlock()
	return c.lastError
}

// setLastError sets the last error message (thread-safe)
func (c *Controller) setLastError(err string) {
	c.lastErrorMutex.Lock()
	defer c.lastErrorMutex.Unlock()
	c.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (c *Controller) clearLastError() {
	c.lastErrorMutex.Lock()
	defer c.lastErrorMutex.Unlock()
	c.lastError = ""
}
