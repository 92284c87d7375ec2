package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/audio"
	"github.com/audiolibrelab/clipcapture/internal/capture"
	"github.com/audiolibrelab/clipcapture/internal/mix"
	"github.com/audiolibrelab/clipcapture/internal/protocol"
)

// musicQueueFrames buffers one second of the duplicate handle's output.
const musicQueueFrames = 50

// session holds everything one recording owns. It is created when capture
// begins and released by finalize.
type session struct {
	capture    *capture.Session
	encoder    capture.Encoder
	pair       *audio.Pair
	mixCtx     *mix.Context
	graph      *mix.Graph
	music      *audio.Queue
	unsubMic   func()
	unsubVideo func()

	stopping  bool
	stoppedAt time.Time
	artifact  *capture.Artifact
	err       error
	finalized chan struct{}
}

// release frees the session resources. Failures are logged, never returned.
func (s *session) release() {
	if s.pair != nil {
		s.pair.Stop()
		s.pair.Visible.Unbind()
		s.pair.Shadow.Unbind()
	}
	if s.unsubVideo != nil {
		s.unsubVideo()
	}
	if s.graph != nil {
		if err := s.graph.Teardown(); err != nil {
			slog.Warn("Failed to tear down mix graph", "error", err)
		}
	}
	if s.mixCtx != nil {
		if err := s.mixCtx.Close(); err != nil {
			slog.Warn("Failed to close audio context", "error", err)
		}
	}
	if s.unsubMic != nil {
		s.unsubMic()
	}
	if s.music != nil {
		s.music.Close()
	}
}

// Start checks the preconditions, opens the devices when none are live and
// runs the countdown. Capture begins when the countdown elapses, or at once
// without one.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusStandby {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	if c.switching > 0 {
		c.mu.Unlock()
		return ErrSwitchingCamera
	}
	if c.track == nil {
		c.mu.Unlock()
		c.setLastError("Select a music track before recording")
		return ErrNoTrackSelected
	}
	c.gen++
	gen := c.gen
	c.status = StatusCountdown
	c.cycleDone = make(chan struct{})
	c.mu.Unlock()

	c.clearLastError()

	if _, err := c.stream(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrNoDevice, err)
		c.mu.Lock()
		if c.gen == gen {
			c.toStandbyLocked()
		}
		c.mu.Unlock()
		c.setLastError(fmt.Sprintf("Failed to open camera: %v", err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrCancelled
	}

	if c.opts.Countdown > 0 {
		c.countdownAt = c.deps.Clock.Now().Add(c.opts.Countdown)
		c.countdown = c.deps.Clock.AfterFunc(c.opts.Countdown, func() { c.countdownElapsed(gen) })
		slog.Info("Countdown started", "countdown", c.opts.Countdown)
		return nil
	}

	if err := c.beginLocked(); err != nil {
		c.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	return nil
}

func (c *Controller) countdownElapsed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.status != StatusCountdown {
		slog.Debug("Ignoring stale countdown timer", "gen", gen)
		return
	}
	c.countdown = nil

	if err := c.beginLocked(); err != nil {
		c.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
	}
}

// beginLocked builds the session: music pair, mix graph, encoder, protocol.
// On failure everything built so far is released and the controller is back
// in standby.
func (c *Controller) beginLocked() (err error) {
	stream := c.deps.Devices.Current()
	if !stream.Live() {
		c.toStandbyLocked()
		return ErrNoDevice
	}

	s := &session{finalized: make(chan struct{})}
	defer func() {
		if err != nil {
			s.release()
			c.protocol.Reset()
			c.toStandbyLocked()
		}
	}()

	s.pair = audio.NewPair(c.track)

	s.mixCtx, err = c.deps.Engine.Open()
	if err != nil {
		return fmt.Errorf("open audio context: %w", err)
	}

	var music <-chan []int16
	s.music = audio.NewQueue(musicQueueFrames)
	if bindErr := s.pair.Shadow.Bind(s.music); bindErr != nil {
		slog.Warn("Music path unavailable, recording without it", "error", bindErr)
		s.music.Close()
		s.music = nil
	} else {
		music = s.music.Frames()
	}

	mic, unsubMic := stream.Audio.Subscribe()
	s.unsubMic = unsubMic

	s.graph, err = mix.Build(s.mixCtx, mic, music, mix.Options{Crossfade: c.opts.Crossfade})
	if err != nil {
		return fmt.Errorf("build mix graph: %w", err)
	}

	video, unsubVideo := stream.Video.Subscribe()
	s.unsubVideo = unsubVideo

	s.encoder, err = capture.NewEncoder(c.ctx, c.deps.Encoders, c.opts.Profiles...)
	if err != nil {
		return err
	}

	if err := c.protocol.Begin(s.graph); err != nil {
		return err
	}

	if c.deps.Monitor != nil {
		if err := s.pair.Visible.Bind(c.deps.Monitor); err != nil {
			slog.Warn("Music monitoring unavailable", "error", err)
		}
	}
	s.pair.OnEnded(func() { c.trackEnded(s) })

	s.capture = capture.NewSession(c.deps.Clock.Now())
	in := capture.Inputs{
		Video:     video,
		Audio:     s.graph.Output(),
		Width:     c.opts.Width,
		Height:    c.opts.Height,
		FrameRate: c.opts.FrameRate,
	}
	onChunk := func(chunk []byte) {
		if !s.capture.Append(chunk) {
			slog.Debug("Ignoring chunk", "session", s.capture.ID, "bytes", len(chunk))
		}
	}
	onFinalize := func(encErr error) {
		go c.finalize(s, encErr)
	}
	if err := s.encoder.Start(c.ctx, in, onChunk, onFinalize); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	s.pair.Restart()

	c.active = s
	c.status = StatusRecording
	c.countdownAt = time.Time{}

	slog.Info("Recording started",
		"session", s.capture.ID,
		"profile", s.encoder.Profile().Name,
		"track", c.track.Name,
		"pre_roll", c.protocol.PreRoll())
	return nil
}

// ToggleSource flips the recorded input between music and microphone. It is
// rejected when no session is recording.
func (c *Controller) ToggleSource() (protocol.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRecording {
		return c.protocol.State(), ErrNotRecording
	}
	return c.protocol.Toggle()
}

// Stop ends the current recording and waits for its artifact. A stop during
// the countdown cancels it and yields no artifact.
func (c *Controller) Stop(ctx context.Context) (*capture.Artifact, error) {
	c.mu.Lock()
	switch c.status {
	case StatusCountdown:
		c.gen++
		if c.countdown != nil {
			c.countdown.Stop()
			c.countdown = nil
		}
		c.toStandbyLocked()
		c.mu.Unlock()
		slog.Info("Recording cancelled during countdown")
		return nil, nil

	case StatusRecording, StatusFinalizing:
		s := c.active
		enc := c.requestStopLocked(s)
		c.mu.Unlock()
		if enc != nil {
			enc.Stop()
		}

		select {
		case <-s.finalized:
			return s.artifact, s.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default:
		c.mu.Unlock()
		return nil, ErrNotRecording
	}
}

// trackEnded is the end-of-media path: the same stop as a manual one, without
// waiting for the artifact.
func (c *Controller) trackEnded(s *session) {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return
	}
	enc := c.requestStopLocked(s)
	c.mu.Unlock()

	if enc != nil {
		slog.Info("Music track ended, stopping recording", "session", s.capture.ID)
		enc.Stop()
	}
}

// requestStopLocked freezes the session: wall-clock end, protocol stopped,
// music halted on both handles. It returns the encoder to flush, or nil when
// a stop was already requested.
func (c *Controller) requestStopLocked(s *session) capture.Encoder {
	if s.stopping {
		return nil
	}
	s.stopping = true
	s.stoppedAt = c.deps.Clock.Now()
	c.status = StatusFinalizing
	c.protocol.Stop()
	s.pair.Stop()
	return s.encoder
}

// finalize runs once the encoder has flushed its last chunk.
func (c *Controller) finalize(s *session, encErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-s.finalized:
		slog.Debug("Ignoring duplicate finalize", "session", s.capture.ID)
		return
	default:
	}

	if !s.stopping {
		slog.Warn("Encoder finished before stop was requested", "session", s.capture.ID, "error", encErr)
		c.requestStopLocked(s)
	}

	artifact, err := s.capture.Finalize(s.encoder.Profile(), s.stoppedAt)

	s.release()
	c.protocol.Reset()

	switch {
	case err != nil:
		s.err = err
	case encErr != nil && artifact.Size() == 0:
		s.err = fmt.Errorf("encoding failed: %w", encErr)
	default:
		if encErr != nil {
			slog.Warn("Encoder reported an error, keeping what was recorded", "session", s.capture.ID, "error", encErr)
		}
		filename := artifact.Filename(c.opts.FilenamePattern, c.opts.AppName)
		c.deps.Gallery.Add(artifact, filename, artifact.Duration)
		s.artifact = artifact
		slog.Info("Recording finalized",
			"session", s.capture.ID,
			"artifact", artifact.ID,
			"file", filename,
			"duration", artifact.Duration,
			"size", artifact.HumanSize())
	}
	if s.err != nil {
		c.setLastError(fmt.Sprintf("Recording failed: %v", s.err))
	}

	c.toStandbyLocked()
	close(s.finalized)
}

// Wait blocks until the current cycle, from Start to finalize or
// cancellation, is over. It returns at once in standby.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.cycleDone
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) toStandbyLocked() {
	c.status = StatusStandby
	c.countdownAt = time.Time{}
	c.active = nil
	if c.cycleDone != nil {
		close(c.cycleDone)
		c.cycleDone = nil
	}
}
