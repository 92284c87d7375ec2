package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/audio"
	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"
)

const (
	chunkSize = 64 << 10
	// flushTimeout bounds how long ffmpeg may take to write its trailer once
	// its inputs are closed.
	flushTimeout = 10 * time.Second
)

// FFmpegEncoder encodes through an ffmpeg child process: mixed PCM on
// stdin, MJPEG on an extra descriptor, the container on stdout.
type FFmpegEncoder struct {
	profile      Profile
	videoBitrate string

	mu       sync.Mutex
	proc     *ffmpeg.Process
	stop     chan struct{}
	stopOnce sync.Once
}

// FFmpegFactory returns an EncoderFactory negotiating profiles against the
// installed ffmpeg.
func FFmpegFactory(prober CapabilityProber, videoBitrate string) EncoderFactory {
	return func(ctx context.Context, p Profile) (Encoder, error) {
		if err := Negotiate(ctx, prober, p); err != nil {
			return nil, err
		}
		return &FFmpegEncoder{profile: p, videoBitrate: videoBitrate, stop: make(chan struct{})}, nil
	}
}

func (e *FFmpegEncoder) Profile() Profile { return e.profile }

// Args builds the ffmpeg command line for the given inputs.
func (e *FFmpegEncoder) Args(in Inputs, videoURL string) []string {
	rate := in.FrameRate
	if rate <= 0 {
		rate = 30
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-thread_queue_size", "512",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-thread_queue_size", "512",
		"-use_wallclock_as_timestamps", "1",
		"-f", "mjpeg",
		"-framerate", strconv.Itoa(rate),
		"-i", videoURL,
		"-map", "1:v", "-map", "0:a",
	}
	if e.profile.VideoCodec != "" {
		args = append(args, "-c:v", e.profile.VideoCodec)
		if e.profile.VideoCodec == "libvpx-vp9" {
			args = append(args, "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1")
		}
		if e.videoBitrate != "" {
			args = append(args, "-b:v", e.videoBitrate)
		}
	}
	if e.profile.AudioCodec != "" {
		args = append(args, "-c:a", e.profile.AudioCodec)
	}
	if e.profile.Container == "mp4" || e.profile.Container == "mov" {
		// stdout is not seekable
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	return append(args, "-f", e.profile.Container, "pipe:1")
}

// Start launches ffmpeg and the goroutines feeding and draining it.
// Cancelling ctx has the same effect as Stop.
func (e *FFmpegEncoder) Start(ctx context.Context, in Inputs, onChunk func([]byte), onFinalize func(error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc != nil {
		return fmt.Errorf("encoder already started")
	}

	proc := ffmpeg.New("encoder", e.Args(in, "pipe:3")...)
	stdin, err := proc.InputPipe()
	if err != nil {
		return err
	}
	video, _, err := proc.ExtraInputPipe()
	if err != nil {
		stdin.Close()
		return err
	}
	out, err := proc.OutputPipe()
	if err != nil {
		stdin.Close()
		video.Close()
		return err
	}
	if err := proc.Start(); err != nil {
		stdin.Close()
		video.Close()
		out.Close()
		return err
	}
	e.proc = proc

	slog.Info("Encoder started", "profile", e.profile.Name, "mime_type", e.profile.MimeType)

	go feedAudio(stdin, in.Audio, e.stop)
	go feedVideo(video, in.Video, e.stop)
	go e.drain(out, onChunk, onFinalize)
	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-proc.Done():
		}
	}()
	return nil
}

// drain forwards stdout in order, then reports the exit of the process.
func (e *FFmpegEncoder) drain(out io.ReadCloser, onChunk func([]byte), onFinalize func(error)) {
	buf := make([]byte, chunkSize)
	for {
		n, err := out.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("Encoder output read failed", "error", err)
			}
			break
		}
	}
	out.Close()

	err := e.proc.Wait()
	if err != nil {
		slog.Warn("Encoder exited with error", "error", err)
	}
	onFinalize(err)
}

// Stop closes the inputs so ffmpeg flushes and exits. A process that does
// not finish within flushTimeout is interrupted.
func (e *FFmpegEncoder) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)

		e.mu.Lock()
		proc := e.proc
		e.mu.Unlock()
		if proc == nil {
			return
		}
		go func() {
			select {
			case <-proc.Done():
			case <-time.After(flushTimeout):
				slog.Warn("Encoder did not flush in time, interrupting", "timeout", flushTimeout)
				if err := proc.Stop(ffmpeg.DefaultStopTimeout); err != nil {
					slog.Debug("Encoder stop failed", "error", err)
				}
			}
		}()
	})
}

func feedAudio(w io.WriteCloser, frames <-chan []int16, stop <-chan struct{}) {
	defer w.Close()
	for {
		select {
		case <-stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(f)); err != nil {
				slog.Debug("Encoder audio input closed", "error", err)
				return
			}
		}
	}
}

func feedVideo(w io.WriteCloser, frames <-chan []byte, stop <-chan struct{}) {
	defer w.Close()
	for {
		select {
		case <-stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if _, err := w.Write(f); err != nil {
				slog.Debug("Encoder video input closed", "error", err)
				return
			}
		}
	}
}
