package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/audio"
	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"
)

// BackendType selects how devices are opened.
type BackendType string

const (
	BackendTypeV4L2  BackendType = "v4l2"
	BackendTypeLavfi BackendType = "lavfi"
	BackendTypeAuto  BackendType = "auto"
)

// openTimeout bounds how long a device may take to deliver its first frame.
const openTimeout = 10 * time.Second

// Options configures the ffmpeg capture backends.
type Options struct {
	Backend    string
	Cameras    map[Facing]string // device node or name per facing
	Microphone string            // ALSA device
	Width      int
	Height     int
	FrameRate  int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.FrameRate <= 0 {
		o.FrameRate = 30
	}
	if o.Microphone == "" {
		o.Microphone = "default"
	}
	return o
}

// NewBackend creates the backend selected by opts.Backend.
func NewBackend(opts Options) Backend {
	opts = opts.withDefaults()
	kind := determineBackend(opts, NewDiscovery())
	slog.Debug("Selected device backend", "backend", kind)
	return &FFmpegBackend{kind: kind, opts: opts, discovery: NewDiscovery()}
}

// determineBackend resolves "auto": real cameras when one is configured and
// present, the synthetic source otherwise.
func determineBackend(opts Options, d *Discovery) BackendType {
	switch strings.ToLower(opts.Backend) {
	case string(BackendTypeV4L2):
		return BackendTypeV4L2
	case string(BackendTypeLavfi):
		return BackendTypeLavfi
	}

	for _, cam := range opts.Cameras {
		if cam == "" {
			continue
		}
		if _, err := d.Resolve(context.Background(), KindVideo, cam); err == nil {
			return BackendTypeV4L2
		}
	}
	return BackendTypeLavfi
}

// GetAvailableBackends returns the backends usable on this system.
func GetAvailableBackends() []BackendType {
	backends := []BackendType{BackendTypeLavfi}
	if cams, err := NewDiscovery().listCameras(); err == nil && len(cams) > 0 {
		backends = append([]BackendType{BackendTypeV4L2}, backends...)
	}
	return backends
}

// FFmpegBackend captures through ffmpeg: v4l2 + ALSA for real devices, or
// lavfi test sources.
type FFmpegBackend struct {
	kind      BackendType
	opts      Options
	discovery *Discovery
}

func (b *FFmpegBackend) Name() string { return string(b.kind) }

// Authorize verifies ffmpeg is installed and, for real devices, that a
// configured camera can be opened by this user.
func (b *FFmpegBackend) Authorize(ctx context.Context) error {
	if _, err := ffmpeg.FindBinary("ffmpeg", ffmpeg.BinaryEnv); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if b.kind != BackendTypeV4L2 {
		return nil
	}

	var lastErr error
	for _, facing := range []Facing{FacingUser, FacingEnvironment} {
		spec := b.opts.Cameras[facing]
		if spec == "" {
			continue
		}
		if _, err := b.discovery.Resolve(ctx, KindVideo, spec); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no camera configured", ErrDeviceUnavailable)
	}
	return lastErr
}

// OpenVideo starts an MJPEG camera track.
func (b *FFmpegBackend) OpenVideo(ctx context.Context, facing Facing) (*VideoTrack, error) {
	args, label, err := b.videoArgs(ctx, facing)
	if err != nil {
		return nil, err
	}
	proc := ffmpeg.New("camera-"+string(facing), args...)
	out, err := proc.OutputPipe()
	if err != nil {
		return nil, err
	}
	if err := proc.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	track := NewTrack[[]byte](KindVideo, label, func() { stopProcess(proc, out) })
	first := make(chan struct{})
	go readVideo(out, track, first)

	if err := waitFirstFrame(ctx, proc, first); err != nil {
		track.Stop()
		return nil, err
	}
	return track, nil
}

// OpenAudio starts a microphone track of 20ms s16le stereo frames.
func (b *FFmpegBackend) OpenAudio(ctx context.Context) (*AudioTrack, error) {
	args, label, err := b.audioArgs(ctx)
	if err != nil {
		return nil, err
	}
	proc := ffmpeg.New("microphone", args...)
	out, err := proc.OutputPipe()
	if err != nil {
		return nil, err
	}
	if err := proc.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	track := NewTrack[[]int16](KindAudio, label, func() { stopProcess(proc, out) })
	first := make(chan struct{})
	go readAudio(out, track, first)

	if err := waitFirstFrame(ctx, proc, first); err != nil {
		track.Stop()
		return nil, err
	}
	return track, nil
}

func (b *FFmpegBackend) videoArgs(ctx context.Context, facing Facing) ([]string, string, error) {
	size := fmt.Sprintf("%dx%d", b.opts.Width, b.opts.Height)
	rate := strconv.Itoa(b.opts.FrameRate)
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	switch b.kind {
	case BackendTypeV4L2:
		node, err := b.discovery.Resolve(ctx, KindVideo, b.opts.Cameras[facing])
		if err != nil {
			return nil, "", err
		}
		args = append(args,
			"-f", "v4l2",
			"-input_format", "mjpeg",
			"-framerate", rate,
			"-video_size", size,
			"-i", node,
		)
		return append(args, mjpegOutput()...), node, nil
	default:
		pattern := "testsrc2"
		if facing == FacingEnvironment {
			pattern = "smptehdbars"
		}
		args = append(args,
			"-re",
			"-f", "lavfi",
			"-i", fmt.Sprintf("%s=size=%s:rate=%s", pattern, size, rate),
		)
		return append(args, mjpegOutput()...), pattern, nil
	}
}

func mjpegOutput() []string {
	return []string{"-an", "-c:v", "mjpeg", "-q:v", "5", "-f", "mjpeg", "pipe:1"}
}

func (b *FFmpegBackend) audioArgs(ctx context.Context) ([]string, string, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	rate := strconv.Itoa(audio.SampleRate)
	channels := strconv.Itoa(audio.Channels)

	switch b.kind {
	case BackendTypeV4L2:
		dev, err := b.discovery.Resolve(ctx, KindAudio, b.opts.Microphone)
		if err != nil {
			return nil, "", err
		}
		args = append(args, "-f", "alsa", "-channels", channels, "-sample_rate", rate, "-i", dev)
		return append(args, pcmOutput()...), dev, nil
	default:
		args = append(args, "-re", "-f", "lavfi", "-i", "sine=frequency=440:sample_rate="+rate)
		return append(args, pcmOutput()...), "sine", nil
	}
}

func pcmOutput() []string {
	return []string{
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"pipe:1",
	}
}

func readVideo(out io.Reader, track *VideoTrack, first chan struct{}) {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
	scanner.Split(splitJPEG)

	started := false
	for scanner.Scan() {
		track.Publish(bytes.Clone(scanner.Bytes()))
		if !started {
			started = true
			close(first)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("Camera stream ended", "track", track.ID(), "error", err)
	}
	track.Stop()
}

func readAudio(out io.Reader, track *AudioTrack, first chan struct{}) {
	buf := make([]byte, audio.FrameBytes)
	started := false
	for {
		if _, err := io.ReadFull(out, buf); err != nil {
			slog.Debug("Microphone stream ended", "track", track.ID(), "error", err)
			break
		}
		track.Publish(audio.BytesToSamples(buf))
		if !started {
			started = true
			close(first)
		}
	}
	track.Stop()
}

func waitFirstFrame(ctx context.Context, proc *ffmpeg.Process, first <-chan struct{}) error {
	timer := time.NewTimer(openTimeout)
	defer timer.Stop()

	select {
	case <-first:
		return nil
	case <-proc.Done():
		return classifyFailure(proc.Stderr())
	case <-timer.C:
		return fmt.Errorf("%w: no frame within %s", ErrDeviceUnavailable, openTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyFailure maps ffmpeg diagnostics to a device error.
func classifyFailure(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "operation not permitted"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, stderr)
	case strings.Contains(lower, "device or resource busy"):
		return fmt.Errorf("%w: device is in use by another application", ErrDeviceUnavailable)
	case stderr == "":
		return fmt.Errorf("%w: capture process exited", ErrDeviceUnavailable)
	default:
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, stderr)
	}
}

func stopProcess(proc *ffmpeg.Process, out io.Closer) {
	if err := proc.Stop(ffmpeg.DefaultStopTimeout); err != nil {
		slog.Debug("Capture process exited with error", "error", err)
	}
	out.Close()
}
