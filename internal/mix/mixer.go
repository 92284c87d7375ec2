// Package mix implements the two-input gain graph that produces the audio
// track of a recording: the microphone path and the music path are scaled
// independently and summed into one output track.
package mix

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/audio"
)

// Source names one input path of the graph.
type Source string

const (
	Mic   Source = "mic"
	Music Source = "music"
)

// Other returns the opposite path.
func (s Source) Other() Source {
	if s == Mic {
		return Music
	}
	return Mic
}

// Valid reports whether s names a graph path.
func (s Source) Valid() bool {
	return s == Mic || s == Music
}

var (
	ErrInvalidGain   = errors.New("gain must be within [0,1]")
	ErrInvalidSource = errors.New("unknown mix source")
	ErrTornDown      = errors.New("mix graph already torn down")
)

// Options tunes a graph.
type Options struct {
	// Interval is the frame clock. Defaults to audio.FrameDuration.
	Interval time.Duration
	// Crossfade spreads Select over this duration using a smoothstep curve.
	// Zero switches on the next frame.
	Crossfade time.Duration
	// OutputBuffer is the number of mixed frames buffered for the encoder.
	OutputBuffer int
}

type fade struct {
	fromMic, fromMusic float64
	toMic, toMusic     float64
	frames, step       int
}

// Graph sums the mic and music paths into one output track.
type Graph struct {
	ctx   *Context
	mic   <-chan []int16
	music <-chan []int16
	out   chan []int16
	opts  Options

	mu        sync.Mutex
	micGain   float64
	musicGain float64
	fade      *fade
	torn      bool

	stop chan struct{}
	done chan struct{}
}

// Build wires mic and music into a new graph owned by ctx and starts the
// mixing loop. music may be nil, in which case the music path stays silent.
// The graph starts on the microphone (mic=1, music=0).
func Build(ctx *Context, mic, music <-chan []int16, opts Options) (*Graph, error) {
	if ctx == nil || ctx.Closed() {
		return nil, ErrContextClosed
	}
	if opts.Interval <= 0 {
		opts.Interval = audio.FrameDuration
	}
	if opts.OutputBuffer <= 0 {
		opts.OutputBuffer = 50
	}

	g := &Graph{
		ctx:     ctx,
		mic:     mic,
		music:   music,
		out:     make(chan []int16, opts.OutputBuffer),
		opts:    opts,
		micGain: 1,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := ctx.attach(g); err != nil {
		return nil, err
	}

	go g.run()

	slog.Debug("Mix graph built", "context", ctx.ID(), "music_path", music != nil, "crossfade", opts.Crossfade)
	return g, nil
}

// Output is the mixed track. It is closed by Teardown.
func (g *Graph) Output() <-chan []int16 {
	return g.out
}

// Gains returns the current mic and music gains.
func (g *Graph) Gains() (mic, music float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.micGain, g.musicGain
}

// SetGain sets a single path's gain. It applies from the next frame and
// cancels any crossfade in progress.
func (g *Graph) SetGain(which Source, value float64) error {
	if !which.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, which)
	}
	if value < 0 || value > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidGain, value)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.torn {
		return ErrTornDown
	}
	g.fade = nil
	if which == Mic {
		g.micGain = value
	} else {
		g.musicGain = value
	}
	return nil
}

// Select routes s to the recording at full gain and silences the other path
// in one step. With a crossfade configured the swap is spread over it.
func (g *Graph) Select(s Source) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}

	toMic, toMusic := 1.0, 0.0
	if s == Music {
		toMic, toMusic = 0, 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.torn {
		return ErrTornDown
	}

	frames := int(g.opts.Crossfade / g.opts.Interval)
	if frames <= 1 {
		g.fade = nil
		g.micGain, g.musicGain = toMic, toMusic
		return nil
	}
	g.fade = &fade{
		fromMic: g.micGain, fromMusic: g.musicGain,
		toMic: toMic, toMusic: toMusic,
		frames: frames,
	}
	return nil
}

// Teardown stops the mixing loop, closes the output track and releases the
// processing context. It is idempotent.
func (g *Graph) Teardown() error {
	g.mu.Lock()
	if g.torn {
		g.mu.Unlock()
		return nil
	}
	g.torn = true
	g.mu.Unlock()

	close(g.stop)
	<-g.done

	slog.Debug("Mix graph torn down", "context", g.ctx.ID())
	return g.ctx.Close()
}

func (g *Graph) run() {
	defer close(g.done)
	defer close(g.out)

	ticker := time.NewTicker(g.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
		}

		frame := g.tick()

		select {
		case g.out <- frame:
		case <-g.stop:
			return
		}
	}
}

// tick pulls at most one frame from each path and returns the mixed frame.
func (g *Graph) tick() []int16 {
	var micFrame, musicFrame []int16
	micFrame, g.mic = take(g.mic)
	musicFrame, g.music = take(g.music)

	micGain, musicGain := g.nextGains()
	return mixFrame(micFrame, musicFrame, micGain, musicGain)
}

// nextGains returns the gains for the frame being mixed, advancing any
// crossfade by one step.
func (g *Graph) nextGains() (float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f := g.fade; f != nil {
		f.step++
		p := audio.Smoothstep(float64(f.step) / float64(f.frames))
		g.micGain = f.fromMic + (f.toMic-f.fromMic)*p
		g.musicGain = f.fromMusic + (f.toMusic-f.fromMusic)*p
		if f.step >= f.frames {
			g.micGain, g.musicGain = f.toMic, f.toMusic
			g.fade = nil
		}
	}
	return g.micGain, g.musicGain
}

// take performs a non-blocking receive. A closed channel is replaced by nil
// so later ticks treat the path as silent.
func take(ch <-chan []int16) ([]int16, <-chan []int16) {
	if ch == nil {
		return nil, nil
	}
	select {
	case f, ok := <-ch:
		if !ok {
			return nil, nil
		}
		return f, ch
	default:
		return nil, ch
	}
}

// mixFrame scales and sums two frames into a new full-size frame. Missing
// or short inputs contribute silence.
func mixFrame(mic, music []int16, micGain, musicGain float64) []int16 {
	out := make([]int16, audio.FrameSamples)
	for i := range out {
		var v float64
		if i < len(mic) {
			v += float64(mic[i]) * micGain
		}
		if i < len(music) {
			v += float64(music[i]) * musicGain
		}
		out[i] = audio.Clip16(v)
	}
	return out
}
