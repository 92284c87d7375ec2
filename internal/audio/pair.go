package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Pair keeps the visible handle and its off-screen duplicate in lockstep.
// Both handles are advanced by one ticker so they can never drift apart.
type Pair struct {
	Visible *Handle
	Shadow  *Handle

	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	onEnded func()
	ended   bool
}

// NewPair creates a visible handle for t plus its duplicate.
func NewPair(t *Track) *Pair {
	visible := NewHandle(t)
	return &Pair{
		Visible:  visible,
		Shadow:   visible.Duplicate(),
		interval: FrameDuration,
	}
}

// OnEnded registers a callback fired once when the music reaches its end.
// The callback runs on its own goroutine.
func (p *Pair) OnEnded(f func()) {
	p.mu.Lock()
	p.onEnded = f
	p.mu.Unlock()
}

// Restart resets both handles to zero and starts them together.
func (p *Pair) Restart() {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Visible.Seek(0)
	p.Shadow.Seek(0)
	p.Visible.setPlaying(true)
	p.Shadow.setPlaying(true)
	p.ended = false

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)

	slog.Debug("Music pair started", "track", p.Visible.Track().Name, "duration", p.Visible.Track().Duration())
}

// Stop halts both handles. It is safe to call repeatedly.
func (p *Pair) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	p.Visible.setPlaying(false)
	p.Shadow.setPlaying(false)
}

// Running reports whether the pair is currently playing.
func (p *Pair) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil && !p.ended
}

func (p *Pair) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p.advance() {
				return
			}
		}
	}
}

// advance steps both handles by one frame and reports whether the end of
// the music was reached.
func (p *Pair) advance() bool {
	visibleEnded := p.Visible.step()
	shadowEnded := p.Shadow.step()
	if !visibleEnded && !shadowEnded {
		return false
	}

	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return true
	}
	p.ended = true
	f := p.onEnded
	p.mu.Unlock()

	p.Visible.setPlaying(false)
	p.Shadow.setPlaying(false)
	slog.Debug("Music reached end of media", "track", p.Visible.Track().Name)
	if f != nil {
		go f()
	}
	return true
}
