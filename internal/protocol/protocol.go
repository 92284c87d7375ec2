// Package protocol drives which input is recorded over the life of a
// session: microphone during the pre-roll, then the music track, with manual
// toggling once the automatic switch has happened.
package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/clock"
	"github.com/audiolibrelab/clipcapture/internal/mix"
)

// DefaultPreRoll is the ambient microphone window before the music is
// recorded. Observed product revisions used 0, 3 and 5 seconds.
const DefaultPreRoll = 3 * time.Second

// State is a protocol state.
type State string

const (
	StateIdle        State = "IDLE"
	StatePreRoll     State = "PRE_ROLL"
	StateActiveMusic State = "ACTIVE_MUSIC"
	StateActiveMic   State = "ACTIVE_MIC"
	StateStopped     State = "STOPPED"
)

// Active reports whether the state belongs to a running capture.
func (s State) Active() bool {
	return s == StatePreRoll || s == StateActiveMusic || s == StateActiveMic
}

// Source returns the input recorded in this state, or "" when none is.
func (s State) Source() mix.Source {
	switch s {
	case StatePreRoll, StateActiveMic:
		return mix.Mic
	case StateActiveMusic:
		return mix.Music
	default:
		return ""
	}
}

var (
	ErrNotIdle       = errors.New("protocol already started")
	ErrNotActive     = errors.New("protocol is not active")
	ErrSwitchPending = errors.New("automatic switch to music has not happened yet")
)

// Selector applies a source selection to the mixing graph.
type Selector interface {
	Select(s mix.Source) error
}

// Protocol is the source-switch state machine for one session.
type Protocol struct {
	clock   clock.Clock
	preRoll time.Duration

	mu        sync.Mutex
	state     State
	gains     Selector
	timer     clock.Timer
	gen       uint64
	switchAt  time.Time
	observers []func(State)
}

// New creates an idle protocol. A negative pre-roll is treated as zero.
func New(c clock.Clock, preRoll time.Duration) *Protocol {
	if c == nil {
		c = clock.Real{}
	}
	if preRoll < 0 {
		preRoll = 0
	}
	return &Protocol{clock: c, preRoll: preRoll, state: StateIdle}
}

// OnChange registers an observer called after every transition, outside the
// protocol lock.
func (p *Protocol) OnChange(f func(State)) {
	p.mu.Lock()
	p.observers = append(p.observers, f)
	p.mu.Unlock()
}

// State returns the current state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PreRoll returns the configured pre-roll window.
func (p *Protocol) PreRoll() time.Duration {
	return p.preRoll
}

// Remaining returns the time left before the automatic switch, zero once it
// happened or when not in pre-roll.
func (p *Protocol) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePreRoll {
		return 0
	}
	if d := p.switchAt.Sub(p.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Begin moves Idle to PreRoll on the given graph: mic at full gain, music
// silent, and the automatic switch armed.
func (p *Protocol) Begin(gains Selector) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotIdle, p.state)
	}
	if err := gains.Select(mix.Mic); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("select mic for pre-roll: %w", err)
	}

	p.gains = gains
	p.gen++
	p.state = StatePreRoll
	p.switchAt = p.clock.Now().Add(p.preRoll)

	if p.preRoll == 0 {
		p.switchLocked()
		p.mu.Unlock()
		p.notify(StatePreRoll)
		p.notify(StateActiveMusic)
		return nil
	}

	gen := p.gen
	p.timer = p.clock.AfterFunc(p.preRoll, func() { p.fire(gen) })
	p.mu.Unlock()

	slog.Debug("Pre-roll started", "pre_roll", p.preRoll)
	p.notify(StatePreRoll)
	return nil
}

// fire is the pre-roll timer callback. A timer that fires late, after a stop
// or for an earlier session, does nothing.
func (p *Protocol) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != StatePreRoll {
		p.mu.Unlock()
		slog.Debug("Ignoring stale pre-roll timer", "gen", gen)
		return
	}
	p.timer = nil
	p.switchLocked()
	p.mu.Unlock()

	p.notify(StateActiveMusic)
}

func (p *Protocol) switchLocked() {
	if err := p.gains.Select(mix.Music); err != nil {
		slog.Warn("Automatic switch to music failed", "error", err)
	}
	p.state = StateActiveMusic
	slog.Info("Switched recording source", "source", mix.Music, "reason", "pre-roll elapsed")
}

// Toggle flips between music and microphone. It is only valid after the
// automatic switch.
func (p *Protocol) Toggle() (State, error) {
	p.mu.Lock()
	var next State
	switch p.state {
	case StateActiveMusic:
		next = StateActiveMic
	case StateActiveMic:
		next = StateActiveMusic
	case StatePreRoll:
		p.mu.Unlock()
		return StatePreRoll, ErrSwitchPending
	default:
		s := p.state
		p.mu.Unlock()
		return s, ErrNotActive
	}

	if err := p.gains.Select(next.Source()); err != nil {
		s := p.state
		p.mu.Unlock()
		return s, fmt.Errorf("select %s: %w", next.Source(), err)
	}
	p.state = next
	p.mu.Unlock()

	slog.Info("Switched recording source", "source", next.Source(), "reason", "manual toggle")
	p.notify(next)
	return next, nil
}

// Stop ends the protocol from any active state and cancels the pending
// switch. Stopping an idle or stopped protocol is a no-op.
func (p *Protocol) Stop() {
	p.mu.Lock()
	if !p.state.Active() {
		p.mu.Unlock()
		return
	}
	p.cancelLocked()
	p.state = StateStopped
	p.gains = nil
	p.mu.Unlock()

	p.notify(StateStopped)
}

// Reset returns the protocol to Idle so it can drive another session.
func (p *Protocol) Reset() {
	p.mu.Lock()
	p.cancelLocked()
	p.gen++
	p.gains = nil
	changed := p.state != StateIdle
	p.state = StateIdle
	p.mu.Unlock()

	if changed {
		p.notify(StateIdle)
	}
}

func (p *Protocol) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Protocol) notify(s State) {
	p.mu.Lock()
	observers := append([]func(State){}, p.observers...)
	p.mu.Unlock()
	for _, f := range observers {
		f(s)
	}
}
