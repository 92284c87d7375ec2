package device

import (
	"sync"

	"github.com/google/uuid"
)

// Kind identifies what a track carries.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

const subscriberBuffer = 16

// Track is one live media track. Frames published by the backend fan out to
// every subscriber; a slow subscriber loses frames instead of stalling the
// others. Consumers only read; stopping is reserved to the stream owner.
type Track[T any] struct {
	id    string
	kind  Kind
	label string

	mu      sync.Mutex
	subs    map[int]chan T
	nextSub int
	stopped bool
	onStop  func()
	done    chan struct{}
}

// NewTrack creates a live track. onStop, if set, runs once when the track is
// stopped and must release the underlying device.
func NewTrack[T any](kind Kind, label string, onStop func()) *Track[T] {
	return &Track[T]{
		id:     uuid.NewString(),
		kind:   kind,
		label:  label,
		subs:   make(map[int]chan T),
		onStop: onStop,
		done:   make(chan struct{}),
	}
}

func (t *Track[T]) ID() string    { return t.id }
func (t *Track[T]) Kind() Kind    { return t.kind }
func (t *Track[T]) Label() string { return t.label }

// Publish delivers frame to every subscriber without blocking.
func (t *Track[T]) Publish(frame T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribe returns a frame channel and a cancel func. The channel is closed
// by cancel or when the track stops. Subscribing to a stopped track yields a
// closed channel.
func (t *Track[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	if t.stopped {
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (t *Track[T]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Stop ends the track: subscribers are closed and the device released.
// Stop is idempotent.
func (t *Track[T]) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	onStop := t.onStop
	close(t.done)
	t.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

// Stopped reports whether Stop has been called.
func (t *Track[T]) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Done is closed when the track stops.
func (t *Track[T]) Done() <-chan struct{} {
	return t.done
}

// VideoTrack carries encoded MJPEG frames.
type VideoTrack = Track[[]byte]

// AudioTrack carries 20ms interleaved s16 stereo frames.
type AudioTrack = Track[[]int16]
