package audio

import "sync"

// FrameWriter accepts PCM frames pushed by a playing handle.
type FrameWriter interface {
	WriteFrame(frame []int16)
}

// Queue is a bounded frame buffer. Writes never block: when the reader
// falls behind the oldest frame is dropped.
type Queue struct {
	mu     sync.Mutex
	ch     chan []int16
	closed bool
}

// NewQueue creates a queue holding up to size frames.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan []int16, size)}
}

// WriteFrame enqueues frame, dropping the oldest buffered frame if full.
func (q *Queue) WriteFrame(frame []int16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for {
		select {
		case q.ch <- frame:
			return
		default:
		}
		select {
		case <-q.ch:
		default:
		}
	}
}

// Frames returns the read side of the queue. It is closed by Close.
func (q *Queue) Frames() <-chan []int16 {
	return q.ch
}

// Close closes the read side. Later writes are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
