// Package capture records one session: it feeds the camera and the mixed
// audio into an encoder, keeps the encoded chunks in order and assembles them
// into a single artifact when the session is finalized.
package capture

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ErrAlreadyFinalized = errors.New("capture session already finalized")

// Session collects the encoded output of one recording.
type Session struct {
	ID        string
	StartedAt time.Time

	mu        sync.Mutex
	chunks    [][]byte
	size      int
	finalized bool
	artifact  *Artifact
}

// NewSession starts collecting chunks for a recording begun at start.
func NewSession(start time.Time) *Session {
	return &Session{ID: uuid.NewString(), StartedAt: start}
}

// Append adds an encoded chunk. Empty chunks and chunks arriving after the
// session was finalized are dropped; the return value reports whether the
// chunk was kept.
func (s *Session) Append(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
	return true
}

// Chunks returns the number of chunks collected so far.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Size returns the number of encoded bytes collected so far.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Recording reports whether the session still accepts chunks.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finalized
}

// Finalize concatenates the chunks, in arrival order, into one artifact
// whose duration is the wall-clock time between start and stoppedAt. It
// succeeds exactly once.
func (s *Session) Finalize(profile Profile, stoppedAt time.Time) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, ErrAlreadyFinalized
	}
	s.finalized = true

	data := bytes.Join(s.chunks, nil)
	s.chunks = nil

	duration := stoppedAt.Sub(s.StartedAt)
	if duration < 0 {
		duration = 0
	}
	s.artifact = &Artifact{
		ID:        ulid.Make().String(),
		SessionID: s.ID,
		Data:      data,
		MimeType:  profile.MimeType,
		Ext:       profile.Ext,
		Duration:  duration,
		CreatedAt: stoppedAt,
	}
	return s.artifact, nil
}

// Artifact returns the finalized artifact, or nil before Finalize.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}
