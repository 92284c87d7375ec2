package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTrack builds a track of n frames where every sample of frame i is i+1.
func testTrack(n int) *Track {
	samples := make([]int16, n*FrameSamples)
	for i := 0; i < n; i++ {
		for j := 0; j < FrameSamples; j++ {
			samples[i*FrameSamples+j] = int16(i + 1)
		}
	}
	return &Track{Name: "test.wav", Samples: samples}
}

type recordingWriter struct {
	frames [][]int16
}

func (w *recordingWriter) WriteFrame(f []int16) { w.frames = append(w.frames, f) }

func TestConstants(t *testing.T) {
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	assert.Equal(t, FrameSize*Channels, FrameSamples)
	assert.Equal(t, FrameSamples*2, FrameBytes)
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	assert.Equal(t, original, BytesToSamples(SamplesToBytes(original)))
}

func TestClip16(t *testing.T) {
	assert.Equal(t, int16(32767), Clip16(40000))
	assert.Equal(t, int16(-32768), Clip16(-40000))
	assert.Equal(t, int16(123), Clip16(123))
}

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Smoothstep(tt.input), "Smoothstep(%v)", tt.input)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.WriteFrame([]int16{1})
	q.WriteFrame([]int16{2})
	q.WriteFrame([]int16{3})

	assert.Equal(t, []int16{2}, <-q.Frames())
	assert.Equal(t, []int16{3}, <-q.Frames())

	q.Close()
	q.Close()
	q.WriteFrame([]int16{4})
	_, ok := <-q.Frames()
	assert.False(t, ok)
}

func TestHandleBindOnlyOnce(t *testing.T) {
	h := NewHandle(testTrack(3))
	require.NoError(t, h.Bind(&recordingWriter{}))
	assert.ErrorIs(t, h.Bind(&recordingWriter{}), ErrAlreadyBound)

	dup := h.Duplicate()
	assert.True(t, dup.Offscreen())
	assert.NoError(t, dup.Bind(&recordingWriter{}))
}

func TestHandleStepEmitsFramesUntilEnd(t *testing.T) {
	h := NewHandle(testTrack(3))
	w := &recordingWriter{}
	require.NoError(t, h.Bind(w))

	assert.False(t, h.step(), "paused handle must not advance")
	h.setPlaying(true)

	assert.False(t, h.step())
	assert.False(t, h.step())
	assert.True(t, h.step())
	assert.False(t, h.Playing())

	require.Len(t, w.frames, 3)
	for i, f := range w.frames {
		assert.Equal(t, int16(i+1), f[0])
	}
	assert.Equal(t, 3*FrameDuration, h.Position())
}

func TestPairAdvancesInLockstep(t *testing.T) {
	p := NewPair(testTrack(4))
	visible, shadow := &recordingWriter{}, &recordingWriter{}
	require.NoError(t, p.Visible.Bind(visible))
	require.NoError(t, p.Shadow.Bind(shadow))

	var ended atomic.Int32
	done := make(chan struct{})
	p.OnEnded(func() {
		ended.Add(1)
		close(done)
	})

	p.Visible.setPlaying(true)
	p.Shadow.setPlaying(true)

	for i := 0; i < 3; i++ {
		assert.False(t, p.advance())
	}
	assert.True(t, p.advance())
	assert.False(t, p.advance(), "handles are paused once the end is reached")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnEnded was not called")
	}
	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, visible.frames, shadow.frames)
	assert.Equal(t, p.Visible.Position(), p.Shadow.Position())
}

func TestPairRestartResetsBothHandles(t *testing.T) {
	p := NewPair(testTrack(500))
	p.Visible.Seek(time.Second)
	p.Shadow.Seek(2 * time.Second)

	p.Restart()
	defer p.Stop()

	assert.True(t, p.Running())
	assert.Less(t, p.Visible.Position(), 200*time.Millisecond)
	assert.Less(t, p.Shadow.Position(), 200*time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.Visible.Playing())
	assert.False(t, p.Shadow.Playing())
}

func TestLoadTrack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	decode := func(ctx context.Context, p string) ([]int16, error) {
		return make([]int16, FrameSamples*50), nil
	}
	track, err := LoadTrack(context.Background(), path, decode)
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", track.Name)
	assert.Equal(t, time.Second, track.Duration())

	_, err = LoadTrack(context.Background(), filepath.Join(dir, "missing.mp3"), decode)
	assert.Error(t, err)

	empty := func(ctx context.Context, p string) ([]int16, error) { return nil, nil }
	_, err = LoadTrack(context.Background(), path, empty)
	assert.ErrorIs(t, err, ErrEmptyTrack)

	failing := func(ctx context.Context, p string) ([]int16, error) { return nil, errors.New("boom") }
	_, err = LoadTrack(context.Background(), path, failing)
	assert.EqualError(t, err, "boom")
}
