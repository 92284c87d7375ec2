package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend hands out in-memory tracks and remembers every one of them.
type fakeBackend struct {
	mu            sync.Mutex
	authCalls     int
	authErr       error
	videoErr      error
	audioErr      error
	videos        []*VideoTrack
	audios        []*AudioTrack
	openVideoHook func(facing Facing)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Authorize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	return f.authErr
}

func (f *fakeBackend) OpenVideo(_ context.Context, facing Facing) (*VideoTrack, error) {
	if f.openVideoHook != nil {
		f.openVideoHook(facing)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	t := NewTrack[[]byte](KindVideo, string(facing), nil)
	f.videos = append(f.videos, t)
	return t, nil
}

func (f *fakeBackend) OpenAudio(context.Context) (*AudioTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	t := NewTrack[[]int16](KindAudio, "mic", nil)
	f.audios = append(f.audios, t)
	return t, nil
}

// live counts tracks that were opened and not stopped.
func (f *fakeBackend) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.videos {
		if !t.Stopped() {
			n++
		}
	}
	for _, t := range f.audios {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

func TestAcquireOpensVideoAndAudio(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, FacingUser)

	s, err := m.Acquire(context.Background(), FacingUser)
	require.NoError(t, err)
	assert.True(t, s.Live())
	assert.Equal(t, FacingUser, s.Facing)
	assert.Same(t, s, m.Current())
	assert.Equal(t, 2, b.live())
}

func TestAcquireStopsHalfOpenedStream(t *testing.T) {
	b := &fakeBackend{audioErr: ErrPermissionDenied}
	m := NewManager(b, FacingUser)

	_, err := m.Acquire(context.Background(), FacingUser)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Nil(t, m.Current())
	assert.Equal(t, 0, b.live(), "video track opened before the failure is stopped")
}

func TestAuthorizeOnce(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, FacingUser)

	for i := 0; i < 3; i++ {
		_, err := m.Acquire(context.Background(), FacingUser)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, b.authCalls)
}

func TestAuthorizeDeniedIsRetried(t *testing.T) {
	b := &fakeBackend{authErr: ErrPermissionDenied}
	m := NewManager(b, FacingUser)

	_, err := m.Acquire(context.Background(), FacingUser)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	b.authErr = nil
	_, err = m.Acquire(context.Background(), FacingUser)
	require.NoError(t, err)
	assert.Equal(t, 2, b.authCalls)
}

func TestSwitchFacingReleasesPreviousTracks(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, FacingUser)

	first, err := m.Acquire(context.Background(), FacingUser)
	require.NoError(t, err)

	second, err := m.SwitchFacing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FacingEnvironment, second.Facing)
	assert.False(t, first.Live())
	assert.Equal(t, 2, b.live(), "only the new stream is open")

	third, err := m.SwitchFacing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FacingUser, third.Facing)
	assert.Equal(t, 2, b.live())
}

func TestSupersededSwitchIsStopped(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, FacingUser)
	_, err := m.Acquire(context.Background(), FacingUser)
	require.NoError(t, err)

	// While the first switch is opening its camera a second one is issued.
	var nested *Stream
	var nestedErr error
	calls := 0
	b.openVideoHook = func(Facing) {
		calls++
		if calls == 1 {
			nested, nestedErr = m.SwitchFacing(context.Background())
		}
	}

	_, err = m.SwitchFacing(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)

	require.NoError(t, nestedErr)
	assert.Equal(t, FacingUser, nested.Facing, "latest request wins")
	assert.Same(t, nested, m.Current())
	assert.Equal(t, 2, b.live(), "superseded tracks are stopped")
}

func TestReleaseIsIdempotent(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, FacingUser)
	s, err := m.Acquire(context.Background(), FacingUser)
	require.NoError(t, err)

	m.Release()
	m.Release()
	assert.False(t, s.Live())
	assert.Nil(t, m.Current())
	assert.Equal(t, 0, b.live())
}

func TestInvalidFacing(t *testing.T) {
	m := NewManager(&fakeBackend{}, "sideways")
	assert.Equal(t, FacingUser, m.Facing())

	_, err := m.Acquire(context.Background(), "sideways")
	assert.Error(t, err)
}

func TestTrackFanOut(t *testing.T) {
	track := NewTrack[[]int16](KindAudio, "mic", nil)
	a, cancelA := track.Subscribe()
	b, cancelB := track.Subscribe()
	defer cancelB()

	track.Publish([]int16{1})
	assert.Equal(t, []int16{1}, <-a)
	assert.Equal(t, []int16{1}, <-b)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, track.Subscribers())
}

func TestTrackStopClosesSubscribers(t *testing.T) {
	stopped := 0
	track := NewTrack[[]byte](KindVideo, "cam", func() { stopped++ })
	ch, cancel := track.Subscribe()

	track.Stop()
	track.Stop()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 1, stopped)

	late, _ := track.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	select {
	case <-track.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestTrackPublishDoesNotBlock(t *testing.T) {
	track := NewTrack[[]int16](KindAudio, "mic", nil)
	_, cancel := track.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer*4; i++ {
		track.Publish([]int16{int16(i)})
	}
}

func TestFacingOpposite(t *testing.T) {
	assert.Equal(t, FacingEnvironment, FacingUser.Opposite())
	assert.Equal(t, FacingUser, FacingEnvironment.Opposite())
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrPermissionDenied, ErrDeviceUnavailable))
}
