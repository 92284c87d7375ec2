package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/clipcapture/internal/ffmpeg"
)

func TestSessionFinalizeConcatenatesInOrder(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession(start)

	assert.True(t, s.Append([]byte("ab")))
	assert.False(t, s.Append(nil))
	assert.True(t, s.Append([]byte("cd")))
	assert.True(t, s.Append([]byte("e")))
	assert.Equal(t, 3, s.Chunks())
	assert.Equal(t, 5, s.Size())

	a, err := s.Finalize(PreferredProfile, start.Add(7*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), a.Data)
	assert.Equal(t, "video/webm;codecs=vp9,opus", a.MimeType)
	assert.Equal(t, "webm", a.Ext)
	assert.Equal(t, 7*time.Second, a.Duration)
	assert.Equal(t, s.ID, a.SessionID)
	assert.NotEmpty(t, a.ID)
	assert.Same(t, a, s.Artifact())
}

func TestSessionFinalizesOnce(t *testing.T) {
	s := NewSession(time.Now())
	s.Append([]byte("x"))

	_, err := s.Finalize(DefaultProfile, time.Now())
	require.NoError(t, err)
	assert.False(t, s.Recording())

	_, err = s.Finalize(DefaultProfile, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	assert.False(t, s.Append([]byte("late")), "stray chunk after finalize is dropped")
	assert.Equal(t, []byte("x"), s.Artifact().Data)
}

func TestSessionNegativeDurationClamped(t *testing.T) {
	start := time.Now()
	s := NewSession(start)
	a, err := s.Finalize(DefaultProfile, start.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), a.Duration)
}

func TestArtifactFilename(t *testing.T) {
	a := &Artifact{ID: "01HZX", Ext: "webm", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	assert.Equal(t, "clipcapture-recording.webm", a.Filename("", "clipcapture"))
	assert.Equal(t, "clip-20260102-030405-01hzx.webm", a.Filename("clip-{time}-{id}.{ext}", "clipcapture"))
}

func TestArtifactHumanSize(t *testing.T) {
	a := &Artifact{Data: make([]byte, 2000)}
	assert.Equal(t, 2000, a.Size())
	assert.Equal(t, "2.0 kB", a.HumanSize())
}

type fakeProber struct {
	caps *ffmpeg.Capabilities
	err  error
}

func (f fakeProber) Detect(context.Context) (*ffmpeg.Capabilities, error) {
	return f.caps, f.err
}

func TestNegotiate(t *testing.T) {
	full := fakeProber{caps: &ffmpeg.Capabilities{
		Encoders: []string{"libvpx-vp9", "libopus", "mpeg4"},
		Muxers:   []string{"webm", "matroska"},
	}}
	noVP9 := fakeProber{caps: &ffmpeg.Capabilities{
		Encoders: []string{"mpeg4", "libopus"},
		Muxers:   []string{"webm", "matroska"},
	}}
	ctx := context.Background()

	assert.NoError(t, Negotiate(ctx, full, PreferredProfile))
	assert.NoError(t, Negotiate(ctx, noVP9, DefaultProfile))

	err := Negotiate(ctx, noVP9, PreferredProfile)
	assert.ErrorIs(t, err, ErrUnsupportedProfile)
	assert.ErrorContains(t, err, "libvpx-vp9")

	detectErr := errors.New("ffmpeg not found")
	assert.ErrorIs(t, Negotiate(ctx, fakeProber{err: detectErr}, DefaultProfile), detectErr)
}

type stubEncoder struct{ profile Profile }

func (s *stubEncoder) Profile() Profile { return s.profile }
func (s *stubEncoder) Start(context.Context, Inputs, func([]byte), func(error)) error {
	return nil
}
func (s *stubEncoder) Stop() {}

func TestNewEncoderFallsBackOnUnsupportedProfile(t *testing.T) {
	var tried []string
	factory := func(_ context.Context, p Profile) (Encoder, error) {
		tried = append(tried, p.Name)
		if p.Name == PreferredProfile.Name {
			return nil, ErrUnsupportedProfile
		}
		return &stubEncoder{profile: p}, nil
	}

	enc, err := NewEncoder(context.Background(), factory)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, enc.Profile())
	assert.Equal(t, []string{PreferredProfile.Name, DefaultProfile.Name}, tried)
}

func TestNewEncoderFailsWhenNothingIsSupported(t *testing.T) {
	factory := func(context.Context, Profile) (Encoder, error) {
		return nil, ErrUnsupportedProfile
	}
	_, err := NewEncoder(context.Background(), factory)
	assert.ErrorIs(t, err, ErrUnsupportedProfile)
}

func TestNewEncoderFallsBackOnAnyConstructionError(t *testing.T) {
	boom := errors.New("boom")
	var tried []string
	factory := func(_ context.Context, p Profile) (Encoder, error) {
		tried = append(tried, p.Name)
		if p.Name == PreferredProfile.Name {
			return nil, boom
		}
		return &stubEncoder{profile: p}, nil
	}

	enc, err := NewEncoder(context.Background(), factory)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, enc.Profile())
	assert.Equal(t, []string{PreferredProfile.Name, DefaultProfile.Name}, tried)
}

func TestNewEncoderReportsLastFailure(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	factory := func(context.Context, Profile) (Encoder, error) {
		calls++
		return nil, boom
	}
	_, err := NewEncoder(context.Background(), factory)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestNewEncoderStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	factory := func(context.Context, Profile) (Encoder, error) {
		calls++
		return nil, ErrUnsupportedProfile
	}
	_, err := NewEncoder(ctx, factory)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestFFmpegEncoderArgs(t *testing.T) {
	enc := &FFmpegEncoder{profile: PreferredProfile, videoBitrate: "2M"}
	args := strings.Join(enc.Args(Inputs{FrameRate: 25}, "pipe:3"), " ")

	assert.Contains(t, args, "-f s16le -ar 48000 -ac 2 -i pipe:0")
	assert.Contains(t, args, "-f mjpeg -framerate 25 -i pipe:3")
	assert.Contains(t, args, "-c:v libvpx-vp9")
	assert.Contains(t, args, "-b:v 2M")
	assert.Contains(t, args, "-c:a libopus")
	assert.True(t, strings.HasSuffix(args, "-f webm pipe:1"))

	def := &FFmpegEncoder{profile: DefaultProfile}
	args = strings.Join(def.Args(Inputs{}, "pipe:3"), " ")
	assert.NotContains(t, args, "-c:v")
	assert.NotContains(t, args, "-c:a")
	assert.Contains(t, args, "-framerate 30")
	assert.True(t, strings.HasSuffix(args, "-f matroska pipe:1"))
}

func TestFFmpegFactoryNegotiates(t *testing.T) {
	prober := fakeProber{caps: &ffmpeg.Capabilities{Muxers: []string{"matroska"}}}
	factory := FFmpegFactory(prober, "")

	_, err := factory(context.Background(), PreferredProfile)
	assert.ErrorIs(t, err, ErrUnsupportedProfile)

	enc, err := factory(context.Background(), DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, enc.Profile())
	enc.Stop()
	enc.Stop()
}

func TestProfileFor(t *testing.T) {
	p, ok := ProfileFor("webm", "libvpx-vp9", "libopus")
	require.True(t, ok)
	assert.Equal(t, "webm", p.Container)
	assert.Equal(t, "video/webm;codecs=vp9,opus", p.MimeType)
	assert.Equal(t, "webm", p.Ext)

	p, ok = ProfileFor("mkv", "", "")
	require.True(t, ok)
	assert.Equal(t, "matroska", p.Container)
	assert.Equal(t, "video/x-matroska", p.MimeType)
	assert.Equal(t, "mkv", p.Ext)

	_, ok = ProfileFor("avi", "", "")
	assert.False(t, ok)
}

func TestFFmpegEncoderArgsFragmentsMP4(t *testing.T) {
	p, ok := ProfileFor("mp4", "libx264", "aac")
	require.True(t, ok)
	e := &FFmpegEncoder{profile: p}

	args := strings.Join(e.Args(Inputs{FrameRate: 30}, "pipe:3"), " ")
	assert.Contains(t, args, "-movflags frag_keyframe+empty_moov")
	assert.True(t, strings.HasSuffix(args, "-f mp4 pipe:1"))
}
