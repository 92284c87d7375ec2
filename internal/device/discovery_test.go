package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arecordOutput = `**** List of CAPTURE Hardware Devices ****
card 0: PCH [HDA Intel PCH], device 0: ALC293 Analog [ALC293 Analog]
  Subdevices: 1/1
  Subdevice #0: subdevice #0
card 2: Device [USB Audio Device], device 0: USB Audio [USB Audio]
  Subdevices: 1/1
`

func TestParseArecordList(t *testing.T) {
	devices := parseArecordList(arecordOutput)
	require.Len(t, devices, 2)
	assert.Equal(t, Info{Path: "hw:0,0", Name: "HDA Intel PCH", Kind: KindAudio}, devices[0])
	assert.Equal(t, Info{Path: "hw:2,0", Name: "USB Audio Device", Kind: KindAudio}, devices[1])
}

func TestFindDuplicatesInList(t *testing.T) {
	all := []Info{
		{Path: "/dev/video0", Name: "Integrated Camera", Kind: KindVideo},
		{Path: "/dev/video2", Name: "Integrated Camera", Kind: KindVideo},
		{Path: "/dev/video4", Name: "USB Camera", Kind: KindVideo},
		{Path: "hw:1,0", Name: "USB Camera", Kind: KindAudio},
	}

	assert.Len(t, findDuplicatesInList("Integrated Camera", KindVideo, all), 2)
	assert.Len(t, findDuplicatesInList("USB Camera", KindVideo, all), 1)
	assert.Empty(t, findDuplicatesInList("Missing", KindVideo, all))
}

func newTestDiscovery(t *testing.T) *Discovery {
	t.Helper()
	dev := t.TempDir()
	sys := t.TempDir()

	for node, name := range map[string]string{"video0": "Front Camera", "video2": "Rear Camera", "video4": "Rear Camera"} {
		require.NoError(t, os.WriteFile(filepath.Join(dev, node), nil, 0600))
		require.NoError(t, os.MkdirAll(filepath.Join(sys, node), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(sys, node, "name"), []byte(name+"\n"), 0644))
	}

	return &Discovery{
		devDir: dev,
		sysDir: sys,
		arecord: func(context.Context) ([]byte, error) {
			return []byte(arecordOutput), nil
		},
	}
}

func TestListDevices(t *testing.T) {
	d := newTestDiscovery(t)
	devices, err := d.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 5)
	assert.Equal(t, "Front Camera", devices[0].Name)
	assert.Equal(t, KindVideo, devices[0].Kind)
	assert.Equal(t, KindAudio, devices[4].Kind)
}

func TestListDevicesWithoutALSA(t *testing.T) {
	d := newTestDiscovery(t)
	d.arecord = func(context.Context) ([]byte, error) { return nil, errors.New("arecord: not found") }

	devices, err := d.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 3)
}

func TestResolve(t *testing.T) {
	d := newTestDiscovery(t)
	ctx := context.Background()

	path, err := d.Resolve(ctx, KindVideo, "Front Camera")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.devDir, "video0"), path)

	_, err = d.Resolve(ctx, KindVideo, "Rear Camera")
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.ErrorContains(t, err, "several video devices")

	_, err = d.Resolve(ctx, KindVideo, "Side Camera")
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	_, err = d.Resolve(ctx, KindVideo, "")
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	dev, err := d.Resolve(ctx, KindAudio, "default")
	require.NoError(t, err)
	assert.Equal(t, "default", dev)

	dev, err = d.Resolve(ctx, KindAudio, "USB Audio Device")
	require.NoError(t, err)
	assert.Equal(t, "hw:2,0", dev)
}

func TestValidateDevice(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "video9")
	assert.ErrorIs(t, ValidateDevice(missing), ErrDeviceUnavailable)

	ok := filepath.Join(dir, "video0")
	require.NoError(t, os.WriteFile(ok, nil, 0600))
	assert.NoError(t, ValidateDevice(ok))
}

func TestSplitJPEG(t *testing.T) {
	frame := func(payload ...byte) []byte {
		f := append([]byte{0xFF, 0xD8}, payload...)
		return append(f, 0xFF, 0xD9)
	}
	stream := append([]byte{0x00, 0x01}, frame(1, 2, 3)...)
	stream = append(stream, frame(4, 0xFF, 0x00, 5)...)
	stream = append(stream, 0xFF, 0xD8, 9) // truncated

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, bytes.Clone(scanner.Bytes()))
	}
	require.NoError(t, scanner.Err())
	require.Len(t, frames, 2)
	assert.Equal(t, frame(1, 2, 3), frames[0])
	assert.Equal(t, frame(4, 0xFF, 0x00, 5), frames[1])
}

func TestClassifyFailure(t *testing.T) {
	assert.ErrorIs(t, classifyFailure("/dev/video0: Permission denied"), ErrPermissionDenied)
	assert.ErrorIs(t, classifyFailure("ioctl(VIDIOC_STREAMON): Device or resource busy"), ErrDeviceUnavailable)
	assert.ErrorIs(t, classifyFailure(""), ErrDeviceUnavailable)
}

func TestDetermineBackend(t *testing.T) {
	d := newTestDiscovery(t)
	assert.Equal(t, BackendTypeLavfi, determineBackend(Options{Backend: "lavfi"}, d))
	assert.Equal(t, BackendTypeV4L2, determineBackend(Options{Backend: "V4L2"}, d))
	assert.Equal(t, BackendTypeLavfi, determineBackend(Options{Backend: "auto"}, d))
	assert.Equal(t, BackendTypeV4L2, determineBackend(Options{
		Backend: "auto",
		Cameras: map[Facing]string{FacingUser: filepath.Join(d.devDir, "video0")},
	}, d))
}
