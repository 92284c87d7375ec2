package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
)

// Info describes a capture device found on the system.
type Info struct {
	Path string `json:"path"` // /dev/videoN or hw:C,D
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Discovery lists and checks local capture devices.
type Discovery struct {
	devDir  string
	sysDir  string
	arecord func(ctx context.Context) ([]byte, error)
}

// NewDiscovery inspects /dev, /sys and `arecord -l`.
func NewDiscovery() *Discovery {
	return &Discovery{
		devDir: "/dev",
		sysDir: "/sys/class/video4linux",
		arecord: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "arecord", "-l").Output()
		},
	}
}

// ListDevices returns camera nodes followed by ALSA capture devices.
func (d *Discovery) ListDevices(ctx context.Context) ([]Info, error) {
	cameras, err := d.listCameras()
	if err != nil {
		return nil, err
	}

	out, err := d.arecord(ctx)
	if err != nil {
		slog.Debug("Failed to list ALSA capture devices", "error", err)
		return cameras, nil
	}
	return append(cameras, parseArecordList(string(out))...), nil
}

func (d *Discovery) listCameras() ([]Info, error) {
	nodes, err := filepath.Glob(filepath.Join(d.devDir, "video*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list camera nodes: %w", err)
	}
	sort.Strings(nodes)

	var cameras []Info
	for _, node := range nodes {
		name := filepath.Base(node)
		if b, err := os.ReadFile(filepath.Join(d.sysDir, name, "name")); err == nil {
			name = strings.TrimSpace(string(b))
		}
		cameras = append(cameras, Info{Path: node, Name: name, Kind: KindVideo})
	}
	return cameras, nil
}

var arecordLine = regexp.MustCompile(`^card (\d+): \S+ \[([^\]]*)\], device (\d+): ([^\[]*)\[([^\]]*)\]`)

// parseArecordList parses `arecord -l` output into capture devices.
func parseArecordList(output string) []Info {
	var devices []Info
	for _, line := range strings.Split(output, "\n") {
		m := arecordLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		devices = append(devices, Info{
			Path: fmt.Sprintf("hw:%s,%s", m[1], m[3]),
			Name: strings.TrimSpace(m[2]),
			Kind: KindAudio,
		})
	}
	return devices
}

// Resolve maps a configured camera or microphone to a device path. A value
// that is already a path (or an ALSA name such as "default" or "hw:1,0") is
// validated as is; otherwise it is matched against device names and must be
// unambiguous.
func (d *Discovery) Resolve(ctx context.Context, kind Kind, spec string) (string, error) {
	if spec == "" {
		return "", fmt.Errorf("%w: no %s device configured", ErrDeviceUnavailable, kind)
	}
	if kind == KindAudio && (spec == "default" || strings.HasPrefix(spec, "hw:") || strings.HasPrefix(spec, "plughw:")) {
		return spec, nil
	}
	if strings.HasPrefix(spec, "/") {
		return spec, ValidateDevice(spec)
	}

	all, err := d.ListDevices(ctx)
	if err != nil {
		return "", err
	}
	matches := findDuplicatesInList(spec, kind, all)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s device not found: %s", ErrDeviceUnavailable, kind, spec)
	case 1:
		if kind == KindVideo {
			return matches[0].Path, ValidateDevice(matches[0].Path)
		}
		return matches[0].Path, nil
	default:
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.Path
		}
		return "", fmt.Errorf("%w: several %s devices are named '%s': %v, configure a path instead",
			ErrDeviceUnavailable, kind, spec, paths)
	}
}

// findDuplicatesInList returns every device of kind named exactly name.
func findDuplicatesInList(name string, kind Kind, all []Info) []Info {
	var found []Info
	for _, info := range all {
		if info.Kind == kind && info.Name == name {
			found = append(found, info)
		}
	}
	return found
}

// ValidateDevice checks that a device node exists and can be opened now.
func ValidateDevice(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		case errors.Is(err, syscall.EBUSY):
			return fmt.Errorf("%w: %s is in use by another application", ErrDeviceUnavailable, path)
		default:
			return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
		}
	}
	f.Close()
	return nil
}
