// Package ffmpeg locates the ffmpeg binary, inspects what it can encode and
// runs it as a managed child process.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

// BinaryEnv overrides the ffmpeg binary location.
const BinaryEnv = "CLIPCAPTURE_FFMPEG_BINARY"

// FindBinary returns the path of name, looking at envVar first, then the
// current directory, then PATH.
func FindBinary(name, envVar string) (string, error) {
	if envVar != "" {
		if p := os.Getenv(envVar); p != "" && isExecutable(p) {
			return p, nil
		}
	}
	if local := "./" + name; isExecutable(local) {
		return local, nil
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// Binary returns the ffmpeg path, falling back to the bare name so exec can
// report a useful error.
func Binary() string {
	if p, err := FindBinary("ffmpeg", BinaryEnv); err == nil {
		return p
	}
	return "ffmpeg"
}

// Capabilities is what the installed ffmpeg can produce.
type Capabilities struct {
	Path     string   `json:"ffmpeg_path"`
	Encoders []string `json:"encoders"`
	Muxers   []string `json:"muxers"`
}

// HasEncoder reports whether an encoder is available.
func (c *Capabilities) HasEncoder(name string) bool {
	return c != nil && slices.Contains(c.Encoders, name)
}

// HasMuxer reports whether an output container is available.
func (c *Capabilities) HasMuxer(name string) bool {
	return c != nil && slices.Contains(c.Muxers, name)
}

// Detector caches the capabilities of the ffmpeg binary.
type Detector struct {
	mu           sync.RWMutex
	caps         *Capabilities
	lastDetected time.Time
	cacheTTL     time.Duration
	find         func() (string, error)
	run          func(ctx context.Context, path string, args ...string) ([]byte, error)
}

// NewDetector creates a detector with a five minute cache.
func NewDetector() *Detector {
	return &Detector{
		cacheTTL: 5 * time.Minute,
		find: func() (string, error) {
			return FindBinary("ffmpeg", BinaryEnv)
		},
		run: func(ctx context.Context, path string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, path, args...).Output()
		},
	}
}

// Detect returns the cached capabilities, probing ffmpeg when stale.
func (d *Detector) Detect(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.caps != nil && time.Since(d.lastDetected) < d.cacheTTL {
		caps := d.caps
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.caps != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.caps, nil
	}

	path, err := d.find()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	out, err := d.run(ctx, path, "-hide_banner", "-encoders")
	if err != nil {
		return nil, fmt.Errorf("listing ffmpeg encoders: %w", err)
	}
	caps := &Capabilities{Path: path, Encoders: ParseEncoders(string(out))}

	out, err = d.run(ctx, path, "-hide_banner", "-muxers")
	if err != nil {
		return nil, fmt.Errorf("listing ffmpeg muxers: %w", err)
	}
	caps.Muxers = ParseMuxers(string(out))

	d.caps = caps
	d.lastDetected = time.Now()
	return caps, nil
}

// Clear drops the cached capabilities.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = nil
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output.
// Lines look like " V....D libvpx-vp9   libvpx VP9".
func ParseEncoders(output string) []string {
	var encoders []string
	inList := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}
		if parts := strings.Fields(line[6:]); len(parts) > 0 {
			encoders = append(encoders, parts[0])
		}
	}
	return encoders
}

// ParseMuxers extracts muxer names from `ffmpeg -muxers` output. Lines look
// like "  E webm            WebM"; a name may list aliases separated by
// commas.
func ParseMuxers(output string) []string {
	var muxers []string
	inList := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "--") && !inList {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.Contains(fields[0], "E") {
			continue
		}
		muxers = append(muxers, strings.Split(fields[1], ",")...)
	}
	return muxers
}
