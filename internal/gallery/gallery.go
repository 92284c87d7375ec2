// Package gallery keeps the most recent recordings of the running process in
// memory until the user downloads or discards them.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/capture"
)

// DefaultCapacity is the number of recordings kept before the oldest is
// evicted.
const DefaultCapacity = 10

// DefaultDownloadDelay spaces successive downloads.
const DefaultDownloadDelay = 200 * time.Millisecond

var ErrNotFound = errors.New("recording not found")

// Entry is one recording in the gallery.
type Entry struct {
	ID       string            `json:"id"`
	Filename string            `json:"filename"`
	Duration time.Duration     `json:"duration"`
	AddedAt  time.Time         `json:"added_at"`
	Artifact *capture.Artifact `json:"-"`
}

// Gallery is a bounded, ordered collection of recordings, oldest first.
type Gallery struct {
	capacity      int
	downloadDelay time.Duration

	mu      sync.RWMutex
	entries []*Entry
}

// New creates a gallery holding at most capacity recordings.
func New(capacity int, downloadDelay time.Duration) *Gallery {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if downloadDelay < 0 {
		downloadDelay = 0
	}
	return &Gallery{capacity: capacity, downloadDelay: downloadDelay}
}

// Add appends a recording, evicting the oldest ones over capacity.
func (g *Gallery) Add(a *capture.Artifact, filename string, duration time.Duration) *Entry {
	e := &Entry{
		ID:       a.ID,
		Filename: filename,
		Duration: duration,
		AddedAt:  time.Now(),
		Artifact: a,
	}

	g.mu.Lock()
	g.entries = append(g.entries, e)
	var evicted []*Entry
	if over := len(g.entries) - g.capacity; over > 0 {
		evicted = append(evicted, g.entries[:over]...)
		g.entries = append([]*Entry(nil), g.entries[over:]...)
	}
	g.mu.Unlock()

	for _, old := range evicted {
		slog.Info("Gallery full, evicted oldest recording", "id", old.ID, "filename", old.Filename)
	}
	slog.Debug("Recording added to gallery", "id", e.ID, "size", a.HumanSize(), "duration", duration)
	return e
}

// List returns the entries, oldest first.
func (g *Gallery) List() []*Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Entry(nil), g.entries...)
}

// Len returns the number of entries.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Capacity returns the maximum number of entries.
func (g *Gallery) Capacity() int {
	return g.capacity
}

// Get returns the entry with the given ID.
func (g *Gallery) Get(id string) (*Entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Latest returns the most recent entry.
func (g *Gallery) Latest() (*Entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.entries) == 0 {
		return nil, ErrNotFound
	}
	return g.entries[len(g.entries)-1], nil
}

// Remove discards one entry.
func (g *Gallery) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e.ID == id {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// RemoveAll discards every entry.
func (g *Gallery) RemoveAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.entries)
	g.entries = nil
	return n
}

// Download writes one entry into dir and returns the written path. An
// existing file is never overwritten.
func (g *Gallery) Download(id, dir string) (string, error) {
	e, err := g.Get(id)
	if err != nil {
		return "", err
	}
	return writeEntry(e, dir, nil)
}

// DownloadAll writes every entry into dir, one after the other with the
// configured delay between writes. Filenames are made unique. It returns the
// paths written before any error.
func (g *Gallery) DownloadAll(ctx context.Context, dir string) ([]string, error) {
	entries := g.List()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	used := make(map[string]bool)
	var written []string
	for i, e := range entries {
		if i > 0 && g.downloadDelay > 0 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(g.downloadDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}

		path, err := writeEntry(e, dir, used)
		if err != nil {
			return written, err
		}
		written = append(written, path)
		slog.Info("Recording downloaded", "id", e.ID, "path", path)
	}
	return written, nil
}

func writeEntry(e *Entry, dir string, used map[string]bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	name, err := uniqueName(dir, e.Filename, used)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(e.Artifact.Data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if used != nil {
		used[name] = true
	}
	return path, nil
}

// maxNameAttempts bounds the " (n)" suffixes tried for one file.
const maxNameAttempts = 1000

// uniqueName returns name, or name with a " (n)" suffix before the
// extension, so that it collides neither with a file in dir nor with a name
// already handed out.
func uniqueName(dir, name string, used map[string]bool) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; n <= maxNameAttempts; n++ {
		if !used[candidate] {
			_, err := os.Stat(filepath.Join(dir, candidate))
			if os.IsNotExist(err) {
				return candidate, nil
			}
			if err != nil {
				return "", fmt.Errorf("failed to check %s: %w", candidate, err)
			}
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	return "", fmt.Errorf("no free filename for %s in %s after %d attempts", name, dir, maxNameAttempts)
}
