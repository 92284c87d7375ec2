package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/clipcapture/internal/audio"
)

// selectionFile stores the last selected track inside the tracks directory.
const selectionFile = "selection.yaml"

// TrackInfo contains information about a music file
type TrackInfo struct {
	Name         string        `json:"name"`
	Path         string        `json:"path"`
	Size         int64         `json:"size"`
	SizeHuman    string        `json:"size_human"`
	ModTime      time.Time     `json:"mod_time"`
	ModTimeHuman string        `json:"mod_time_human"`
	Extension    string        `json:"extension"`
	Duration     time.Duration `json:"duration,omitempty"`
	IsSelected   bool          `json:"is_selected"`
}

// TrackSelection represents the track selection stored in selection.yaml
type TrackSelection struct {
	SelectedTrack string `yaml:"selected_track"`
	LastUpdated   string `yaml:"last_updated"`
}

func (c *Controller) supportedExtensions() map[string]bool {
	exts := c.opts.TrackExtensions
	if len(exts) == 0 {
		exts = []string{"mp3", "flac", "wav", "ogg", "m4a", "opus"}
	}
	supported := make(map[string]bool, len(exts))
	for _, ext := range exts {
		supported["."+strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	return supported
}

// ListTracks returns the music files of the tracks directory, the selected
// one first, then newest first.
func (c *Controller) ListTracks() ([]TrackInfo, error) {
	c.trackMutex.RLock()
	defer c.trackMutex.RUnlock()

	dir := c.opts.TracksDirectory
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tracks directory: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracks directory: %w", err)
	}

	c.mu.Lock()
	selected := ""
	if c.track != nil {
		selected = c.track.Path
	}
	c.mu.Unlock()

	supported := c.supportedExtensions()
	var tracks []TrackInfo
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		if !supported[ext] {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		path := filepath.Join(dir, file.Name())
		tracks = append(tracks, trackInfo(path, info, path == selected))
	}

	sort.Slice(tracks, func(i, j int) bool {
		return trackLess(tracks[i], tracks[j])
	})

	return tracks, nil
}

// trackLess orders the selected track first, then newest first.
func trackLess(a, b TrackInfo) bool {
	if a.IsSelected != b.IsSelected {
		return a.IsSelected
	}
	return a.ModTime.After(b.ModTime)
}

// SelectTrack decodes a music file and makes it the track recorded after the
// pre-roll. name is a path or a file of the tracks directory.
func (c *Controller) SelectTrack(ctx context.Context, name string) (*TrackInfo, error) {
	c.mu.Lock()
	busy := c.status != StatusStandby
	c.mu.Unlock()
	if busy {
		return nil, ErrAlreadyRecording
	}

	path := c.resolveTrack(name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("music track not found: %s", name)
	}
	if !c.supportedExtensions()[strings.ToLower(filepath.Ext(path))] {
		return nil, fmt.Errorf("unsupported music file: %s", filepath.Base(path))
	}

	track, err := audio.LoadTrack(ctx, path, c.deps.Decoder)
	if err != nil {
		c.setLastError(fmt.Sprintf("Failed to load music track: %v", err))
		return nil, err
	}

	c.mu.Lock()
	if c.status != StatusStandby {
		c.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	c.track = track
	c.mu.Unlock()

	if err := c.saveSelection(path); err != nil {
		slog.Warn("Failed to persist track selection", "error", err)
	}
	c.clearLastError()

	slog.Info("Music track selected", "track", track.Name, "duration", track.Duration())
	ti := trackInfo(path, info, true)
	ti.Duration = track.Duration()
	return &ti, nil
}

// RestoreSelection reselects the track saved by a previous SelectTrack. It
// does nothing when no selection was saved.
func (c *Controller) RestoreSelection(ctx context.Context) error {
	name, err := c.loadSelection()
	if err != nil || name == "" {
		return err
	}
	_, err = c.SelectTrack(ctx, name)
	return err
}

func (c *Controller) resolveTrack(name string) string {
	if filepath.IsAbs(name) || c.opts.TracksDirectory == "" {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(c.opts.TracksDirectory, filepath.Base(name))
}

func (c *Controller) selectionPath() string {
	if c.opts.TracksDirectory == "" {
		return ""
	}
	return filepath.Join(c.opts.TracksDirectory, selectionFile)
}

func (c *Controller) loadSelection() (string, error) {
	path := c.selectionPath()
	if path == "" {
		return "", nil
	}

	c.trackMutex.RLock()
	defer c.trackMutex.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No selection file = no selection
		}
		return "", fmt.Errorf("failed to read track selection: %w", err)
	}

	var sel TrackSelection
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return "", fmt.Errorf("failed to parse track selection: %w", err)
	}

	return sel.SelectedTrack, nil
}

func (c *Controller) saveSelection(trackPath string) error {
	path := c.selectionPath()
	if path == "" {
		return nil
	}

	c.trackMutex.Lock()
	defer c.trackMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tracks directory: %w", err)
	}

	data, err := yaml.Marshal(&TrackSelection{
		SelectedTrack: trackPath,
		LastUpdated:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal track selection: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write track selection: %w", err)
	}

	return nil
}

func trackInfo(path string, info os.FileInfo, selected bool) TrackInfo {
	ext := strings.ToLower(filepath.Ext(path))
	return TrackInfo{
		Name:         filepath.Base(path),
		Path:         path,
		Size:         info.Size(),
		SizeHuman:    humanize.Bytes(uint64(info.Size())),
		ModTime:      info.ModTime(),
		ModTimeHuman: humanize.Time(info.ModTime()),
		Extension:    strings.TrimPrefix(ext, "."),
		IsSelected:   selected,
	}
}
