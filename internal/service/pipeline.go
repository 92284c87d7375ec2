package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/gallery"
)

// PipelineOptions tune RunPipeline.
type PipelineOptions struct {
	// MaxDuration stops a recording that is still running after this long.
	// Zero records until the music track ends.
	MaxDuration time.Duration
	// OutputDirectory receives downloaded recordings.
	OutputDirectory string
}

// RunPipeline executes a sequence of operations (r=record, d=download, p=play)
func (c *Controller) RunPipeline(ctx context.Context, steps string, opts PipelineOptions) error {
	var downloaded []string
	for _, step := range steps {
		switch step {
		case 'r':
			if err := c.recordOnce(ctx, opts.MaxDuration); err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
		case 'd':
			paths, err := c.deps.Gallery.DownloadAll(ctx, opts.OutputDirectory)
			if err != nil {
				return fmt.Errorf("pipeline download failed: %w", err)
			}
			downloaded = paths
		case 'p':
			file, err := c.latestFile(opts.OutputDirectory, downloaded)
			if err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
			if c.deps.Player == nil {
				return fmt.Errorf("pipeline play failed: no player configured")
			}
			if err := c.deps.Player.Play(ctx, file); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, d=download, p=play)", step)
		}
	}
	return nil
}

// recordOnce runs one full cycle: countdown, capture until the music ends,
// maxDuration elapses or ctx is done, then finalize.
func (c *Controller) recordOnce(ctx context.Context, maxDuration time.Duration) error {
	before := c.latestID()
	if err := c.Start(ctx); err != nil {
		return err
	}

	waitCtx := ctx
	if maxDuration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.Countdown+maxDuration)
		defer cancel()
	}

	if err := c.Wait(waitCtx); err != nil {
		slog.Info("Stopping recording", "reason", err)
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.Stop(stopCtx); err != nil && !errors.Is(err, ErrNotRecording) {
			return err
		}
	}

	if c.latestID() == before {
		if msg := c.GetLastError(); msg != "" {
			return errors.New(msg)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (c *Controller) latestID() string {
	if e, err := c.deps.Gallery.Latest(); err == nil {
		return e.ID
	}
	return ""
}

// latestFile returns the newest downloaded recording, downloading the
// latest gallery entry when nothing was downloaded yet.
func (c *Controller) latestFile(dir string, downloaded []string) (string, error) {
	if len(downloaded) > 0 {
		return downloaded[len(downloaded)-1], nil
	}
	latest, err := c.deps.Gallery.Latest()
	if err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			return "", fmt.Errorf("no recording to play")
		}
		return "", err
	}
	return c.deps.Gallery.Download(latest.ID, dir)
}
