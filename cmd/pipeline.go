package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/audiolibrelab/clipcapture/internal/service"
)

// newService creates the controller and selects the music track: the given
// name, or the one saved by the previous run.
func newService(ctx context.Context, track string) (*service.Controller, error) {
	svc := service.New(cfg, cfgFile)

	if track == "" {
		if err := svc.RestoreSelection(ctx); err != nil {
			slog.Warn("Could not restore the previous music track", "error", err)
		}
		return svc, nil
	}

	info, err := svc.SelectTrack(ctx, track)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to select track: %w", err)
	}
	fmt.Printf("Music track: %s (%s)\n", info.Name, info.Duration.Round(time.Second))
	return svc, nil
}

// pipelineOptions reads the output and duration overrides shared by the
// recording commands.
func pipelineOptions(flags interface {
	GetString(string) (string, error)
	GetDuration(string) (time.Duration, error)
}) service.PipelineOptions {
	opts := service.PipelineOptions{OutputDirectory: cfg.Output.Directory}
	if out, _ := flags.GetString("output"); out != "" {
		opts.OutputDirectory = out
	}
	if d, err := flags.GetDuration("max-duration"); err == nil {
		opts.MaxDuration = d
	}
	return opts
}

// executePipeline runs the steps of the pipeline after startStep.
func executePipeline(ctx context.Context, svc service.Service, startStep rune, opts service.PipelineOptions) error {
	if pipeline == "" {
		return nil
	}

	steps := strings.ToLower(pipeline)
	startIndex := strings.IndexRune(steps, startStep)
	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	rest := steps[startIndex+1:]
	if rest == "" {
		return nil
	}
	fmt.Printf("Pipeline: executing steps '%s'...\n", rest)
	return svc.RunPipeline(ctx, rest, opts)
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'd': true, // download
		'p': true, // play
	}

	for _, step := range strings.ToLower(pipeline) {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, d=download, p=play)", step)
		}
	}

	return nil
}
