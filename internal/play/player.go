package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// preferredPlayers lists the video players tried, in order.
var preferredPlayers = []string{"mpv", "vlc", "ffplay"}

type Player struct {
	// name forces a player; empty picks the first one installed.
	name     string
	lookPath func(string) (string, error)
}

func New(name string) *Player {
	return &Player{name: name, lookPath: exec.LookPath}
}

// Play opens a finished recording and blocks until the player exits.
func (p *Player) Play(ctx context.Context, file string) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("recording not found: %s", file)
	}

	player, err := p.findPlayer()
	if err != nil {
		return fmt.Errorf("no suitable video player found: %w", err)
	}

	args, err := playerArgs(player, file)
	if err != nil {
		return err
	}

	slog.Info("Playing recording", "file", file, "player", player)

	cmd := exec.CommandContext(ctx, player, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	slog.Debug("Playback completed", "file", file)
	return nil
}

func playerArgs(player, file string) ([]string, error) {
	switch player {
	case "vlc":
		return []string{"--play-and-exit", file}, nil
	case "mpv":
		return []string{"--keep-open=no", file}, nil
	case "ffplay":
		return []string{"-autoexit", "-loglevel", "error", file}, nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}

func (p *Player) findPlayer() (string, error) {
	if p.name != "" {
		if _, err := p.lookPath(p.name); err != nil {
			return "", fmt.Errorf("%s not found in PATH", p.name)
		}
		return p.name, nil
	}

	for _, player := range preferredPlayers {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no video player found (tried: %s)", strings.Join(preferredPlayers, ", "))
}
