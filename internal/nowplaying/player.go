// Package nowplaying asks the desktop Spotify client what it is playing.
package nowplaying

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	logx "spotmylyrics/pkg/logx"
)

// ErrNoAnswer means the player is paused, closed or not running.
var ErrNoAnswer = errors.New("player has no current track")

// Player returns the raw "<artist>, <title>" answer of the player.
type Player interface {
	NowPlaying(ctx context.Context) (string, error)
}

type Config struct {
	// Backend is auto, mpris, osascript or command.
	Backend string
	// Service is the MPRIS bus name.
	Service string
	Command []string
	Timeout time.Duration
}

const DefaultService = "org.mpris.MediaPlayer2.spotify"

// New picks a backend. auto means mpris on linux, osascript on darwin and
// the configured command anywhere else.
func New(cfg Config, log logx.Logger) (Player, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" || backend == "auto" {
		backend = autoBackend(runtime.GOOS, len(cfg.Command) > 0)
	}
	log = log.With(logx.String("comp", "player"), logx.String("backend", backend))

	switch backend {
	case "mpris":
		svc := strings.TrimSpace(cfg.Service)
		if svc == "" {
			svc = DefaultService
		}
		return NewMPRIS(svc, cfg.Timeout, log), nil
	case "osascript":
		return NewOSAScript(cfg.Timeout), nil
	case "command":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("player.command is required for the command backend")
		}
		return NewCommand(cfg.Command, cfg.Timeout), nil
	case "":
		return nil, fmt.Errorf("no player backend for %s; set player.backend and player.command", runtime.GOOS)
	default:
		return nil, fmt.Errorf("unknown player backend %q", cfg.Backend)
	}
}

func autoBackend(goos string, haveCommand bool) string {
	switch {
	case haveCommand:
		return "command"
	case goos == "linux":
		return "mpris"
	case goos == "darwin":
		return "osascript"
	default:
		return ""
	}
}
