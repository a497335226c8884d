package nowplaying

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command runs an external helper and takes the last line it prints as the
// answer. Helpers print PAUSED, NOT RUNNING or CLOSED when there is nothing
// to report.
type Command struct {
	argv    []string
	timeout time.Duration
}

func NewCommand(argv []string, timeout time.Duration) *Command {
	return &Command{argv: append([]string(nil), argv...), timeout: timeout}
}

func (c *Command) NowPlaying(ctx context.Context) (string, error) {
	if len(c.argv) == 0 {
		return "", errors.New("empty player command")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	// Grandchildren may hold the output pipe open after a kill.
	cmd.WaitDelay = 500 * time.Millisecond
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("player command: %w", ctx.Err())
		}
		return "", fmt.Errorf("player command %s: %w", c.argv[0], err)
	}
	return parseOutput(string(out))
}

var noAnswerMarkers = map[string]bool{
	"PAUSED":      true,
	"NOT RUNNING": true,
	"CLOSED":      true,
}

func parseOutput(out string) (string, error) {
	last := ""
	for _, line := range strings.Split(out, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			last = l
		}
	}
	if last == "" || noAnswerMarkers[last] {
		return "", ErrNoAnswer
	}
	return last, nil
}
