package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"spotmylyrics/internal/lyrics"

	"github.com/mattn/go-isatty"
)

type ConsoleConfig struct {
	// Clear is auto, always or never. auto clears only when the writer is a terminal.
	Clear string
	// Title sets the terminal window title to the current track.
	Title bool
}

// Console prints lyrics to a writer, usually stdout.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool
	title bool
}

func NewConsole(w io.Writer, cfg ConsoleConfig) *Console {
	c := &Console{w: w}
	c.Apply(cfg)
	return c
}

// Apply switches the clear and title modes; used on config reload.
func (c *Console) Apply(cfg ConsoleConfig) {
	clear := false
	switch strings.ToLower(strings.TrimSpace(cfg.Clear)) {
	case "always":
		clear = true
	case "never":
	default:
		clear = isTerminal(c.w)
	}
	c.mu.Lock()
	c.clear = clear
	c.title = cfg.Title && isTerminal(c.w)
	c.mu.Unlock()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) Show(_ context.Context, t lyrics.Track, text string) error {
	return c.write(t, text)
}

func (c *Console) NotFound(_ context.Context, t lyrics.Track) error {
	return c.write(t, notFoundText)
}

func (c *Console) write(t lyrics.Track, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	if c.title {
		fmt.Fprintf(&b, "\x1b]0;%s\x07", t)
	}
	if c.clear {
		b.WriteString("\x1b[2J\x1b[H")
	} else {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\n\n%s\n", t, body)
	_, err := io.WriteString(c.w, b.String())
	return err
}

// Println writes a plain line, serialized with lyric output.
func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, a...)
}

// Printf is Println with a format.
func (c *Console) Printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, format, a...)
}
