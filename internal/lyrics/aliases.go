package lyrics

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"spotmylyrics/internal/runtime/fswatch"
	logx "spotmylyrics/pkg/logx"

	"github.com/spf13/afero"
)

var ErrMalformedAlias = errors.New("malformed alias line")

type alias struct{ from, to string }

// Aliases substitutes known-bad names before normalization. Lookups and
// reloads may happen concurrently.
type Aliases struct {
	mu    sync.RWMutex
	pairs []alias
}

func NewAliases(pairs map[string]string) *Aliases {
	a := &Aliases{}
	for k, v := range pairs {
		a.pairs = append(a.pairs, alias{from: k, to: v})
	}
	return a
}

func (a *Aliases) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pairs)
}

// Replace applies every alias whose key occurs in s, in file order.
func (a *Aliases) Replace(s string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, p := range a.pairs {
		if strings.Contains(s, p.from) {
			s = strings.TrimSpace(strings.ReplaceAll(s, p.from, p.to))
		}
	}
	return s
}

// Load replaces the table with the contents of path. Valid lines are kept
// even when others are malformed; the returned error then wraps
// ErrMalformedAlias. On a read error the table is left untouched.
func (a *Aliases) Load(fsys afero.Fs, path string) (int, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open aliases: %w", err)
	}
	defer f.Close()

	pairs, perr := parseAliases(f)
	if perr != nil && !errors.Is(perr, ErrMalformedAlias) {
		return 0, fmt.Errorf("read aliases: %w", perr)
	}
	a.mu.Lock()
	a.pairs = pairs
	a.mu.Unlock()
	return len(pairs), perr
}

// parseAliases reads "key:value" lines. Blank lines and lines starting with
// "#" are ignored; the value is everything after the first ":".
func parseAliases(r io.Reader) ([]alias, error) {
	var (
		out  []alias
		errs []error
	)
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			errs = append(errs, fmt.Errorf("%w: line %d", ErrMalformedAlias, n))
			continue
		}
		out = append(out, alias{from: k, to: v})
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	return out, errors.Join(errs...)
}

// Watch reloads the table from the OS file at path whenever it changes,
// until ctx is done. onReload, if set, receives the outcome of each reload.
func (a *Aliases) Watch(ctx context.Context, path string, log logx.Logger, onReload func(n int, err error)) error {
	fsys := afero.NewOsFs()
	return fswatch.Watch(ctx, path, fswatch.DefaultDebounce, log, func() {
		n, err := a.Load(fsys, path)
		if err != nil {
			log.Warn("aliases reload failed", logx.String("path", path), logx.Err(err))
		} else {
			log.Info("aliases reloaded", logx.String("path", path), logx.Int("count", n))
		}
		if onReload != nil {
			onReload(n, err)
		}
	})
}
