package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"spotmylyrics/internal/lyrics"
	logx "spotmylyrics/pkg/logx"

	"github.com/spf13/afero"
)

// fileCache keeps one text file per song: <root>/<artist>/<title>.txt.
type fileCache struct {
	fs   afero.Fs
	root string
	log  logx.Logger

	mu     sync.Mutex
	closed bool
}

func NewFileCache(fsys afero.Fs, root string, log logx.Logger) (Cache, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("cache path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &fileCache{fs: fsys, root: root, log: log}, nil
}

var segmentReplacer = strings.NewReplacer(" ", "_", ".", "", "?", "", "(", "", "'", "", "/", "", "\\", "")

func segment(s string) string {
	s = segmentReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	if s == "" {
		return "_"
	}
	return s
}

func (c *fileCache) pathOf(key lyrics.Key) string {
	return path.Join(c.root, segment(key.Artist), segment(key.Title)+".txt")
}

func (c *fileCache) Get(_ context.Context, key lyrics.Key) (string, bool, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", false, ErrClosed
	}
	b, err := afero.ReadFile(c.fs, c.pathOf(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (c *fileCache) Put(_ context.Context, key lyrics.Key, text string, overwrite bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	p := c.pathOf(key)
	if !overwrite {
		if ok, err := afero.Exists(c.fs, p); err != nil {
			return false, err
		} else if ok {
			return false, nil
		}
	}
	if err := c.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return false, err
	}
	// Write then rename so readers never see a partial file.
	tmp := p + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, []byte(text), 0o644); err != nil {
		return false, err
	}
	if err := c.fs.Rename(tmp, p); err != nil {
		_ = c.fs.Remove(tmp)
		return false, err
	}
	return true, nil
}

func (c *fileCache) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st Stats
	err := afero.Walk(c.fs, c.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".txt") {
			return nil
		}
		st.Items++
		st.Bytes += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return Stats{}, nil
	}
	return st, err
}

func (c *fileCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.fs.RemoveAll(c.root); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if err := c.fs.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("recreate cache dir: %w", err)
	}
	c.log.Info("cache cleared", logx.String("path", c.root))
	return nil
}

func (c *fileCache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
