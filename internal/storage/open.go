package storage

import (
	"context"
	"errors"
	"strings"

	"spotmylyrics/internal/lyrics"
	logx "spotmylyrics/pkg/logx"

	"github.com/spf13/afero"
)

// Cache stores one lyric text per key. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get reports false when key has no entry.
	Get(ctx context.Context, key lyrics.Key) (string, bool, error)
	// Put stores text. With overwrite false an existing entry is kept and
	// Put reports false.
	Put(ctx context.Context, key lyrics.Key, text string, overwrite bool) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

const DefaultPath = "./cache"

// Open initializes the configured cache.
func Open(cfg Config, log logx.Logger) (Cache, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "cache"))

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	path := strings.TrimSpace(cfg.Path)
	switch driver {
	case "", "file":
		if path == "" {
			path = DefaultPath
		}
		return NewFileCache(afero.NewOsFs(), path, log)
	case "memory", "mem":
		return NewFileCache(afero.NewMemMapFs(), "/cache", log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown cache driver: " + driver)
	}
}
