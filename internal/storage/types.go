package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

var ErrClosed = errors.New("cache closed")

// Config configures the cache.
//
// Driver values: file (default), memory, sqlite. Path is the cache root
// directory for file and the database file for sqlite.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Stats summarizes the cache content. Bytes counts lyric text only.
type Stats struct {
	Items int64
	Bytes int64
}

// Human renders Bytes in SI units, e.g. "1.2 kB".
func (s Stats) Human() string {
	if s.Bytes < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(s.Bytes))
}

func (s Stats) String() string {
	return fmt.Sprintf("%s for %s items", s.Human(), humanize.Comma(s.Items))
}
