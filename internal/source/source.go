// Package source defines where lyric pages come from.
package source

import (
	"context"

	"spotmylyrics/internal/lyrics"
)

// Fetcher downloads the lyrics page of a song. The page is returned raw;
// callers run lyrics.FormatSource and lyrics.Extract on it.
type Fetcher interface {
	Fetch(ctx context.Context, key lyrics.Key) (string, error)
}
