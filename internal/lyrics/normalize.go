package lyrics

import (
	"regexp"
	"strings"
)

var (
	accents  = strings.NewReplacer("é", "e", "É", "E", "à", "a", "À", "A")
	nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// NormalizeArtist makes an artist name fit the AZLyrics URL scheme: no
// leading "The ", ASCII letters and digits only, lowercase.
func NormalizeArtist(s string) string {
	s = strings.TrimPrefix(s, "The ")
	return squash(s)
}

// NormalizeTitle is NormalizeArtist for titles. Everything from the first
// "(" on is dropped.
func NormalizeTitle(s string) string {
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	return squash(s)
}

func squash(s string) string {
	s = accents.Replace(s)
	s = nonAlnum.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.ToLower(s))
}

// Key identifies a song for change detection, caching and fetching.
type Key struct {
	Artist string
	Title  string
}

func (k Key) IsZero() bool { return k.Artist == "" && k.Title == "" }

func (k Key) String() string { return k.Artist + "/" + k.Title }

// KeyOf computes the normalized key of t from its stripped names.
func KeyOf(t Track) Key {
	return Key{Artist: NormalizeArtist(t.StrippedArtist), Title: NormalizeTitle(t.StrippedTitle)}
}
