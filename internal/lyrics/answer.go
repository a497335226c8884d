package lyrics

import (
	"errors"
	"strings"
)

var ErrMalformedAnswer = errors.New("malformed player answer")

// Track is a parsed player answer. Artist and Title are for display; the
// stripped names have aliases applied and featuring/version suffixes removed.
type Track struct {
	Artist         string
	Title          string
	StrippedArtist string
	StrippedTitle  string
}

func (t Track) String() string { return t.Artist + " - " + t.Title }

var quoteChars = strings.NewReplacer("(", "", "'", "", ")", "")

// ParseAnswer parses "<artist>, <title>". Answers printed as a Python tuple,
// "('<artist>', '<title>')", are accepted too. Display names lose
// parentheses and quotes; stripped names lose quotes only. aliases may be nil.
func ParseAnswer(raw string, aliases *Aliases) (Track, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		raw = raw[1 : len(raw)-1]
	}
	artist, title, ok := strings.Cut(raw, ",")
	if !ok {
		return Track{}, ErrMalformedAnswer
	}

	stripped := raw
	if aliases != nil {
		stripped = aliases.Replace(stripped)
	}
	sArtist, sTitle, ok := strings.Cut(stripped, ",")
	if !ok {
		// An alias swallowed the separator; fall back to the raw answer.
		sArtist, sTitle = artist, title
	}

	t := Track{
		Artist:         clean(strings.TrimSuffix(strings.TrimSpace(artist), ",")),
		Title:          clean(title),
		StrippedArtist: strip(sArtist),
		StrippedTitle:  strip(sTitle),
	}
	if t.StrippedArtist == "" && t.StrippedTitle == "" {
		return Track{}, ErrMalformedAnswer
	}
	return t, nil
}

// strip keeps parentheses so NormalizeTitle can cut at them.
func strip(s string) string {
	return stripSuffixes(strings.TrimSpace(strings.ReplaceAll(s, "'", "")))
}

func clean(s string) string {
	return strings.TrimSpace(quoteChars.Replace(strings.TrimSpace(s)))
}

// stripSuffixes drops "(feat ...)" and "(with ...)" groups and anything
// after " - ".
func stripSuffixes(s string) string {
	s = dropGroup(s, "(feat")
	s = dropGroup(s, "(with")
	if i := strings.Index(s, " - "); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func dropGroup(s, open string) string {
	i := strings.Index(s, open)
	if i < 0 {
		return s
	}
	end := strings.Index(s[i:], ")")
	if end < 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s[:i] + s[i+end+1:])
}
