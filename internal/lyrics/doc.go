// Package lyrics turns a player answer into a track and a lookup key, and
// pulls lyric text out of an AZLyrics page.
package lyrics
