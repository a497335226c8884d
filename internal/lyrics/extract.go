package lyrics

import "strings"

// Marker is the comment AZLyrics puts right before the lyrics block.
const Marker = "<!-- Usage of azlyrics.com content by any third-party lyrics provider is prohibited by our licensing agreement. Sorry about that. -->"

var sourceReplacer = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "",
	"<i>", "",
	"</i>", "",
	"&quot;", "'",
	"&amp;", "&",
)

// FormatSource replaces the handful of HTML tags and entities found in
// lyric blocks.
func FormatSource(page string) string { return sourceReplacer.Replace(page) }

// Extract returns the text between Marker and the next "</div>" (or the end
// of page), trimmed. It reports false when the marker is missing, which is
// also what a ban page looks like, or the block is empty.
func Extract(page string) (string, bool) {
	i := strings.Index(page, Marker)
	if i < 0 {
		return "", false
	}
	rest := page[i+len(Marker):]
	if end := strings.Index(rest, "</div>"); end >= 0 {
		rest = rest[:end]
	}
	text := strings.TrimSpace(rest)
	return text, text != ""
}
