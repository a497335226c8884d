package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spotmylyrics/internal/lyrics"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lyrics/queen/bohemianrhapsody.html" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "<div>"+lyrics.Marker+"\nIs this the real life?<br>\nIs this just fantasy?\n</div>")
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`logging:
  console: false
player:
  backend: command
  command: ["true"]
lyrics:
  url_template: %q
cache:
  driver: file
  path: %q
display:
  console:
    clear: never
    title: false
`, srv.URL+"/lyrics/%s/%s.html", filepath.Join(dir, "cache"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	if err := newCLI(strings.NewReader(""), &out).Run([]string{"spotmylyrics", "version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := out.String(); got != "SpotMyLyrics v.2.3.7 - By Skander J. (https://github.com/skanderjeddi)\n" {
		t.Fatalf("version printed %q", got)
	}
}

func TestLookupNeedsTwoArgs(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	err := newCLI(strings.NewReader(""), &out).Run([]string{"spotmylyrics", "lookup", "Queen"})
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("lookup with one arg = %v", err)
	}
}

func TestLookupThenCacheStatsAndClear(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)

	var out bytes.Buffer
	cmd := newCLI(strings.NewReader(""), &out)
	if err := cmd.Run([]string{"spotmylyrics", "--config", cfg, "lookup", "Queen", "Bohemian Rhapsody"}); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if want := "Queen - Bohemian Rhapsody\n\nIs this the real life?\nIs this just fantasy?\n"; !strings.Contains(out.String(), want) {
		t.Fatalf("lookup printed %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := newCLI(strings.NewReader(""), &out).Run([]string{"spotmylyrics", "-c", cfg, "cache", "stats"}); err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out.String(), "for 1 items)") {
		t.Fatalf("cache stats printed %q", out.String())
	}

	out.Reset()
	if err := newCLI(strings.NewReader(""), &out).Run([]string{"spotmylyrics", "-c", cfg, "cache", "clear"}); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	out.Reset()
	if err := newCLI(strings.NewReader(""), &out).Run([]string{"spotmylyrics", "-c", cfg, "cache", "stats"}); err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out.String(), "for 0 items)") {
		t.Fatalf("cache stats after clear printed %q", out.String())
	}
}
