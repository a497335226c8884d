package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spotmylyrics/internal/lyrics"
	"spotmylyrics/internal/pipeline"

	"github.com/spf13/afero"
)

const wantBlock = "Daft Punk - One More Time\n\nOne more time\nWe're gonna celebrate\n"

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lyricsServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lyrics/daftpunk/onemoretime.html" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		fmt.Fprint(w, "<html>\n<div>\n"+lyrics.Marker+"\nOne more time<br>\nWe're gonna celebrate<br>\n</div>\n</html>\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeConfig(t *testing.T, srvURL, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`logging:
  level: error
  console: false
poll:
  interval: 20ms
player:
  backend: command
  command: ["echo", "Daft Punk, One More Time"]
lyrics:
  url_template: %q
  rate_per_sec: 100
  burst: 10
aliases:
  path: %q
  watch: false
cache:
  driver: memory
display:
  console:
    clear: never
    title: false
systemd:
  notify: false
%s`, srvURL+"/lyrics/%s/%s.html", filepath.Join(dir, "aliases.txt"), extra)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitOutput(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, out.String())
}

func TestRunPollsShowsLyricsAndQuits(t *testing.T) {
	srv, hits := lyricsServer(t)
	out := &lockedBuffer{}
	a, err := New(writeConfig(t, srv.URL, ""), Options{Out: out, Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() { errc <- a.Run(context.Background(), pr) }()

	waitOutput(t, out, "Thanks for using my software!")
	waitOutput(t, out, wantBlock)

	// Several more cycles pass; the unchanged track is neither refetched
	// nor printed again.
	time.Sleep(150 * time.Millisecond)
	if n := strings.Count(out.String(), wantBlock); n != 1 {
		t.Fatalf("lyrics printed %d times, want 1", n)
	}

	if _, err := io.WriteString(pw, ":s\n"); err != nil {
		t.Fatal(err)
	}
	waitOutput(t, out, "Auto refreshing: enabled")

	if _, err := io.WriteString(pw, ":r\n"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for strings.Count(out.String(), wantBlock) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf(":r did not print the lyrics again:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := io.WriteString(pw, ":q\n"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after :q")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("lyrics fetched %d times, want 1 (cache)", got)
	}
}

func TestRunDaemonStopsOnCancel(t *testing.T) {
	srv, _ := lyricsServer(t)
	out := &lockedBuffer{}
	a, err := New(writeConfig(t, srv.URL, ""), Options{Out: out, Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.RunDaemon(ctx) }()

	waitOutput(t, out, wantBlock)
	if !a.Polling() {
		t.Fatal("autostart did not enable polling")
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("RunDaemon: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("RunDaemon did not return after cancel")
	}
}

func TestPollingReenableShowsCurrentSongAgain(t *testing.T) {
	srv, hits := lyricsServer(t)
	out := &lockedBuffer{}
	a, err := New(writeConfig(t, srv.URL, ""), Options{Out: out, Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.RunDaemon(ctx) }()
	defer func() {
		cancel()
		<-errc
	}()

	waitOutput(t, out, wantBlock)
	if on, err := a.TogglePolling(); err != nil || on {
		t.Fatalf("TogglePolling() = %v, %v, want off", on, err)
	}
	if on, err := a.TogglePolling(); err != nil || !on {
		t.Fatalf("TogglePolling() = %v, %v, want on", on, err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for strings.Count(out.String(), wantBlock) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("re-enabled polling did not show the song again:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("lyrics fetched %d times, want 1 (cache)", got)
	}
}

func TestLookupWithoutStart(t *testing.T) {
	t.Parallel()
	srv, hits := lyricsServer(t)
	out := &lockedBuffer{}
	a, err := New(writeConfig(t, srv.URL, ""), Options{Out: out, Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		got, err := a.Lookup(ctx, "Daft Punk", "One More Time")
		if err != nil || got != pipeline.Displayed {
			t.Fatalf("Lookup #%d = (%v, %v), want displayed", i, got, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("fetched %d times, want 1", hits.Load())
	}

	st, err := a.Stats(ctx)
	if err != nil || st.Cache.Items != 1 || st.Polling {
		t.Fatalf("Stats = (%+v, %v)", st, err)
	}
	if err := a.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if st, _ := a.Stats(ctx); st.Cache.Items != 0 {
		t.Fatalf("items after clear = %d", st.Cache.Items)
	}

	got, err := a.Lookup(ctx, "Daft Punk", "Unknown Song")
	if err != nil || got != pipeline.NotFound {
		t.Fatalf("Lookup of a missing song = (%v, %v), want not_found", got, err)
	}
	if !strings.Contains(out.String(), "Daft Punk - Unknown Song\n\nNo lyrics found.\n") {
		t.Fatalf("missing not-found block:\n%s", out.String())
	}
}

func TestReloadAliasesReadsFs(t *testing.T) {
	t.Parallel()
	srv, _ := lyricsServer(t)
	fsys := afero.NewMemMapFs()
	path := writeConfig(t, srv.URL, "")
	aliasPath := filepath.Join(filepath.Dir(path), "aliases.txt")
	a, err := New(path, Options{Out: io.Discard, Fs: fsys})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.ReloadAliases(); err == nil {
		t.Fatal("ReloadAliases without a file succeeded")
	}
	if err := afero.WriteFile(fsys, aliasPath, []byte("Daft Punk:Daft Punk Official\nAC/DC:ACDC\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := a.ReloadAliases()
	if err != nil || n != 2 {
		t.Fatalf("ReloadAliases = (%d, %v), want 2", n, err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "http://127.0.0.1:1", "debug:\n  enabled: true\n  addr: \"0.0.0.0:6060\"\n")
	if _, err := New(path, Options{Out: io.Discard}); err == nil {
		t.Fatal("New accepted a public debug address without a token")
	}
}
