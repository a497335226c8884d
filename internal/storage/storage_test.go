package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"spotmylyrics/internal/lyrics"
	logx "spotmylyrics/pkg/logx"

	"github.com/spf13/afero"
)

func openCaches(t *testing.T) map[string]Cache {
	t.Helper()
	fc, err := NewFileCache(afero.NewMemMapFs(), "/cache", logx.Nop())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	sc, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "cache.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = fc.Close()
		_ = sc.Close()
	})
	return map[string]Cache{"file": fc, "sqlite": sc}
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	key := lyrics.Key{Artist: "queen", Title: "bohemianrhapsody"}
	text := "  Is this the real life?\n\nIs this just fantasy?\n\t\n"

	for name, c := range openCaches(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := c.Get(ctx, key); err != nil || ok {
				t.Fatalf("Get before Put = ok %v, err %v", ok, err)
			}
			wrote, err := c.Put(ctx, key, text, false)
			if err != nil || !wrote {
				t.Fatalf("Put = %v, %v; want true, nil", wrote, err)
			}
			got, ok, err := c.Get(ctx, key)
			if err != nil || !ok {
				t.Fatalf("Get = ok %v, err %v", ok, err)
			}
			if got != text {
				t.Fatalf("Get = %q, want %q", got, text)
			}

			wrote, err = c.Put(ctx, key, "other", false)
			if err != nil || wrote {
				t.Fatalf("Put without overwrite = %v, %v; want false, nil", wrote, err)
			}
			if got, _, _ := c.Get(ctx, key); got != text {
				t.Fatalf("entry changed without overwrite: %q", got)
			}
			if wrote, err = c.Put(ctx, key, "other", true); err != nil || !wrote {
				t.Fatalf("Put with overwrite = %v, %v", wrote, err)
			}
			if got, _, _ := c.Get(ctx, key); got != "other" {
				t.Fatalf("overwrite not applied: %q", got)
			}
		})
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, c := range openCaches(t) {
		t.Run(name, func(t *testing.T) {
			_, _ = c.Put(ctx, lyrics.Key{Artist: "a", Title: "one"}, "12345", false)
			_, _ = c.Put(ctx, lyrics.Key{Artist: "a", Title: "two"}, "123", false)
			_, _ = c.Put(ctx, lyrics.Key{Artist: "b", Title: "one"}, "é", false)

			st, err := c.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if st.Items != 3 || st.Bytes != 10 {
				t.Fatalf("Stats = %+v, want 3 items and 10 bytes", st)
			}

			if err := c.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			st, err = c.Stats(ctx)
			if err != nil || st != (Stats{}) {
				t.Fatalf("Stats after Clear = %+v, %v", st, err)
			}
			if _, err := c.Put(ctx, lyrics.Key{Artist: "a", Title: "one"}, "x", false); err != nil {
				t.Fatalf("Put after Clear: %v", err)
			}
		})
	}
}

func TestFileCacheLayout(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	c, err := NewFileCache(fs, "/cache", logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(context.Background(), lyrics.Key{Artist: "Daft Punk", Title: "Get Lucky?"}, "x", false); err != nil {
		t.Fatal(err)
	}
	if ok, _ := afero.Exists(fs, "/cache/daft_punk/get_lucky.txt"); !ok {
		t.Fatal("expected /cache/daft_punk/get_lucky.txt")
	}

	_ = c.Close()
	if _, _, err := c.Get(context.Background(), lyrics.Key{Artist: "a", Title: "b"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close = %v, want ErrClosed", err)
	}
}

func TestStatsHuman(t *testing.T) {
	t.Parallel()
	tests := []struct {
		st   Stats
		want string
	}{
		{Stats{Items: 0, Bytes: 0}, "0 B"},
		{Stats{Items: 2, Bytes: 999}, "999 B"},
		{Stats{Items: 40, Bytes: 82854}, "83 kB"},
	}
	for _, tt := range tests {
		if got := tt.st.Human(); got != tt.want {
			t.Fatalf("Human(%d) = %q, want %q", tt.st.Bytes, got, tt.want)
		}
	}
	if got := (Stats{Items: 1234, Bytes: 1000}).String(); got != "1.0 kB for 1,234 items" {
		t.Fatalf("String() = %q", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("Open accepted unknown driver")
	}
	c, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	_ = c.Close()
}
