package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDecodeOverlaysDefaults(t *testing.T) {
	t.Parallel()
	yml := `
logging:
  level: debug
poll:
  interval: 1s
player:
  backend: command
  command: [python3, ./helpers/spotify.py]
cache:
  driver: sqlite
  path: ./lyrics.db
`
	cfg, err := Decode("config.yaml", []byte(yml))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Poll.Interval != "1s" || cfg.Poll.TaskID != "SpotifyQuery" || cfg.Poll.Mode != "fixed_rate" {
		t.Fatalf("poll = %+v", cfg.Poll)
	}
	if !reflect.DeepEqual(cfg.Player.Command, []string{"python3", "./helpers/spotify.py"}) {
		t.Fatalf("player.command = %q", cfg.Player.Command)
	}
	if cfg.Cache.Driver != "sqlite" || cfg.Cache.ReportSchedule != "@every 10m" {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, path, body string
	}{
		{"unknown yaml key", "c.yaml", "poll:\n  intervall: 1s\n"},
		{"unknown json key", "c.json", `{"nope": 1}`},
		{"trailing json", "c.json", `{"poll":{}} {"poll":{}}`},
		{"bad yaml", "c.yml", "poll: [\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatalf("Decode(%q) accepted invalid input", tc.body)
			}
		})
	}
}

func TestDecodeEmptyIsDefault(t *testing.T) {
	t.Parallel()
	for _, body := range []string{"", "# only a comment\n"} {
		cfg, err := Decode("c.yaml", []byte(body))
		if err != nil {
			t.Fatalf("Decode(%q): %v", body, err)
		}
		if !reflect.DeepEqual(cfg, Default()) {
			t.Fatalf("Decode(%q) = %+v, want defaults", body, cfg)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"zero interval", func(c *Config) { c.Poll.Interval = "0s" }, "poll.interval"},
		{"mode", func(c *Config) { c.Poll.Mode = "cron" }, "poll.mode"},
		{"panic policy", func(c *Config) { c.Scheduler.OnPanic = "retry" }, "scheduler.on_panic"},
		{"command backend", func(c *Config) { c.Player.Backend = "command" }, "player.command"},
		{"url template", func(c *Config) { c.Lyrics.URLTemplate = "https://example.com/%s" }, "lyrics.url_template"},
		{"driver", func(c *Config) { c.Cache.Driver = "redis" }, "cache.driver"},
		{"cache root dot", func(c *Config) { c.Cache.Path = "./" }, "cache.path"},
		{"cache root slash", func(c *Config) { c.Cache.Path = "/" }, "cache.path"},
		{"cache root parent", func(c *Config) { c.Cache.Driver = "FILE"; c.Cache.Path = "cache/../.." }, "cache.path"},
		{"sqlite ignores root check", func(c *Config) { c.Cache.Driver = "sqlite"; c.Cache.Path = "lyrics.db" }, ""},
		{"report schedule", func(c *Config) { c.Cache.ReportSchedule = "every tuesday" }, "cache.report_schedule"},
		{"telegram", func(c *Config) { c.Display.Telegram.Enabled = true }, "display.telegram.token"},
		{"log mirror", func(c *Config) { c.Logging.Telegram.Enabled = true }, "logging.telegram.enabled"},
		{"timeout", func(c *Config) { c.Player.Timeout = "soon" }, "player.timeout"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			switch {
			case tc.want == "" && err != nil:
				t.Fatalf("Validate() = %v, want nil", err)
			case tc.want != "" && (err == nil || !strings.Contains(err.Error(), tc.want)):
				t.Fatalf("Validate() = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestManagerMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) || m.Get() != cfg {
		t.Fatal("missing file did not load defaults")
	}
}

func TestManagerReloadPublishesChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("logging:\n  level: info\n")
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	ctx := context.Background()

	if ok, err := m.Reload(ctx); ok || err != nil {
		t.Fatalf("unchanged Reload() = %v, %v", ok, err)
	}

	write("logging:\n  level: debug\n")
	if ok, err := m.Reload(ctx); !ok || err != nil {
		t.Fatalf("Reload() = %v, %v", ok, err)
	}
	if got := <-ch; got.Logging.Level != "debug" {
		t.Fatalf("published level = %q", got.Logging.Level)
	}

	write("logging:\n  level: shouty\n")
	if ok, err := m.Reload(ctx); ok || err == nil {
		t.Fatalf("invalid Reload() = %v, %v", ok, err)
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("rejected config was committed")
	}

	m.SetValidator(func(context.Context, *Config) error { return context.DeadlineExceeded })
	write("logging:\n  level: warn\n")
	if ok, _ := m.Reload(ctx); ok {
		t.Fatal("validator hook ignored")
	}
}

func TestManagerWatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("poll:\n  interval: 500ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// The watcher may not be registered yet; keep writing until it sees one.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-ch:
			if got.Poll.Interval != "2s" {
				t.Fatalf("interval = %q", got.Poll.Interval)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte("poll:\n  interval: 2s\n"), 0o644)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	b.Logging.Level = "debug"
	b.Poll.Interval = "1s"
	b.Display.Telegram.Token = "secret"

	changed, attrs := SummarizeConfigChange(a, b)
	if !reflect.DeepEqual(changed, []string{"logging", "poll", "display"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); !reflect.DeepEqual(got, []string{"poll"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
	if changed, _ := SummarizeConfigChange(a, Default()); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative accepted")
	}
}
