package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"spotmylyrics/internal/task/scheduler"
	logx "spotmylyrics/pkg/logx"
)

// Validate checks every key that can be wrong on its own. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	oneOf := func(path, v string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(v), a) {
				return
			}
		}
		add(fmt.Errorf("%s: %q is not one of %s", path, v, strings.Join(allowed, ", ")))
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel))
	}
	if cfg.Logging.Telegram.Enabled && !cfg.Display.Telegram.Enabled {
		add(errors.New("logging.telegram.enabled requires display.telegram.enabled"))
	}

	if cfg.Scheduler.Workers < 0 || cfg.Scheduler.QueueSize < 0 || cfg.Scheduler.HistorySize < 0 {
		add(errors.New("scheduler: workers, queue_size and history_size must be >= 0"))
	}
	if _, err := scheduler.ParsePanicPolicy(cfg.Scheduler.OnPanic); err != nil {
		add(fmt.Errorf("scheduler.on_panic: %w", err))
	}

	if strings.TrimSpace(cfg.Poll.TaskID) == "" {
		add(errors.New("poll.task_id: required"))
	}
	oneOf("poll.mode", cfg.Poll.Mode, "fixed_rate", "fixed_delay")
	if d, err := scheduler.ParseDuration(cfg.Poll.Interval); err != nil {
		add(fmt.Errorf("poll.interval: %w", err))
	} else if d.IsNoRepeat() || d.Std() <= 0 {
		add(fmt.Errorf("poll.interval: must be > 0, got %s", cfg.Poll.Interval))
	}
	if _, err := ParseDurationField("poll.initial_delay", cfg.Poll.InitialDelay); err != nil {
		add(err)
	}

	oneOf("player.backend", cfg.Player.Backend, "auto", "mpris", "osascript", "command")
	if strings.EqualFold(cfg.Player.Backend, "command") && len(cfg.Player.Command) == 0 {
		add(errors.New("player.command: required when player.backend is command"))
	}
	_, err := ParseDurationField("player.timeout", cfg.Player.Timeout)
	add(err)

	if strings.Count(cfg.Lyrics.URLTemplate, "%s") != 2 {
		add(fmt.Errorf("lyrics.url_template: needs exactly two %%s verbs, got %q", cfg.Lyrics.URLTemplate))
	}
	if cfg.Lyrics.RatePerSec < 0 || cfg.Lyrics.Burst < 0 || cfg.Lyrics.MaxPageBytes < 0 {
		add(errors.New("lyrics: rate_per_sec, burst and max_page_bytes must be >= 0"))
	}
	_, err = ParseDurationField("lyrics.timeout", cfg.Lyrics.Timeout)
	add(err)

	oneOf("cache.driver", cfg.Cache.Driver, "file", "memory", "mem", "sqlite")
	if d := strings.ToLower(strings.TrimSpace(cfg.Cache.Driver)); (d == "" || d == "file") && unsafeCacheRoot(cfg.Cache.Path) {
		add(fmt.Errorf("cache.path: %q cannot be a cache root, clearing the cache removes it", cfg.Cache.Path))
	}
	_, err = ParseDurationField("cache.busy_timeout", cfg.Cache.BusyTimeout)
	add(err)
	if strings.TrimSpace(cfg.Cache.ReportSchedule) != "" {
		if _, err := scheduler.TaskFromSchedule(cfg.Cache.ReportSchedule, func(context.Context) error { return nil }); err != nil {
			add(fmt.Errorf("cache.report_schedule: %w", err))
		}
	}

	oneOf("display.console.clear", cfg.Display.Console.Clear, "auto", "always", "never")
	if tg := cfg.Display.Telegram; tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			add(errors.New("display.telegram.token: required when enabled"))
		}
		if tg.ChatID == 0 {
			add(errors.New("display.telegram.chat_id: required when enabled"))
		}
	}
	_, err = ParseDurationField("display.telegram.poll_timeout", cfg.Display.Telegram.PollTimeout)
	add(err)

	return errors.Join(errs...)
}

// unsafeCacheRoot reports whether p names the working directory, its parent
// or a filesystem root. An empty path is left to the cache's default.
func unsafeCacheRoot(p string) bool {
	p = strings.TrimSpace(p)
	if p == "" {
		return false
	}
	clean := filepath.Clean(p)
	return clean == "." || clean == ".." || filepath.Dir(clean) == clean
}
