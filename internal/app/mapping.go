package app

import (
	"fmt"
	"strings"
	"time"

	"spotmylyrics/internal/config"
	"spotmylyrics/internal/display"
	"spotmylyrics/internal/nowplaying"
	"spotmylyrics/internal/observability/debugsrv"
	"spotmylyrics/internal/source/azlyrics"
	"spotmylyrics/internal/storage"
	"spotmylyrics/internal/task/engine"
	"spotmylyrics/internal/task/scheduler"
	logx "spotmylyrics/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Remote: logx.RemoteConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapEngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Workers:     cfg.Scheduler.Workers,
		QueueSize:   cfg.Scheduler.QueueSize,
		HistorySize: cfg.Scheduler.HistorySize,
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	p, err := scheduler.ParsePanicPolicy(cfg.Scheduler.OnPanic)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{OnPanic: p}, nil
}

// pollSpec is the polling task as configured.
type pollSpec struct {
	id       string
	kind     scheduler.Kind
	initial  scheduler.Duration
	interval scheduler.Duration
}

func mapPollSpec(cfg *config.Config) (pollSpec, error) {
	interval, err := scheduler.ParseDuration(cfg.Poll.Interval)
	if err != nil {
		return pollSpec{}, fmt.Errorf("poll.interval: %w", err)
	}
	initial := scheduler.Millis(0)
	if strings.TrimSpace(cfg.Poll.InitialDelay) != "" {
		if initial, err = scheduler.ParseDuration(cfg.Poll.InitialDelay); err != nil {
			return pollSpec{}, fmt.Errorf("poll.initial_delay: %w", err)
		}
	}
	kind := scheduler.FixedRate
	if strings.EqualFold(strings.TrimSpace(cfg.Poll.Mode), "fixed_delay") {
		kind = scheduler.FixedDelay
	}
	return pollSpec{id: strings.TrimSpace(cfg.Poll.TaskID), kind: kind, initial: initial, interval: interval}, nil
}

func mapPlayerConfig(cfg *config.Config) (nowplaying.Config, error) {
	timeout, err := config.ParseDurationOrDefault("player.timeout", cfg.Player.Timeout, 2*time.Second)
	if err != nil {
		return nowplaying.Config{}, err
	}
	return nowplaying.Config{
		Backend: cfg.Player.Backend,
		Service: cfg.Player.Service,
		Command: cfg.Player.Command,
		Timeout: timeout,
	}, nil
}

func mapLyricsConfig(cfg *config.Config) (azlyrics.Config, error) {
	timeout, err := config.ParseDurationOrDefault("lyrics.timeout", cfg.Lyrics.Timeout, 10*time.Second)
	if err != nil {
		return azlyrics.Config{}, err
	}
	return azlyrics.Config{
		URLTemplate:  cfg.Lyrics.URLTemplate,
		UserAgent:    cfg.Lyrics.UserAgent,
		Timeout:      timeout,
		RatePerSec:   cfg.Lyrics.RatePerSec,
		Burst:        cfg.Lyrics.Burst,
		MaxPageBytes: cfg.Lyrics.MaxPageBytes,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Cache.Driver))
	path := strings.TrimSpace(cfg.Cache.Path)
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("cache.path is required when cache.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("cache.busy_timeout", cfg.Cache.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown cache.driver: %s", cfg.Cache.Driver)
	}
}

func mapConsoleConfig(cfg *config.Config) display.ConsoleConfig {
	return display.ConsoleConfig{Clear: cfg.Display.Console.Clear, Title: cfg.Display.Console.Title}
}

// mapTelegramConfig reports false when the Telegram display is off.
func mapTelegramConfig(cfg *config.Config) (display.TelegramConfig, bool, error) {
	tg := cfg.Display.Telegram
	if !tg.Enabled {
		return display.TelegramConfig{}, false, nil
	}
	timeout, err := config.ParseDurationOrDefault("display.telegram.poll_timeout", tg.PollTimeout, 10*time.Second)
	if err != nil {
		return display.TelegramConfig{}, false, err
	}
	return display.TelegramConfig{Token: tg.Token, ChatID: tg.ChatID, APIURL: tg.APIURL, Timeout: timeout}, true, nil
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	return debugsrv.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
		Metrics:       cfg.Debug.Metrics,
		Pprof:         cfg.Debug.Pprof,
		ReadTimeout:   10 * time.Second,
		IdleTimeout:   60 * time.Second,
	}
}

// validateRuntime checks what config.Validate cannot see: the mappings
// into component configs.
func validateRuntime(cfg *config.Config) error {
	if _, err := mapPollSpec(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	return debugsrv.Validate(mapDebugConfig(cfg))
}
