package config

import (
	"reflect"
	"strings"

	logx "spotmylyrics/pkg/logx"
)

// liveSections are applied without a restart.
var liveSections = map[string]bool{
	"logging": true,
	"display": true,
	"debug":   true,
	"aliases": true,
}

// SummarizeConfigChange returns the changed sections in key order and safe
// attrs for logging them. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.on_panic", newCfg.Scheduler.OnPanic),
		)
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.mode", newCfg.Poll.Mode),
			logx.String("poll.interval", newCfg.Poll.Interval),
		)
	}
	if !reflect.DeepEqual(oldCfg.Player, newCfg.Player) {
		changed = append(changed, "player")
		attrs = append(attrs, logx.String("player.backend", newCfg.Player.Backend))
	}
	if oldCfg.Lyrics != newCfg.Lyrics {
		changed = append(changed, "lyrics")
		attrs = append(attrs, logx.Float64("lyrics.rate_per_sec", newCfg.Lyrics.RatePerSec))
	}
	if oldCfg.Aliases != newCfg.Aliases {
		changed = append(changed, "aliases")
		attrs = append(attrs,
			logx.String("aliases.path", newCfg.Aliases.Path),
			logx.Bool("aliases.watch", newCfg.Aliases.Watch),
		)
	}
	if oldCfg.Cache != newCfg.Cache {
		changed = append(changed, "cache")
		attrs = append(attrs,
			logx.String("cache.driver", newCfg.Cache.Driver),
			logx.Bool("cache.path_set", strings.TrimSpace(newCfg.Cache.Path) != ""),
		)
	}
	if oldCfg.Display != newCfg.Display {
		changed = append(changed, "display")
		attrs = append(attrs,
			logx.String("display.console.clear", newCfg.Display.Console.Clear),
			logx.Bool("display.telegram.enabled", newCfg.Display.Telegram.Enabled),
			logx.Bool("display.telegram.token_set", strings.TrimSpace(newCfg.Display.Telegram.Token) != ""),
		)
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}
	return changed, attrs
}

// RestartRequired returns the sections in changed that only take effect
// after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !liveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
