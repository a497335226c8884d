package config

// Config is the whole configuration file. Durations are Go duration strings
// ("500ms", "10s") parsed with ParseDurationField.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Poll      PollConfig      `json:"poll"`
	Player    PlayerConfig    `json:"player"`
	Lyrics    LyricsConfig    `json:"lyrics"`
	Aliases   AliasesConfig   `json:"aliases"`
	Cache     CacheConfig     `json:"cache"`
	Display   DisplayConfig   `json:"display"`
	Debug     DebugConfig     `json:"debug"`
	Systemd   SystemdConfig   `json:"systemd"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors log lines to the display.telegram chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig sizes the shared worker pool.
type SchedulerConfig struct {
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	HistorySize int    `json:"history_size"`
	OnPanic     string `json:"on_panic"` // disable | continue
}

type PollConfig struct {
	TaskID       string `json:"task_id"`
	Mode         string `json:"mode"` // fixed_rate | fixed_delay
	Interval     string `json:"interval"`
	InitialDelay string `json:"initial_delay"`
	Autostart    bool   `json:"autostart"`
}

type PlayerConfig struct {
	Backend string   `json:"backend"` // auto | mpris | osascript | command
	Service string   `json:"service"`
	Command []string `json:"command"`
	Timeout string   `json:"timeout"`
}

type LyricsConfig struct {
	URLTemplate  string  `json:"url_template"`
	UserAgent    string  `json:"user_agent"`
	Timeout      string  `json:"timeout"`
	RatePerSec   float64 `json:"rate_per_sec"`
	Burst        int     `json:"burst"`
	MaxPageBytes int64   `json:"max_page_bytes"`
}

type AliasesConfig struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

type CacheConfig struct {
	Driver         string `json:"driver"` // file | memory | sqlite
	Path           string `json:"path"`
	BusyTimeout    string `json:"busy_timeout,omitempty"`
	ReportSchedule string `json:"report_schedule"`
}

type DisplayConfig struct {
	Console  ConsoleDisplay  `json:"console"`
	Telegram TelegramDisplay `json:"telegram"`
}

type ConsoleDisplay struct {
	Clear string `json:"clear"` // auto | always | never
	Title bool   `json:"title"`
}

type TelegramDisplay struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"` // never logged
	ChatID  int64  `json:"chat_id"`
	APIURL  string `json:"api_url,omitempty"`
	// PollTimeout bounds each Bot API request.
	PollTimeout string `json:"poll_timeout"`
}

// DebugConfig controls the health/metrics/pprof HTTP server.
//
// Prefer a loopback Addr; a public one needs Token or AllowInsecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics"`
	Pprof         bool   `json:"pprof"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the configuration used for every key the file omits.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			File:     LoggingFile{Path: "./spotmylyrics.log"},
			Telegram: LoggingTelegram{MinLevel: "warn", RatePerSec: 1},
		},
		Scheduler: SchedulerConfig{Workers: 2, QueueSize: 16, HistorySize: 64, OnPanic: "disable"},
		Poll: PollConfig{
			TaskID:       "SpotifyQuery",
			Mode:         "fixed_rate",
			Interval:     "500ms",
			InitialDelay: "0s",
			Autostart:    true,
		},
		Player: PlayerConfig{Backend: "auto", Service: "org.mpris.MediaPlayer2.spotify", Timeout: "2s"},
		Lyrics: LyricsConfig{
			URLTemplate:  "https://www.azlyrics.com/lyrics/%s/%s.html",
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
			Timeout:      "10s",
			RatePerSec:   0.5,
			Burst:        1,
			MaxPageBytes: 2 << 20,
		},
		Aliases: AliasesConfig{Path: "./aliases.txt", Watch: true},
		Cache:   CacheConfig{Driver: "file", Path: "./cache", BusyTimeout: "5s", ReportSchedule: "@every 10m"},
		Display: DisplayConfig{
			Console:  ConsoleDisplay{Clear: "auto", Title: true},
			Telegram: TelegramDisplay{PollTimeout: "10s"},
		},
		Debug:   DebugConfig{Addr: "127.0.0.1:6060", Metrics: true, Pprof: true},
		Systemd: SystemdConfig{Notify: true},
	}
}
