package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"spotmylyrics/internal/config"
	"spotmylyrics/internal/display"
	"spotmylyrics/internal/eventbus"
	"spotmylyrics/internal/lyrics"
	"spotmylyrics/internal/nowplaying"
	"spotmylyrics/internal/observability/debugsrv"
	"spotmylyrics/internal/observability/metrics"
	"spotmylyrics/internal/pipeline"
	rtsup "spotmylyrics/internal/runtime/supervisor"
	"spotmylyrics/internal/source/azlyrics"
	"spotmylyrics/internal/storage"
	"spotmylyrics/internal/task/engine"
	"spotmylyrics/internal/task/scheduler"
	logx "spotmylyrics/pkg/logx"
	"spotmylyrics/pkg/systemd"

	"github.com/spf13/afero"
)

const (
	Version   = "2.3.7"
	AuthorURL = "https://github.com/skanderjeddi"

	cacheReportID = "cache.report"
	watchdogID    = "systemd.watchdog"

	stopTimeout = 10 * time.Second
)

type Options struct {
	// Out receives lyrics and console replies. Defaults to os.Stdout.
	Out io.Writer
	// Fs is where the alias file is read from. Defaults to the OS filesystem.
	Fs afero.Fs
}

type App struct {
	cfgm *config.ConfigManager
	out  io.Writer
	fs   afero.Fs

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus
	met  *metrics.Metrics

	cache   storage.Cache
	aliases *lyrics.Aliases
	player  nowplaying.Player
	console *display.Console
	disp    *liveDisplay
	pipe    *pipeline.Pipeline

	engine *engine.Service
	sched  *scheduler.Scheduler
	debug  *debugsrv.Service
	notify systemd.Notifier
	poll   pollSpec

	sup *rtsup.Supervisor

	mu          sync.Mutex
	polling     bool
	aliasPath   string
	aliasCancel context.CancelFunc
}

// New wires every component from the config file at cfgPath. Nothing runs
// until Start; Lookup, Stats and ClearCache work without it.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateRuntime(cfg); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	tg, err := newTelegram(cfg, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, err
	}
	var sender logx.Sender
	if tg != nil {
		sender = tg
	}
	logSvc, root := logx.New(mapLogConfig(cfg), sender)
	log := root.With(logx.String("comp", "app"))

	a := &App{
		cfgm:      cfgm,
		out:       opts.Out,
		fs:        opts.Fs,
		log:       log,
		logs:      logSvc,
		bus:       eventbus.New(),
		met:       metrics.New(),
		aliases:   lyrics.NewAliases(nil),
		aliasPath: cfg.Aliases.Path,
		notify:    systemd.Notifier{Disabled: !cfg.Systemd.Notify},
	}
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if a.poll, err = mapPollSpec(cfg); err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.cache, err = storage.Open(sc, root); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	pc, err := mapPlayerConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.player, err = nowplaying.New(pc, root.With(logx.String("comp", "player"))); err != nil {
		return nil, err
	}
	lc, err := mapLyricsConfig(cfg)
	if err != nil {
		return nil, err
	}
	src := azlyrics.New(lc, root.With(logx.String("comp", "azlyrics")), a.met)

	a.console = display.NewConsole(a.out, mapConsoleConfig(cfg))
	a.disp = &liveDisplay{}
	a.disp.set(a.console, tg)

	if n, err := a.aliases.Load(a.fs, cfg.Aliases.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("no alias file", logx.String("path", cfg.Aliases.Path))
		} else {
			log.Warn("alias file has errors", logx.String("path", cfg.Aliases.Path), logx.Int("loaded", n), logx.Err(err))
		}
	}

	a.pipe = pipeline.New(pipeline.Deps{
		Player:  a.player,
		Cache:   a.cache,
		Source:  src,
		Display: a.disp,
		Aliases: a.aliases,
		Bus:     a.bus,
		Metrics: a.met,
		Log:     root,
	})

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = engine.New(mapEngineConfig(cfg), root.With(logx.String("comp", "taskengine")), a.bus, a.met)
	a.sched = scheduler.New(schedCfg, a.engine, root.With(logx.String("comp", "scheduler")), a.bus, a.met)
	a.debug = debugsrv.New(mapDebugConfig(cfg), root, a.met.Handler(), a.health)
	ok = true
	return a, nil
}

// Run starts the app, shows the banner and serves console commands from in
// until :quit, EOF, ctx cancellation or a fatal error.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), StopFatalError)
		return err
	}
	con := NewConsole(a, a.console)
	con.Banner(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	reason, err := con.Run(runCtx, in)
	return a.finish(reason, err)
}

// RunDaemon is Run without a console: it polls until ctx is done.
func (a *App) RunDaemon(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), StopFatalError)
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	return a.finish(StopSignal, nil)
}

func (a *App) finish(reason StopReason, err error) error {
	fatal := a.Err()
	if fatal != nil {
		reason = StopFatalError
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return errors.Join(err, fatal, a.Stop(ctx, reason))
}

func newTelegram(cfg *config.Config, log logx.Logger) (*display.Telegram, error) {
	tc, ok, err := mapTelegramConfig(cfg)
	if err != nil || !ok {
		return nil, err
	}
	return display.NewTelegram(tc, log)
}

// Done is closed when the app stops on its own (fatal error).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if !a.engine.Running() {
		return errors.New("task engine not running")
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateRuntime(cfg) })
	cfg := a.cfgm.Get()

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	if a.debug.Enabled() {
		a.debug.Start(a.sup.Context())
	}

	if rs := strings.TrimSpace(cfg.Cache.ReportSchedule); rs != "" {
		t, err := scheduler.TaskFromSchedule(rs, a.reportCache)
		if err != nil {
			return fmt.Errorf("cache.report_schedule: %w", err)
		}
		if err := a.sched.Schedule(cacheReportID, t); err != nil {
			return err
		}
	}
	if err := a.startWatchdog(); err != nil {
		a.log.Warn("systemd watchdog not started", logx.Err(err))
	}
	if cfg.Aliases.Watch {
		a.watchAliases(cfg.Aliases.Path)
	}
	if cfg.Poll.Autostart {
		if err := a.SetPolling(true); err != nil {
			return err
		}
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	last := cfg
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						next = newer
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if _, err := a.notify.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	_, _ = a.notify.Status("polling %s every %s", a.poll.id, a.poll.interval)
	a.log.Info("app started", logx.String("version", Version), logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	_, _ = a.notify.Reloading()
	defer func() { _, _ = a.notify.Ready() }()

	a.logs.Apply(mapLogConfig(next))
	if prev.Display != next.Display {
		a.console.Apply(mapConsoleConfig(next))
		tg, err := newTelegram(next, a.log)
		if err != nil {
			a.log.Warn("telegram display not reconfigured", logx.Err(err))
		} else {
			a.disp.set(a.console, tg)
			if tg != nil {
				a.logs.SetSender(tg)
			} else {
				a.logs.SetSender(nil)
			}
		}
	}
	if prev.Debug != next.Debug {
		a.debug.Reconfigure(ctx, mapDebugConfig(next))
	}
	if prev.Aliases != next.Aliases {
		a.mu.Lock()
		a.aliasPath = next.Aliases.Path
		a.mu.Unlock()
		if _, err := a.ReloadAliases(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.log.Warn("alias reload failed", logx.Err(err))
		}
		a.stopAliasWatch()
		if next.Aliases.Watch {
			a.watchAliases(next.Aliases.Path)
		}
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(rr, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) startWatchdog() error {
	every, err := a.notify.WatchdogInterval()
	if err != nil || every <= 0 {
		return err
	}
	period := scheduler.FromStd(every)
	return a.sched.Schedule(watchdogID, scheduler.AtFixedRate(scheduler.Millis(0), period, func(context.Context) error {
		_, err := a.notify.Watchdog()
		return err
	}))
}

func (a *App) reportCache(ctx context.Context) error {
	st, err := a.cache.Stats(ctx)
	if err != nil {
		return fmt.Errorf("cache stats: %w", err)
	}
	a.met.CacheStats(st.Items, st.Bytes)
	a.log.Info("cache stats", logx.Int64("items", st.Items), logx.Int64("bytes", st.Bytes), logx.String("size", st.Human()))
	return nil
}

func (a *App) watchAliases(path string) {
	ctx, cancel := context.WithCancel(a.sup.Context())
	a.mu.Lock()
	a.aliasCancel = cancel
	a.mu.Unlock()
	log := a.log.With(logx.String("comp", "aliases"))
	a.sup.Go("aliases.watch", func(context.Context) error {
		return a.aliases.Watch(ctx, path, log, func(n int, err error) {
			if err == nil {
				eventbus.Publish(a.bus, eventbus.AliasesReloaded, map[string]any{"count": n})
			}
		})
	})
}

func (a *App) stopAliasWatch() {
	a.mu.Lock()
	cancel := a.aliasCancel
	a.aliasCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Polling reports whether the polling task is scheduled.
func (a *App) Polling() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polling
}

// SetPolling schedules or cancels the polling task. Cancelling ends the
// context of an in-flight cycle, which then stops without showing anything
// or touching the observed track. Enabling starts a task with no observed
// track, so the current song is shown again.
func (a *App) SetPolling(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if on == a.polling {
		return nil
	}
	if !on {
		a.sched.Cancel(a.poll.id, false)
		a.polling = false
		return nil
	}
	t := a.pipe.Task(a.poll.kind, a.poll.initial, a.poll.interval)
	if err := a.sched.Schedule(a.poll.id, t); err != nil {
		return fmt.Errorf("schedule %s: %w", a.poll.id, err)
	}
	a.polling = true
	return nil
}

func (a *App) TogglePolling() (bool, error) {
	on := !a.Polling()
	return on, a.SetPolling(on)
}

// Refresh looks up the current track once, even when it did not change.
// It waits for an in-flight poll cycle to finish first.
func (a *App) Refresh() error {
	return a.sched.Schedule(a.poll.id+".refresh", a.pipe.RefreshTask())
}

// ReloadAliases re-reads the alias file.
func (a *App) ReloadAliases() (int, error) {
	a.mu.Lock()
	path := a.aliasPath
	a.mu.Unlock()
	n, err := a.aliases.Load(a.fs, path)
	if err != nil {
		return n, err
	}
	eventbus.Publish(a.bus, eventbus.AliasesReloaded, map[string]any{"count": n})
	return n, nil
}

func (a *App) ClearCache(ctx context.Context) error {
	if err := a.cache.Clear(ctx); err != nil {
		return err
	}
	a.met.CacheStats(0, 0)
	eventbus.Publish(a.bus, eventbus.CacheCleared, nil)
	a.log.Info("cache cleared")
	return nil
}

// Stats is what the :stats command prints.
type Stats struct {
	Cache    storage.Stats
	Aliases  int
	Polling  bool
	PollRuns uint64
	Engine   engine.Snapshot
}

func (a *App) Stats(ctx context.Context) (Stats, error) {
	cs, err := a.cache.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	runs, _ := a.sched.RunCount(a.poll.id)
	return Stats{
		Cache:    cs,
		Aliases:  a.aliases.Len(),
		Polling:  a.Polling(),
		PollRuns: runs,
		Engine:   a.engine.Snapshot(),
	}, nil
}

// Lookup shows the lyrics of one song without the player.
func (a *App) Lookup(ctx context.Context, artist, title string) (pipeline.Outcome, error) {
	return a.pipe.Lookup(ctx, artist, title)
}

// Console returns the writer used for lyrics; console replies go through
// it so they never interleave with a lyrics block.
func (a *App) Console() *display.Console { return a.console }

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.notify.Stopping()
	_, _ = a.notify.Status("stopping: %s", reason)
	a.sup.Cancel()

	// step bounds each shutdown step so one component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("debugsrv", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.Close()
}

// Close releases the cache, the player connection and the log sinks. Stop
// calls it; use it directly only when Start was never called.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.player.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.logs.Close())
	return errors.Join(errs...)
}

// liveDisplay lets config reloads swap the Telegram display.
type liveDisplay struct {
	mu  sync.RWMutex
	cur display.Multi
}

func (d *liveDisplay) set(console *display.Console, tg *display.Telegram) {
	m := display.Multi{console}
	if tg != nil {
		m = append(m, tg)
	}
	d.mu.Lock()
	d.cur = m
	d.mu.Unlock()
}

func (d *liveDisplay) load() display.Multi {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cur
}

func (d *liveDisplay) Show(ctx context.Context, t lyrics.Track, text string) error {
	return d.load().Show(ctx, t, text)
}

func (d *liveDisplay) NotFound(ctx context.Context, t lyrics.Track) error {
	return d.load().NotFound(ctx, t)
}
