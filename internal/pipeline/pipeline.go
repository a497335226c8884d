// Package pipeline polls the player and shows lyrics when the track changes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spotmylyrics/internal/display"
	"spotmylyrics/internal/eventbus"
	"spotmylyrics/internal/lyrics"
	"spotmylyrics/internal/nowplaying"
	"spotmylyrics/internal/observability/metrics"
	"spotmylyrics/internal/source"
	"spotmylyrics/internal/storage"
	"spotmylyrics/internal/task/scheduler"
	logx "spotmylyrics/pkg/logx"
)

type Outcome int

const (
	// Skipped: no usable player answer, or ctx ended mid-lookup; state
	// untouched.
	Skipped Outcome = iota
	// Unchanged: same track as the previous cycle; nothing was looked up.
	Unchanged
	Displayed
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Unchanged:
		return "unchanged"
	case Displayed:
		return "displayed"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Observation is the last track a cycle acted on.
type Observation struct {
	Track lyrics.Track
	Key   lyrics.Key
	// FromCache reports whether the displayed text came from the cache.
	FromCache bool
}

type Deps struct {
	Player  nowplaying.Player
	Cache   storage.Cache
	Source  source.Fetcher
	Display display.Display
	// Aliases may be nil.
	Aliases *lyrics.Aliases
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
	Log     logx.Logger
}

type Pipeline struct {
	d   Deps
	log logx.Logger

	// sem holds one token; Cycle and Refresh run only while holding it.
	sem chan struct{}

	mu     sync.Mutex
	active *tracker
}

// tracker is the change detector of one polling task.
type tracker struct {
	mu       sync.Mutex
	previous *Observation
}

func (t *tracker) get() (Observation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.previous == nil {
		return Observation{}, false
	}
	return *t.previous, true
}

func (t *tracker) set(o Observation) {
	t.mu.Lock()
	t.previous = &o
	t.mu.Unlock()
}

func New(d Deps) *Pipeline {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		d:      d,
		log:    log.With(logx.String("comp", "pipeline")),
		sem:    make(chan struct{}, 1),
		active: &tracker{},
	}
}

func (p *Pipeline) current() *tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Previous returns the last observation of the current polling task, if
// any cycle has acted yet.
func (p *Pipeline) Previous() (Observation, bool) {
	return p.current().get()
}

// Cycle queries the player once and runs the lookup only when the track
// differs from the previous one. Calls to Cycle and Refresh are serialized;
// a caller whose ctx ends while waiting gets Skipped.
func (p *Pipeline) Cycle(ctx context.Context) (Outcome, error) {
	return p.run(ctx, p.current(), true)
}

// Refresh is Cycle without change detection.
func (p *Pipeline) Refresh(ctx context.Context) (Outcome, error) {
	return p.run(ctx, p.current(), false)
}

func (p *Pipeline) run(ctx context.Context, t *tracker, detectChange bool) (Outcome, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.d.Metrics.Cycle(Skipped.String())
		return Skipped, nil
	}
	defer func() { <-p.sem }()

	track, ok := p.observe(ctx)
	if !ok {
		p.d.Metrics.Cycle(Skipped.String())
		return Skipped, nil
	}
	key := lyrics.KeyOf(track)

	if detectChange {
		if prev, ok := t.get(); ok && prev.Key == key {
			p.d.Metrics.Cycle(Unchanged.String())
			return Unchanged, nil
		}
	}

	eventbus.Publish(p.d.Bus, eventbus.TrackChanged, map[string]any{"track": track.String(), "key": key.String()})
	p.log.Info("track changed", logx.String("track", track.String()), logx.String("key", key.String()))

	outcome, fromCache, err := p.lookupAndShow(ctx, track, key)
	if outcome != Skipped {
		t.set(Observation{Track: track, Key: key, FromCache: fromCache})
	}

	p.d.Metrics.Cycle(outcome.String())
	return outcome, err
}

// Lookup shows the lyrics of artist and title without asking the player.
// The previous observation is left alone.
func (p *Pipeline) Lookup(ctx context.Context, artist, title string) (Outcome, error) {
	track, err := lyrics.ParseAnswer(artist+", "+title, p.d.Aliases)
	if err != nil {
		return Skipped, err
	}
	outcome, _, err := p.lookupAndShow(ctx, track, lyrics.KeyOf(track))
	if outcome == Skipped && err == nil {
		err = ctx.Err()
	}
	return outcome, err
}

func (p *Pipeline) observe(ctx context.Context) (lyrics.Track, bool) {
	raw, err := p.d.Player.NowPlaying(ctx)
	if err != nil {
		if !errors.Is(err, nowplaying.ErrNoAnswer) && ctx.Err() == nil {
			p.log.Debug("player query failed", logx.Err(err))
		}
		return lyrics.Track{}, false
	}
	track, err := lyrics.ParseAnswer(raw, p.d.Aliases)
	if err != nil {
		p.log.Debug("unparseable player answer", logx.String("answer", raw), logx.Err(err))
		return lyrics.Track{}, false
	}
	return track, true
}

func (p *Pipeline) lookupAndShow(ctx context.Context, track lyrics.Track, key lyrics.Key) (Outcome, bool, error) {
	text, fromCache, ok := p.lookup(ctx, key)
	if !ok {
		return Skipped, false, nil
	}
	if text == "" {
		eventbus.Publish(p.d.Bus, eventbus.LyricsNotFound, map[string]any{"track": track.String()})
		if err := p.d.Display.NotFound(ctx, track); err != nil {
			return NotFound, false, fmt.Errorf("display not found: %w", err)
		}
		return NotFound, false, nil
	}

	eventbus.Publish(p.d.Bus, eventbus.LyricsDisplayed, map[string]any{"track": track.String(), "from_cache": fromCache})
	if err := p.d.Display.Show(ctx, track, text); err != nil {
		return Displayed, fromCache, fmt.Errorf("display lyrics: %w", err)
	}
	return Displayed, fromCache, nil
}

// lookup returns the lyrics for key from the cache or the source. An empty
// text means none could be found. ok is false when ctx ended before the
// source answered; nothing is known about the song then.
func (p *Pipeline) lookup(ctx context.Context, key lyrics.Key) (text string, fromCache, ok bool) {
	text, hit, err := p.d.Cache.Get(ctx, key)
	switch {
	case err != nil:
		p.d.Metrics.CacheLookup("error")
		p.log.Warn("cache read failed", logx.String("key", key.String()), logx.Err(err))
	case hit:
		p.d.Metrics.CacheLookup("hit")
		return text, true, true
	default:
		p.d.Metrics.CacheLookup("miss")
	}

	page, err := p.d.Source.Fetch(ctx, key)
	if ctx.Err() != nil {
		p.log.Debug("lyrics fetch abandoned", logx.String("key", key.String()), logx.Err(ctx.Err()))
		return "", false, false
	}
	if err != nil {
		p.log.Info("lyrics fetch failed", logx.String("key", key.String()), logx.Err(err))
		return "", false, true
	}
	text, found := lyrics.Extract(lyrics.FormatSource(page))
	if !found {
		p.log.Info("lyrics marker not found", logx.String("key", key.String()))
		return "", false, true
	}

	if _, err := p.d.Cache.Put(ctx, key, text, false); err != nil {
		p.d.Metrics.CacheWriteFailed()
		p.log.Warn("cache write failed", logx.String("key", key.String()), logx.Err(err))
	}
	return text, false, true
}

// Task returns a repeating task that runs Cycle every period. kind is
// scheduler.FixedDelay or, for anything else, scheduler.FixedRate.
// Each task starts with no previous observation, so the first tick shows
// the current song even if an earlier task already did. The new task's
// state becomes the one Cycle, Refresh and Previous use.
func (p *Pipeline) Task(kind scheduler.Kind, initial, period scheduler.Duration) scheduler.Task {
	t := &tracker{}
	p.mu.Lock()
	p.active = t
	p.mu.Unlock()
	body := func(ctx context.Context) error {
		_, err := p.run(ctx, t, true)
		return err
	}
	if kind == scheduler.FixedDelay {
		return scheduler.WithFixedDelay(initial, period, body)
	}
	return scheduler.AtFixedRate(initial, period, body)
}

// RefreshTask returns a one-shot task running Refresh.
func (p *Pipeline) RefreshTask() scheduler.Task {
	return scheduler.NewOneShot(scheduler.Millis(0), func(ctx context.Context) error {
		_, err := p.Refresh(ctx)
		return err
	})
}
