package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"spotmylyrics/internal/eventbus"
	"spotmylyrics/internal/observability/metrics"
	"spotmylyrics/internal/task/engine"
	logx "spotmylyrics/pkg/logx"

	"github.com/robfig/cron/v3"
)

// PanicPolicy decides what happens to a repeating task whose body panicked.
type PanicPolicy string

const (
	// PanicDisable keeps the handle registered in StateFaulted and never re-arms it.
	PanicDisable PanicPolicy = "disable"
	// PanicContinue logs the panic and arms the next tick as usual.
	PanicContinue PanicPolicy = "continue"
)

func ParsePanicPolicy(s string) (PanicPolicy, error) {
	switch PanicPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PanicDisable:
		return PanicDisable, nil
	case PanicContinue:
		return PanicContinue, nil
	default:
		return "", fmt.Errorf("unknown panic policy %q (use disable or continue)", s)
	}
}

type Config struct {
	OnPanic PanicPolicy
}

// State is the lifecycle state of a scheduled handle.
type State string

const (
	StateArmed   State = "armed"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFaulted State = "faulted"
)

type handle struct {
	id    string
	task  Task
	sched cron.Schedule
	runs  atomic.Uint64

	cancelled atomic.Bool

	// Guarded by Scheduler.mu.
	state     State
	timer     *time.Timer
	planned   time.Time
	next      time.Time
	last      time.Time
	busy      bool
	runCancel context.CancelFunc
}

// Scheduler arms timers for named tasks and hands each invocation to the
// engine. All methods are safe for concurrent use, including from task bodies.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	handles map[string]*handle

	engine *engine.Service
	log    logx.Logger
	bus    eventbus.Bus
	met    *metrics.Metrics

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus, met *metrics.Metrics) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.OnPanic == "" {
		cfg.OnPanic = PanicDisable
	}
	return &Scheduler{
		cfg:         cfg,
		engine:      eng,
		log:         log,
		bus:         bus,
		met:         met,
		handles:     map[string]*handle{},
		lastEnqWarn: map[string]time.Time{},
	}
}

// Start enables scheduling. Invocation contexts derive from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.log.Info("scheduler started", logx.String("on_panic", string(s.cfg.OnPanic)))
}

// Stop cancels every handle and the contexts of in-flight invocations.
// It does not wait for bodies to return; stopping the engine does that.
func (s *Scheduler) Stop(_ context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	n := len(s.handles)
	for id, h := range s.handles {
		s.detachLocked(h)
		delete(s.handles, id)
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.met.SetTasks(0)
	s.log.Info("scheduler stopped", logx.Int("tasks", n))
}

// Schedule registers t under id and arms its first timer. An existing task
// with the same id is cancelled (its in-flight run may finish) and replaced.
func (s *Scheduler) Schedule(id string, t Task) error {
	return s.schedule(id, t, true)
}

// ScheduleUnique is Schedule that fails with ErrDuplicate instead of replacing.
func (s *Scheduler) ScheduleUnique(id string, t Task) error {
	return s.schedule(id, t, false)
}

func (s *Scheduler) schedule(id string, t Task, replace bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}
	sched, err := t.compile()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	replaced := false
	if old, ok := s.handles[id]; ok {
		if !replace {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicate, id)
		}
		s.detachLocked(old)
		delete(s.handles, id)
		replaced = true
	}
	h := &handle{id: id, task: t, sched: sched}
	s.handles[id] = h

	now := time.Now()
	first := now.Add(t.Initial.Std())
	if t.Kind == Cron {
		first = sched.Next(first)
	}
	s.armLocked(h, first)
	count := len(s.handles)
	s.mu.Unlock()

	s.met.SetTasks(count)
	eventbus.Publish(s.bus, eventbus.TaskScheduled, map[string]any{"id": id, "kind": t.Kind.String(), "next": first})
	s.log.Debug("task scheduled",
		logx.String("task", id),
		logx.String("kind", t.Kind.String()),
		logx.Time("next", first),
		logx.Bool("replaced", replaced),
	)
	return nil
}

// Cancel removes the task. It never waits: with allowInFlight the current
// run completes normally, otherwise its context is cancelled. Either way no
// further invocation starts, including one already queued on the engine.
func (s *Scheduler) Cancel(id string, allowInFlight bool) bool {
	s.mu.Lock()
	h, ok := s.handles[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.handles, id)
	runCancel := s.detachLocked(h)
	count := len(s.handles)
	s.mu.Unlock()

	if !allowInFlight && runCancel != nil {
		runCancel()
	}
	s.met.SetTasks(count)
	eventbus.Publish(s.bus, eventbus.TaskCancelled, map[string]any{"id": id, "allow_in_flight": allowInFlight})
	s.log.Debug("task cancelled", logx.String("task", id), logx.Bool("allow_in_flight", allowInFlight))
	return true
}

// RunCount returns how many invocations of id have returned, panics excluded.
func (s *Scheduler) RunCount(id string) (uint64, bool) {
	s.mu.Lock()
	h, ok := s.handles[id]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return h.runs.Load(), true
}

// Trigger runs id now without touching its timer. It fails with ErrBusy
// while an invocation of id is queued or running.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	h, ok := s.handles[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if h.busy {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	prev := h.state
	job := s.prepareLocked(h, false, prev)
	s.mu.Unlock()

	if err := s.engine.Enqueue(job); err != nil {
		s.abandon(h, prev)
		return err
	}
	return nil
}

// detachLocked marks h cancelled and stops its timer. It returns the cancel
// func of the in-flight invocation, if any.
func (s *Scheduler) detachLocked(h *handle) context.CancelFunc {
	h.cancelled.Store(true)
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	return h.runCancel
}

func (s *Scheduler) armLocked(h *handle, at time.Time) {
	h.planned = at
	h.next = at
	h.state = StateArmed
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	h.timer = time.AfterFunc(d, func() { s.fire(h) })
}

func (s *Scheduler) fire(h *handle) {
	s.mu.Lock()
	if !s.running || h.cancelled.Load() || s.handles[h.id] != h {
		s.mu.Unlock()
		return
	}
	h.timer = nil
	if h.busy {
		// Only a Trigger can be in flight here; skip this tick.
		s.log.Debug("tick skipped: task in flight", logx.String("task", h.id))
		s.rearmLocked(h, time.Now())
		s.mu.Unlock()
		return
	}
	job := s.prepareLocked(h, true, StateArmed)
	s.mu.Unlock()

	err := s.engine.Enqueue(job)
	if err == nil {
		return
	}
	s.reportEnqueueError(h.id, err)
	s.abandon(h, StateArmed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || h.cancelled.Load() || s.handles[h.id] != h {
		return
	}
	if errors.Is(err, engine.ErrQueueFull) {
		s.rearmLocked(h, time.Now())
		return
	}
	// The engine is gone; nothing will ever run this handle again.
	h.state = StateDone
	h.next = time.Time{}
}

// prepareLocked builds the engine job for one invocation of h. prev is the
// state to fall back to when the invocation does not decide a new one.
func (s *Scheduler) prepareLocked(h *handle, rearm bool, prev State) engine.Job {
	ctx, cancel := context.WithCancel(s.ctx)
	h.busy = true
	h.state = StateRunning
	h.runCancel = cancel

	return engine.Job{
		Name:  h.id,
		Ready: func() bool { return !h.cancelled.Load() },
		Run: func(wctx context.Context) error {
			stop := context.AfterFunc(wctx, cancel)
			defer stop()
			err := h.task.Run(ctx)
			// A panic unwinds past this line, so it never counts as a run.
			h.runs.Add(1)
			return err
		},
		Done: func(r engine.Result) {
			cancel()
			s.complete(h, r, rearm, prev)
		},
	}
}

// abandon undoes prepareLocked for a job the engine refused.
func (s *Scheduler) abandon(h *handle, prev State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.runCancel != nil {
		h.runCancel()
		h.runCancel = nil
	}
	h.busy = false
	if h.state == StateRunning {
		h.state = prev
	}
}

func (s *Scheduler) complete(h *handle, r engine.Result, rearm bool, prev State) {
	if !r.Skipped {
		result := "ok"
		switch {
		case r.Panicked():
			result = "panic"
		case r.Err != nil:
			result = "error"
		}
		s.met.TaskRun(h.id, result, r.Duration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h.busy = false
	h.runCancel = nil
	if !r.Skipped {
		h.last = r.Started
	}
	if !s.running || h.cancelled.Load() || s.handles[h.id] != h {
		return
	}
	if r.Panicked() && s.cfg.OnPanic == PanicDisable {
		if h.timer != nil {
			h.timer.Stop()
			h.timer = nil
		}
		h.state = StateFaulted
		h.next = time.Time{}
		s.log.Warn("task disabled after panic", logx.String("task", h.id))
		return
	}
	if !rearm {
		// Trigger runs leave the timer alone.
		switch {
		case h.timer != nil:
			h.state = StateArmed
		case !h.task.Repeats() && h.runs.Load() > 0:
			h.state = StateDone
		default:
			h.state = prev
		}
		return
	}
	if !h.task.Repeats() {
		h.state = StateDone
		h.next = time.Time{}
		return
	}
	s.rearmLocked(h, time.Now())
}

// rearmLocked arms the tick after h.planned given that the previous one
// finished (or was skipped) at now.
func (s *Scheduler) rearmLocked(h *handle, now time.Time) {
	var next time.Time
	switch h.task.Kind {
	case FixedRate:
		next = h.planned.Add(h.task.Period.Std())
		if next.Before(now) {
			// Overrun: start right away and plan from here.
			next = now
		}
	case FixedDelay:
		next = now.Add(h.task.Period.Std())
	case Cron:
		base := h.planned
		if now.After(base) {
			base = now
		}
		next = h.sched.Next(base)
		if next.IsZero() {
			h.state = StateDone
			h.next = time.Time{}
			return
		}
	default:
		h.state = StateDone
		return
	}
	s.armLocked(h, next)
}
