package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spotmylyrics/internal/task/engine"
	logx "spotmylyrics/pkg/logx"
)

func newTestScheduler(t *testing.T, cfg Config, ecfg engine.Config) (*Scheduler, *engine.Service) {
	t.Helper()
	eng := engine.New(ecfg, logx.Nop(), nil, nil)
	eng.Start(context.Background())
	s := New(cfg, eng, logx.Nop(), nil, nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})
	return s, eng
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func runCount(t *testing.T, s *Scheduler, id string) uint64 {
	t.Helper()
	n, ok := s.RunCount(id)
	if !ok {
		t.Fatalf("RunCount(%q) not found", id)
	}
	return n
}

func stateOf(s *Scheduler, id string) State {
	for _, h := range s.Snapshot().Tasks {
		if h.ID == id {
			return h.State
		}
	}
	return ""
}

func TestScheduleRequiresRunningScheduler(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil, nil)
	task := NewOneShot(Millis(0), func(context.Context) error { return nil })
	if err := s.Schedule("x", task); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Schedule before Start = %v, want ErrNotRunning", err)
	}

	s2, _ := newTestScheduler(t, Config{}, engine.Config{})
	if err := s2.Schedule("  ", task); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("blank id = %v, want ErrEmptyID", err)
	}
	if err := s2.Schedule("bad", AtFixedRate(Millis(0), Millis(0), task.Run)); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("zero period = %v, want ErrInvalidTask", err)
	}
	if _, ok := s2.RunCount("bad"); ok {
		t.Fatal("rejected task was registered")
	}
}

func TestCancelRemovesTask(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	var calls atomic.Int64
	err := s.Schedule("tick", AtFixedRate(Millis(0), Millis(5), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, "first runs", func() bool { return runCount(t, s, "tick") >= 2 })

	if !s.Cancel("tick", true) {
		t.Fatal("Cancel returned false for a registered task")
	}
	if _, ok := s.RunCount("tick"); ok {
		t.Fatal("RunCount found a cancelled task")
	}
	if s.Cancel("tick", true) {
		t.Fatal("second Cancel returned true")
	}

	time.Sleep(20 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != settled {
		t.Fatalf("task ran after cancel: %d -> %d", settled, got)
	}
}

func TestCancelWithoutInFlightCancelsContext(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	started := make(chan struct{})
	observed := make(chan error, 1)
	_ = s.Schedule("slow", NewOneShot(Millis(0), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return ctx.Err()
	}))
	<-started
	if !s.Cancel("slow", false) {
		t.Fatal("Cancel returned false")
	}
	select {
	case err := <-observed:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ctx.Err() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("body never observed cancellation")
	}
}

func TestCancelAllowInFlightLetsRunFinish(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	started := make(chan struct{})
	release := make(chan struct{})
	result := make(chan error, 1)
	_ = s.Schedule("slow", NewOneShot(Millis(0), func(ctx context.Context) error {
		close(started)
		<-release
		result <- ctx.Err()
		return nil
	}))
	<-started
	s.Cancel("slow", true)
	close(release)
	if err := <-result; err != nil {
		t.Fatalf("in-flight ctx.Err() = %v, want nil", err)
	}
}

func TestFixedRateCadenceWithoutOverlap(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{Workers: 4})
	var active, maxActive atomic.Int32
	var mu sync.Mutex
	var starts []time.Time
	t0 := time.Now()
	err := s.Schedule("rate", AtFixedRate(Millis(0), Millis(20), func(context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, "six runs", func() bool { return runCount(t, s, "rate") >= 6 })
	s.Cancel("rate", true)

	if got := maxActive.Load(); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	// The n-th start is planned at t0 + n*P and timers never fire early.
	for i, st := range starts {
		if floor := time.Duration(i) * 20 * time.Millisecond; st.Sub(t0) < floor {
			t.Fatalf("start %d at %v after scheduling, want >= %v", i, st.Sub(t0), floor)
		}
	}
	if len(starts) < 6 {
		t.Fatalf("recorded %d starts, want >= 6", len(starts))
	}
}

func TestFixedRateOverrunStartsBackToBack(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{Workers: 4})
	var active, overlaps atomic.Int32
	err := s.Schedule("slow", AtFixedRate(Millis(0), Millis(5), func(context.Context) error {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(15 * time.Millisecond)
		active.Add(-1)
		return nil
	}))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, "four runs", func() bool { return runCount(t, s, "slow") >= 4 })
	if overlaps.Load() != 0 {
		t.Fatalf("overlapping runs: %d", overlaps.Load())
	}
}

func TestFixedDelayGap(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	var mu sync.Mutex
	var starts, ends []time.Time
	err := s.Schedule("delay", WithFixedDelay(Millis(0), Millis(25), func(context.Context) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return nil
	}))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, "four runs", func() bool { return runCount(t, s, "delay") >= 4 })
	s.Cancel("delay", true)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts) && i <= len(ends); i++ {
		if gap := starts[i].Sub(ends[i-1]); gap < 25*time.Millisecond {
			t.Fatalf("run %d started %v after the previous end, want >= 25ms", i, gap)
		}
	}
}

func TestScheduleReplacesExistingID(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	var oldCalls, newCalls atomic.Int64
	_ = s.Schedule("job", AtFixedRate(Millis(0), Millis(5), func(context.Context) error {
		oldCalls.Add(1)
		return nil
	}))
	waitFor(t, "old task runs", func() bool { return oldCalls.Load() >= 2 })

	if err := s.Schedule("job", AtFixedRate(Millis(0), Millis(5), func(context.Context) error {
		newCalls.Add(1)
		return nil
	})); err != nil {
		t.Fatalf("replace Schedule: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	frozen := oldCalls.Load()
	waitFor(t, "new task runs", func() bool { return newCalls.Load() >= 3 })
	if got := oldCalls.Load(); got != frozen {
		t.Fatalf("replaced task kept running: %d -> %d", frozen, got)
	}
	if n := runCount(t, s, "job"); n > uint64(newCalls.Load()) {
		t.Fatalf("RunCount = %d exceeds new task calls %d", n, newCalls.Load())
	}
}

func TestScheduleUniqueRejectsDuplicate(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	task := AtFixedRate(Secs(60), Secs(60), func(context.Context) error { return nil })
	if err := s.ScheduleUnique("only", task); err != nil {
		t.Fatalf("first ScheduleUnique: %v", err)
	}
	if err := s.ScheduleUnique("only", task); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second ScheduleUnique = %v, want ErrDuplicate", err)
	}
}

func TestPanicPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		policy    PanicPolicy
		wantState State
		moreCalls bool
	}{
		{PanicDisable, StateFaulted, false},
		{PanicContinue, StateArmed, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.policy), func(t *testing.T) {
			t.Parallel()
			s, _ := newTestScheduler(t, Config{OnPanic: tt.policy}, engine.Config{})
			var calls atomic.Int64
			_ = s.Schedule("boom", AtFixedRate(Millis(0), Millis(5), func(context.Context) error {
				calls.Add(1)
				panic("kaboom")
			}))
			waitFor(t, "first panic handled", func() bool {
				st := stateOf(s, "boom")
				return calls.Load() >= 1 && (st == StateFaulted || calls.Load() >= 3)
			})
			time.Sleep(30 * time.Millisecond)

			if n := runCount(t, s, "boom"); n != 0 {
				t.Fatalf("RunCount after panics = %d, want 0", n)
			}
			if tt.moreCalls != (calls.Load() > 1) {
				t.Fatalf("calls = %d, want repeated=%v", calls.Load(), tt.moreCalls)
			}
			if st := stateOf(s, "boom"); !tt.moreCalls && st != tt.wantState {
				t.Fatalf("state = %q, want %q", st, tt.wantState)
			}
		})
	}
}

func TestErrorStillCountsAsRun(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	_ = s.Schedule("fails", AtFixedRate(Millis(0), Millis(5), func(context.Context) error {
		return errors.New("upstream down")
	}))
	waitFor(t, "three counted runs", func() bool { return runCount(t, s, "fails") >= 3 })
	if st := stateOf(s, "fails"); st == StateFaulted {
		t.Fatal("returned error faulted the task")
	}
}

func TestOneShotRunsOnce(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	var calls atomic.Int64
	_ = s.Schedule("once", NewOneShot(Millis(5), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	waitFor(t, "one-shot done", func() bool { return stateOf(s, "once") == StateDone })
	time.Sleep(20 * time.Millisecond)
	if n := runCount(t, s, "once"); n != 1 {
		t.Fatalf("RunCount = %d, want 1", n)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestCancelSkipsQueuedInvocation(t *testing.T) {
	t.Parallel()
	s, eng := newTestScheduler(t, Config{}, engine.Config{Workers: 1, QueueSize: 4})
	started := make(chan struct{})
	release := make(chan struct{})
	_ = s.Schedule("blocker", NewOneShot(Millis(0), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	var ran atomic.Bool
	_ = s.Schedule("victim", NewOneShot(Millis(0), func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	waitFor(t, "victim queued", func() bool { return eng.Snapshot().QueueLen == 1 })
	s.Cancel("victim", true)
	close(release)

	waitFor(t, "queue drained", func() bool { return eng.Snapshot().QueueLen == 0 && stateOf(s, "blocker") == StateDone })
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled queued invocation ran")
	}
}

func TestTriggerRunsOutOfBand(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	_ = s.Schedule("hourly", AtFixedRate(Of(1, Hours), Of(1, Hours), func(context.Context) error { return nil }))
	if err := s.Trigger("hourly"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, "triggered run", func() bool { return runCount(t, s, "hourly") == 1 })
	waitFor(t, "state back to armed", func() bool { return stateOf(s, "hourly") == StateArmed })
	if err := s.Trigger("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Trigger(missing) = %v, want ErrNotFound", err)
	}
}

func TestStopClearsTasks(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, Config{}, engine.Config{})
	_ = s.Schedule("a", AtFixedRate(Secs(60), Secs(60), func(context.Context) error { return nil }))
	if got := len(s.Snapshot().Tasks); got != 1 {
		t.Fatalf("tasks = %d, want 1", got)
	}
	s.Stop(context.Background())
	if _, ok := s.RunCount("a"); ok {
		t.Fatal("task survived Stop")
	}
	if err := s.Schedule("b", NewOneShot(Millis(0), func(context.Context) error { return nil })); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Schedule after Stop = %v, want ErrNotRunning", err)
	}
}

func TestParsePanicPolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]PanicPolicy{"": PanicDisable, "Disable": PanicDisable, " continue ": PanicContinue} {
		got, err := ParsePanicPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePanicPolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePanicPolicy("retry"); err == nil {
		t.Fatal("ParsePanicPolicy accepted unknown policy")
	}
}
