package engine

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
	rtsup "spotmylyrics/internal/runtime/supervisor"
	logx "spotmylyrics/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service is a bounded worker pool. Jobs are queued without blocking and
// executed by a fixed number of supervised workers.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	met *metrics.Metrics

	q        chan queuedJob
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopping bool

	inFlight atomic.Int32
	executed atomic.Uint64
	dropped  atomic.Uint64
	panics   atomic.Uint64

	lastDropWarnAt atomic.Int64

	hmu     sync.Mutex
	history []HistoryItem
}

type queuedJob struct {
	job        Job
	enqueuedAt time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, met *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), log: log, bus: bus, met: met}
}

// Start launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q != nil {
		return
	}
	cfg := s.cfg
	s.q = make(chan queuedJob, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopping = false
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "engine.sup"))),
		rtsup.WithCancelOnError(false),
	)

	queue, stopCh := s.q, s.stopCh
	for i := 0; i < cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return nil
			default:
			}
			if c.Err() != nil {
				return nil
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop stops the workers and waits for in-flight jobs until ctx is done.
// Jobs still queued are discarded with Result.Skipped and Err = ErrStopped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.q == nil || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	close(s.stopCh)
	sup, queue := s.sup, s.q
	s.mu.Unlock()

	err := sup.Stop(ctx)
	if err != nil && errors.Is(err, ctx.Err()) {
		s.log.Warn("task engine stop timed out", logx.Err(err))
	}

	// No Enqueue can send once stopping is set, so the drain is complete.
drain:
	for {
		select {
		case qj := <-queue:
			s.discard(qj, ErrStopped)
		default:
			break drain
		}
	}

	s.mu.Lock()
	s.q = nil
	s.stopCh = nil
	s.sup = nil
	s.stopping = false
	s.mu.Unlock()
	s.log.Info("task engine stopped")
}

// Running reports whether the pool accepts jobs.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q != nil && !s.stopping
}

// Enqueue queues j without blocking.
func (s *Service) Enqueue(j Job) error {
	if j.Run == nil {
		return ErrNoRun
	}
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		return ErrNoName
	}

	now := time.Now()
	s.mu.Lock()
	if s.q == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.stopping {
		s.mu.Unlock()
		return ErrStopping
	}
	// Sending under the lock keeps Stop's drain exhaustive; the send never blocks.
	select {
	case s.q <- queuedJob{job: j, enqueuedAt: now}:
		s.mu.Unlock()
		return nil
	default:
	}
	ql, qc := len(s.q), cap(s.q)
	s.mu.Unlock()

	s.dropped.Add(1)
	s.met.Dropped("queue_full")
	eventbus.Publish(s.bus, eventbus.TaskDropped, TaskEvent{Name: j.Name, Started: now, Error: "queue_full"})
	if s.shouldWarn(now) {
		s.log.Warn("task dropped: queue full",
			logx.String("task", j.Name),
			logx.Int("queue_len", ql),
			logx.Int("queue_cap", qc),
			logx.Uint64("dropped", s.dropped.Load()),
		)
	}
	return ErrQueueFull
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	running := s.q != nil && !s.stopping
	ql, qc := 0, 0
	if s.q != nil {
		ql, qc = len(s.q), cap(s.q)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Running:  running,
		Workers:  cfg.Workers,
		QueueLen: ql,
		QueueCap: qc,
		InFlight: int(s.inFlight.Load()),
		Executed: s.executed.Load(),
		Dropped:  s.dropped.Load(),
		Panics:   s.panics.Load(),
		History:  h,
	}
}

func (s *Service) shouldWarn(now time.Time) bool {
	prev := s.lastDropWarnAt.Load()
	n := now.UnixNano()
	if prev != 0 && n-prev < int64(warnThrottleEvery) {
		return false
	}
	return s.lastDropWarnAt.CompareAndSwap(prev, n)
}

func (s *Service) record(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if n := s.cfg.HistorySize; len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
	s.hmu.Unlock()
}
