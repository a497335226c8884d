package scheduler

import (
	"errors"
	"time"

	"spotmylyrics/internal/task/engine"
	logx "spotmylyrics/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Scheduler) reportEnqueueError(id string, err error) {
	if err == nil {
		return
	}
	// The engine already warns about a full queue.
	if errors.Is(err, engine.ErrQueueFull) {
		s.log.Debug("tick skipped: queue full", logx.String("task", id))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	s.enqMu.Unlock()

	s.log.Warn("task failed to enqueue", logx.String("task", id), logx.Err(err))
}
