package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"spotmylyrics/internal/eventbus"
	logx "spotmylyrics/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedJob) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qj := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, qj)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qj queuedJob) {
	if qj.job.Ready != nil && !qj.job.Ready() {
		s.discard(qj, nil)
		return
	}

	start := time.Now()
	res := Result{Started: start, QueueDelay: start.Sub(qj.enqueuedAt)}
	if res.QueueDelay < 0 {
		res.QueueDelay = 0
	}
	name := qj.job.Name
	eventbus.Publish(s.bus, eventbus.TaskStarted, TaskEvent{Name: name, Started: start, QueueDelay: res.QueueDelay})

	// A panicking job must not take the worker down with it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Panic = r
				res.Stack = string(debug.Stack())
				res.Err = fmt.Errorf("panic: %v", r)
			}
		}()
		res.Err = qj.job.Run(ctx)
	}()
	res.Duration = time.Since(start)
	s.executed.Add(1)

	ev := TaskEvent{Name: name, Started: start, QueueDelay: res.QueueDelay, Duration: res.Duration}
	item := HistoryItem{Name: name, Started: start, QueueDelay: res.QueueDelay, Duration: res.Duration}
	switch {
	case res.Panicked():
		s.panics.Add(1)
		ev.Error, item.Error = res.Err.Error(), res.Err.Error()
		s.log.Error("task.panic", logx.String("task", name), logx.Any("panic", res.Panic), logx.Stack(res.Stack))
		eventbus.Publish(s.bus, eventbus.TaskPanicked, ev)
	case res.Err != nil:
		ev.Error, item.Error = res.Err.Error(), res.Err.Error()
		s.log.Warn("task.failed", logx.String("task", name), logx.Err(res.Err), logx.Duration("dur", res.Duration))
		eventbus.Publish(s.bus, eventbus.TaskFailed, ev)
	default:
		if res.Duration >= 750*time.Millisecond {
			s.log.Info("task.completed", logx.String("task", name), logx.Duration("queue_delay", res.QueueDelay), logx.Duration("dur", res.Duration))
		}
		eventbus.Publish(s.bus, eventbus.TaskFinished, ev)
	}
	s.record(item)

	if qj.job.Done != nil {
		qj.job.Done(res)
	}
}

// discard finishes a job that never ran.
func (s *Service) discard(qj queuedJob, err error) {
	reason := "cancelled"
	if err != nil {
		reason = "stopped"
	}
	s.met.Dropped(reason)
	s.log.Debug("task discarded", logx.String("task", qj.job.Name), logx.String("reason", reason))
	if qj.job.Done != nil {
		qj.job.Done(Result{Started: time.Now(), Skipped: true, Err: err})
	}
}
