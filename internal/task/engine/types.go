package engine

import (
	"context"
	"time"
)

// Config controls the worker pool.
type Config struct {
	Workers     int
	QueueSize   int
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 64
	}
	return c
}

// Job is one invocation handed to the pool.
//
// Ready is checked by the worker right before Run; returning false discards
// the job (Done still fires with Skipped set). Done is called exactly once
// per accepted job, after Run returns or after the job is discarded.
type Job struct {
	Name  string
	Run   func(ctx context.Context) error
	Ready func() bool
	Done  func(Result)
}

// Result describes how a job ended.
type Result struct {
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Err        error
	Panic      any
	Stack      string
	Skipped    bool
}

// Panicked reports whether Run escaped with a panic.
func (r Result) Panicked() bool { return r.Panic != nil }

type HistoryItem struct {
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is the payload of task.* events on the bus.
type TaskEvent struct {
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int
	Executed uint64
	Dropped  uint64
	Panics   uint64
	History  []HistoryItem
}
