package scheduler

import (
	"sort"
	"time"

	"spotmylyrics/internal/task/engine"
)

type HandleInfo struct {
	ID    string
	Kind  Kind
	State State
	Runs  uint64
	Next  time.Time
	Last  time.Time
}

type Snapshot struct {
	Running bool
	OnPanic PanicPolicy
	Tasks   []HandleInfo
	Engine  engine.Snapshot
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{Running: s.running, OnPanic: s.cfg.OnPanic}
	out.Tasks = make([]HandleInfo, 0, len(s.handles))
	for _, h := range s.handles {
		out.Tasks = append(out.Tasks, HandleInfo{
			ID:    h.id,
			Kind:  h.task.Kind,
			State: h.state,
			Runs:  h.runs.Load(),
			Next:  h.next,
			Last:  h.last,
		})
	}
	eng := s.engine
	s.mu.Unlock()

	sort.Slice(out.Tasks, func(i, j int) bool { return out.Tasks[i].ID < out.Tasks[j].ID })
	if eng != nil {
		out.Engine = eng.Snapshot()
	}
	return out
}
