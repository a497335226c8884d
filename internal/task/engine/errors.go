package engine

import "errors"

var (
	ErrStopped   = errors.New("task engine stopped")
	ErrStopping  = errors.New("task engine stopping")
	ErrQueueFull = errors.New("task engine queue full")
	ErrNoRun     = errors.New("task Run is nil")
	ErrNoName    = errors.New("task Name is required")
)
