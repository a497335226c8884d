package scheduler

import "errors"

var (
	ErrNotRunning  = errors.New("scheduler not running")
	ErrInvalidTask = errors.New("invalid task")
	ErrEmptyID     = errors.New("task id required")
	ErrDuplicate   = errors.New("task id already scheduled")
	ErrNotFound    = errors.New("task not found")
	ErrBusy        = errors.New("task already in flight")
)
