// Package scheduler runs named tasks on a shared engine.Service.
//
// A Task is one of four kinds: one-shot, fixed-rate (start-to-start),
// fixed-delay (end-to-start) or cron. The scheduler only computes trigger
// times and arms timers; every invocation is handed to the worker pool as an
// engine.Job. The next timer of a repeating task is armed after the current
// run completes, so a task never overlaps itself.
package scheduler
