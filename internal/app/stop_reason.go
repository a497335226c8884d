package app

// StopReason says why the app is shutting down; it is logged and shown in
// the systemd status line.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopQuit       StopReason = "quit"
	StopFatalError StopReason = "fatal_error"
)
