// Package systemd talks to the service manager through sd_notify.
// Every call is a no-op outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state changes to systemd. The zero value is usable.
type Notifier struct {
	// Disabled turns every call into a no-op (systemd.notify: false).
	Disabled bool
}

func (n Notifier) notify(state string) (bool, error) {
	if n.Disabled {
		return false, nil
	}
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		return false, fmt.Errorf("sd_notify %q: %w", state, err)
	}
	return ok, nil
}

// Ready reports READY=1. It returns false when not running under systemd.
func (n Notifier) Ready() (bool, error) { return n.notify(daemon.SdNotifyReady) }

func (n Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }

func (n Notifier) Reloading() (bool, error) { return n.notify(daemon.SdNotifyReloading) }

// Watchdog pings the watchdog.
func (n Notifier) Watchdog() (bool, error) { return n.notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(format string, a ...any) (bool, error) {
	return n.notify("STATUS=" + fmt.Sprintf(format, a...))
}

// WatchdogInterval returns how often Watchdog should be called (half the
// configured WatchdogSec), or 0 when the watchdog is off.
func (n Notifier) WatchdogInterval() (time.Duration, error) {
	if n.Disabled {
		return 0, nil
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, err
	}
	return d / 2, nil
}
