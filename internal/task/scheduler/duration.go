package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit of a Duration.
type Unit int

const (
	Nanoseconds Unit = iota
	Microseconds
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

var units = []struct {
	u      Unit
	suffix string
	size   time.Duration
}{
	{Days, "d", 24 * time.Hour},
	{Hours, "h", time.Hour},
	{Minutes, "m", time.Minute},
	{Seconds, "s", time.Second},
	{Milliseconds, "ms", time.Millisecond},
	{Microseconds, "us", time.Microsecond},
	{Nanoseconds, "ns", time.Nanosecond},
}

func (u Unit) size() (time.Duration, bool) {
	for _, x := range units {
		if x.u == u {
			return x.size, true
		}
	}
	return 0, false
}

func (u Unit) String() string {
	for _, x := range units {
		if x.u == u {
			return x.suffix
		}
	}
	return "unit(" + strconv.Itoa(int(u)) + ")"
}

// Duration is an amount of time in a given unit.
type Duration struct {
	Value int64
	Unit  Unit
}

// NoRepeat is the period of a one-shot task.
var NoRepeat = Duration{Value: -1, Unit: Milliseconds}

func Of(v int64, u Unit) Duration { return Duration{Value: v, Unit: u} }
func Millis(n int64) Duration { return Of(n, Milliseconds) }
func Secs(n int64) Duration { return Of(n, Seconds) }

// FromStd picks the largest unit that represents d exactly.
func FromStd(d time.Duration) Duration {
	if d == 0 {
		return Duration{Unit: Milliseconds}
	}
	for _, x := range units {
		if d%x.size == 0 {
			return Duration{Value: int64(d / x.size), Unit: x.u}
		}
	}
	return Duration{Value: int64(d), Unit: Nanoseconds}
}

// Std converts to a time.Duration. Unknown units convert to 0.
func (d Duration) Std() time.Duration {
	sz, ok := d.Unit.size()
	if !ok {
		return 0
	}
	return time.Duration(d.Value) * sz
}

func (d Duration) IsNoRepeat() bool { return d == NoRepeat }

// Validate rejects unknown units and negative values other than NoRepeat.
func (d Duration) Validate() error {
	if _, ok := d.Unit.size(); !ok {
		return fmt.Errorf("%w: unknown unit %d", ErrInvalidTask, int(d.Unit))
	}
	if d.Value < 0 && !d.IsNoRepeat() {
		return fmt.Errorf("%w: negative duration %s", ErrInvalidTask, d)
	}
	return nil
}

func (d Duration) String() string {
	if d.IsNoRepeat() {
		return "none"
	}
	return strconv.FormatInt(d.Value, 10) + d.Unit.String()
}

var reSimpleDuration = regexp.MustCompile(`^(-?\d+)(ns|us|µs|ms|s|m|h|d)$`)

// ParseDuration accepts "none", a single "<n><unit>" term (units ns, us, ms,
// s, m, h, d) which keeps its unit, or any Go duration string.
func ParseDuration(raw string) (Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Duration{}, fmt.Errorf("duration required")
	}
	if strings.EqualFold(s, "none") {
		return NoRepeat, nil
	}
	if m := reSimpleDuration.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		suffix := m[2]
		if suffix == "µs" {
			suffix = "us"
		}
		for _, x := range units {
			if x.suffix == suffix {
				d := Duration{Value: v, Unit: x.u}
				return d, d.Validate()
			}
		}
	}
	std, err := time.ParseDuration(s)
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d := FromStd(std)
	return d, d.Validate()
}
