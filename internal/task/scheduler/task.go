package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Kind is the repetition mode of a Task.
type Kind int

const (
	OneShot Kind = iota
	FixedRate
	FixedDelay
	Cron
)

func (k Kind) String() string {
	switch k {
	case OneShot:
		return "one_shot"
	case FixedRate:
		return "fixed_rate"
	case FixedDelay:
		return "fixed_delay"
	case Cron:
		return "cron"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Task is what the scheduler runs. Run receives a context that is cancelled
// when the task is cancelled without allowing in-flight work, or when the
// scheduler stops.
type Task struct {
	Kind    Kind
	Initial Duration
	Period  Duration
	Cron    string
	Run     func(ctx context.Context) error
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func NewOneShot(delay Duration, fn func(ctx context.Context) error) Task {
	return Task{Kind: OneShot, Initial: delay, Period: NoRepeat, Run: fn}
}

func AtFixedRate(initial, period Duration, fn func(ctx context.Context) error) Task {
	return Task{Kind: FixedRate, Initial: initial, Period: period, Run: fn}
}

func WithFixedDelay(initial, period Duration, fn func(ctx context.Context) error) Task {
	return Task{Kind: FixedDelay, Initial: initial, Period: period, Run: fn}
}

// OnCron fires at the times of a robfig/cron spec. The first run is the
// first match after scheduling.
func OnCron(spec string, fn func(ctx context.Context) error) Task {
	return Task{Kind: Cron, Initial: Millis(0), Period: NoRepeat, Cron: strings.TrimSpace(spec), Run: fn}
}

// Repeats reports whether the task re-arms after a run.
func (t Task) Repeats() bool { return t.Kind != OneShot }

func (t Task) Validate() error {
	_, err := t.compile()
	return err
}

// compile validates t and parses its cron spec, if any.
func (t Task) compile() (cron.Schedule, error) {
	if t.Run == nil {
		return nil, fmt.Errorf("%w: Run is nil", ErrInvalidTask)
	}
	if err := t.Initial.Validate(); err != nil {
		return nil, err
	}
	if t.Initial.IsNoRepeat() {
		return nil, fmt.Errorf("%w: initial delay must be >= 0", ErrInvalidTask)
	}
	if err := t.Period.Validate(); err != nil {
		return nil, err
	}
	switch t.Kind {
	case OneShot:
		if !t.Period.IsNoRepeat() {
			return nil, fmt.Errorf("%w: one-shot period must be NoRepeat, got %s", ErrInvalidTask, t.Period)
		}
	case FixedRate, FixedDelay:
		if t.Period.Std() <= 0 {
			return nil, fmt.Errorf("%w: %s period must be > 0, got %s", ErrInvalidTask, t.Kind, t.Period)
		}
	case Cron:
		if t.Cron == "" {
			return nil, fmt.Errorf("%w: cron spec required", ErrInvalidTask)
		}
		sched, err := cronParser.Parse(t.Cron)
		if err != nil {
			return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidTask, t.Cron, err)
		}
		return sched, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidTask, int(t.Kind))
	}
	return nil, nil
}
