package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind says how a schedule string was understood.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is the result of ParseSchedule. Source is "cron", "duration"
// or "hhmm".
//
// Accepted strings:
//
//	"*/5 * * * *", "@hourly", "@every 10m"   cron (robfig/cron syntax)
//	"10m", "2h30m"                           Go duration
//	"00:50", "02:30"                         hours:minutes interval
//
// A "cron:" prefix forces cron; "interval:" and "every:" force an interval.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string
}

var (
	hhmmRe = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

	errEmptySchedule   = errors.New("schedule required")
	errNonPositiveStep = errors.New("interval must be > 0")
)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errEmptySchedule
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron expression required after %q", "cron:")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			return parseInterval(rest)
		}
	}
	if s[0] == '@' || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	ps, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q: want a cron expression, HH:MM or a duration like 10m", raw)
	}
	return ps, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, errEmptySchedule
	}
	var (
		d   time.Duration
		src = "duration"
	)
	if m := hhmmRe.FindStringSubmatch(v); m != nil {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		d, src = time.Duration(hours)*time.Hour+time.Duration(mins)*time.Minute, "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q: %w", v, err)
		}
	}
	if d <= 0 {
		return ParsedSpec{}, errNonPositiveStep
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}

// TaskFromSchedule turns a schedule string into a Cron task, or into a
// FixedRate task whose first run is one interval away.
func TaskFromSchedule(raw string, fn func(ctx context.Context) error) (Task, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return Task{}, err
	}
	t := OnCron(ps.Cron, fn)
	if ps.Kind == SpecInterval {
		every := FromStd(ps.Every)
		t = AtFixedRate(every, every, fn)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
