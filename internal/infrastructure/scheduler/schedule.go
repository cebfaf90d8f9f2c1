package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// Gap returns the time between the first two runs of s after from. Zero when
// s never fires.
func Gap(s Schedule, from time.Time) time.Duration {
	first := s.Next(from)
	if first.IsZero() {
		return 0
	}
	second := s.Next(first)
	if second.IsZero() {
		return 0
	}
	return second.Sub(first)
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON EXPRESSION
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field expression:
// minute hour day-of-month month day-of-week.
//
//	"5 0 * * 1"    every Monday at 00:05
//	"0 */6 * * *"  every six hours
//	"30 2 1 * *"   the first of each month at 02:30
type CronExpression struct {
	raw      string
	minutes  fieldSet
	hours    fieldSet
	days     fieldSet
	months   fieldSet
	weekdays fieldSet

	// When both day fields are restricted a time matches either of them.
	dayStar, weekdayStar bool
}

type fieldSet map[int]struct{}

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 7}}

// ParseCron parses a cron expression. Each field accepts *, n, n-m, */s,
// n-m/s and comma separated lists of those. Sunday is 0 or 7.
func ParseCron(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	sets := make([]fieldSet, 5)
	names := [5]string{"minute", "hour", "day", "month", "weekday"}
	for i, f := range fields {
		set, err := parseCronField(f, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", names[i], err)
		}
		sets[i] = set
	}

	if _, ok := sets[4][7]; ok {
		sets[4][0] = struct{}{}
	}

	return &CronExpression{
		raw:         expr,
		minutes:     sets[0],
		hours:       sets[1],
		days:        sets[2],
		months:      sets[3],
		weekdays:    sets[4],
		dayStar:     fields[2] == "*",
		weekdayStar: fields[4] == "*",
	}, nil
}

// MustParseCron is ParseCron that panics on error.
func MustParseCron(expr string) *CronExpression {
	ce, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseCronField(field string, lo, hi int) (fieldSet, error) {
	set := make(fieldSet)
	for _, part := range strings.Split(field, ",") {
		if err := addCronPart(set, strings.TrimSpace(part), lo, hi); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func addCronPart(set fieldSet, part string, lo, hi int) error {
	step := 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", s)
		}
		step, part = n, base
	}

	start, end := lo, hi
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		var err error
		if start, err = strconv.Atoi(a); err != nil {
			return fmt.Errorf("invalid range start %q", a)
		}
		if end, err = strconv.Atoi(b); err != nil {
			return fmt.Errorf("invalid range end %q", b)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid value %q", part)
		}
		start = v
		if step == 1 {
			end = v
		}
	}

	if start < lo || end > hi || start > end {
		return fmt.Errorf("%q out of range [%d-%d]", part, lo, hi)
	}
	for v := start; v <= end; v += step {
		set[v] = struct{}{}
	}
	return nil
}

func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, or the zero time
// when nothing matches within five years.
func (ce *CronExpression) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !ce.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.hours.has(t.Hour()) {
			t = t.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if !ce.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (ce *CronExpression) dayMatches(t time.Time) bool {
	day := ce.days.has(t.Day())
	weekday := ce.weekdays.has(int(t.Weekday()))
	switch {
	case ce.dayStar && ce.weekdayStar:
		return true
	case ce.dayStar:
		return weekday
	case ce.weekdayStar:
		return day
	default:
		return day || weekday
	}
}

func (s fieldSet) has(v int) bool {
	_, ok := s[v]
	return ok
}
