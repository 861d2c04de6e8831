// File: internal/proactive/schedule.go
// Description: Next-fire computation for recurrence expressions. Supports
// "@every <duration>" and a five-field cron subset (minute hour day-of-month
// month day-of-week, with "*", "*/n" and plain numbers per field).

package proactive

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField matches one field of a parsed cron expression.
type cronField struct {
	any  bool
	step int // "*/n"; 0 when unused
	val  int // plain number; valid only when !any && step == 0
}

// matches reports whether a concrete time component satisfies the field.
func (f cronField) matches(v int) bool {
	switch {
	case f.step > 0:
		return v%f.step == 0
	case f.any:
		return true
	default:
		return v == f.val
	}
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

// fieldBounds gives the inclusive valid range per cron field position.
var fieldBounds = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week, Sunday = 0
}

// NextFire computes when a recurrence expression fires next, strictly after
// from. An empty expression is an error; one-shot tasks never call this.
func NextFire(expr string, from time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty recurrence expression")
	}

	if after, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(after))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid @every duration: %w", err)
		}
		if d <= 0 {
			return time.Time{}, fmt.Errorf("@every duration must be positive, got %s", d)
		}
		return from.Add(d), nil
	}

	sched, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.next(from)
}

// ValidateRecurrence reports whether expr parses without computing a fire
// time.
func ValidateRecurrence(expr string) error {
	_, err := NextFire(expr, time.Now())
	return err
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	var parsed [5]cronField
	for i, raw := range fields {
		f, err := parseField(raw, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("cron field %d (%q): %w", i+1, raw, err)
		}
		parsed[i] = f
	}
	return cronSchedule{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
	}, nil
}

func parseField(raw string, lo, hi int) (cronField, error) {
	if raw == "*" {
		return cronField{any: true}, nil
	}
	if after, ok := strings.CutPrefix(raw, "*/"); ok {
		n, err := strconv.Atoi(after)
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("step must be a positive integer")
		}
		return cronField{any: true, step: n}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return cronField{}, fmt.Errorf("must be \"*\", \"*/n\" or a number")
	}
	if n < lo || n > hi {
		return cronField{}, fmt.Errorf("value %d out of range [%d,%d]", n, lo, hi)
	}
	return cronField{val: n}, nil
}

// next walks minute by minute from the next whole minute after from until
// every field matches. The four-year horizon bounds schedules that can never
// fire (e.g. minute 0 hour 0 dom 31 month 2).
func (s cronSchedule) next(from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(4, 0, 0)
	for ; t.Before(limit); t = t.Add(time.Minute) {
		if !s.month.matches(int(t.Month())) {
			// Skip to the first minute of the next month.
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0).Add(-time.Minute)
			continue
		}
		if !s.dom.matches(t.Day()) || !s.dow.matches(int(t.Weekday())) {
			// Skip to the first minute of the next day.
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Minute)
			continue
		}
		if !s.hour.matches(t.Hour()) {
			t = t.Truncate(time.Hour).Add(time.Hour).Add(-time.Minute)
			continue
		}
		if s.minute.matches(t.Minute()) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("schedule never fires within four years of %s", from.Format(time.RFC3339))
}
