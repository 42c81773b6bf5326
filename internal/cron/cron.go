// Package cron implements a 5-field cron expression evaluator.
//
// An expression has minute, hour, day-of-month, month and day-of-week
// fields. Each field supports "*", single values, ranges (a-b), steps
// (a/n, a-b/n, */n) and comma lists. Expressions are parsed once into a
// Schedule of per-field bitsets and never re-parsed on the hot path.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSpec describes the bounds of a single cron field.
type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [5]fieldSpec{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day-of-week", min: 0, max: 6},
}

// Schedule is a parsed cron expression.
type Schedule struct {
	expr   string
	fields [5]uint64
	// The day-of-month/day-of-week OR rule needs to know whether each of
	// the two day fields was written as "*".
	domStar bool
	dowStar bool
}

// Parse parses a space-separated 5-field cron expression.
// A malformed field yields an error naming that field.
func Parse(expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron expression needs 5 fields, got %d", len(parts))
	}

	s := &Schedule{expr: strings.Join(parts, " ")}
	for i, part := range parts {
		set, err := parseField(part, fieldSpecs[i])
		if err != nil {
			return nil, err
		}
		s.fields[i] = set
	}
	s.domStar = parts[2] == "*"
	s.dowStar = parts[4] == "*"
	return s, nil
}

// ParseDotted converts the dot-separated chat form ("0.18.*.*.*") to the
// space-separated form and validates it.
func ParseDotted(expr string) (string, error) {
	parts := strings.Split(expr, ".")
	if len(parts) != 5 {
		return "", fmt.Errorf("cron expression needs 5 dot-separated fields (min.hour.day.month.weekday), got %d", len(parts))
	}
	spaced := strings.Join(parts, " ")
	if _, err := Parse(spaced); err != nil {
		return "", err
	}
	return spaced, nil
}

// String returns the normalized space-separated expression.
func (s *Schedule) String() string {
	return s.expr
}

// Matches reports whether the schedule fires at the given instant,
// at minute granularity.
//
// Minute, hour and month must all match. Day-of-month and day-of-week
// follow standard cron semantics: when both are restricted the schedule
// fires if either matches, otherwise the restricted one decides.
func (s *Schedule) Matches(t time.Time) bool {
	if !bitSet(s.fields[0], t.Minute()) ||
		!bitSet(s.fields[1], t.Hour()) ||
		!bitSet(s.fields[3], int(t.Month())) {
		return false
	}

	domMatch := bitSet(s.fields[2], t.Day())
	dowMatch := bitSet(s.fields[4], int(t.Weekday()))

	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowMatch
	case s.dowStar:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// nextScanBound limits how far NextAfter scans ahead.
const nextScanBound = 4 * 366 * 24 * time.Hour

// NextAfter returns the first instant strictly after t at which the
// schedule fires, scanning forward minute by minute up to four years.
// The second return value is false when no fire time exists in that
// window (e.g. "0 0 30 2 *").
func (s *Schedule) NextAfter(t time.Time) (time.Time, bool) {
	cur := t.Truncate(time.Minute).Add(time.Minute)
	end := t.Add(nextScanBound)
	for !cur.After(end) {
		if s.Matches(cur) {
			return cur, true
		}
		cur = cur.Add(time.Minute)
	}
	return time.Time{}, false
}

func parseField(field string, spec fieldSpec) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return 0, fmt.Errorf("%s field %q: empty list element", spec.name, field)
		}
		if err := parsePart(part, spec, &set); err != nil {
			return 0, err
		}
	}
	return set, nil
}

func parsePart(part string, spec fieldSpec, set *uint64) error {
	step := 1
	rangePart := part
	if base, stepStr, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s field %q: invalid step %q", spec.name, part, stepStr)
		}
		step = n
		rangePart = base
	}

	lo, hi := spec.min, spec.max
	switch {
	case rangePart == "*":
		// full range
	case strings.Contains(rangePart, "-"):
		loStr, hiStr, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = parseValue(loStr, spec, part); err != nil {
			return err
		}
		if hi, err = parseValue(hiStr, spec, part); err != nil {
			return err
		}
		if lo > hi {
			return fmt.Errorf("%s field %q: range start %d after end %d", spec.name, part, lo, hi)
		}
	default:
		v, err := parseValue(rangePart, spec, part)
		if err != nil {
			return err
		}
		lo = v
		if step == 1 {
			hi = v
		}
		// "a/n" means every n-th value from a to the field maximum.
	}

	for v := lo; v <= hi; v += step {
		*set |= 1 << uint(v)
	}
	return nil
}

func parseValue(s string, spec fieldSpec, part string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s field %q: not a number", spec.name, part)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%s field %q: value %d out of range %d-%d", spec.name, part, v, spec.min, spec.max)
	}
	return v, nil
}

func bitSet(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}
