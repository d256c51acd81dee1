package automation

import (
	"fmt"
	"time"
)

// ScheduleFrequency is the recurrence class of a schedule trigger.
type ScheduleFrequency string

const (
	EveryMinutes ScheduleFrequency = "every_minutes"
	EveryHours   ScheduleFrequency = "every_hours"
	Daily        ScheduleFrequency = "daily"
	Weekly       ScheduleFrequency = "weekly"
	Monthly      ScheduleFrequency = "monthly"
)

// ScheduleSpec describes a recurrence. Timezone is an explicit IANA zone name
// persisted with the spec; wall-clock times are interpreted there, never in
// the process-local zone. Empty means UTC.
type ScheduleSpec struct {
	Frequency  ScheduleFrequency `json:"frequency"`
	Interval   int               `json:"interval,omitempty"`
	AtHour     int               `json:"atHour,omitempty"`
	AtMinute   int               `json:"atMinute,omitempty"`
	Weekday    time.Weekday      `json:"weekday,omitempty"`
	DayOfMonth int               `json:"dayOfMonth,omitempty"`
	Timezone   string            `json:"timezone,omitempty"`
}

// Location resolves the spec's timezone, defaulting to UTC.
func (s *ScheduleSpec) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// NextFireTime computes the next fire instant strictly after from. Pure and
// deterministic: equal inputs always produce equal outputs.
func NextFireTime(spec *ScheduleSpec, from time.Time) (time.Time, error) {
	if spec == nil {
		return time.Time{}, fmt.Errorf("schedule spec is required")
	}
	loc, err := spec.Location()
	if err != nil {
		return time.Time{}, err
	}
	local := from.In(loc)

	switch spec.Frequency {
	case EveryMinutes:
		return from.Add(time.Duration(intervalOrOne(spec.Interval)) * time.Minute), nil

	case EveryHours:
		return from.Add(time.Duration(intervalOrOne(spec.Interval)) * time.Hour), nil

	case Daily:
		candidate := time.Date(local.Year(), local.Month(), local.Day(),
			spec.AtHour, spec.AtMinute, 0, 0, loc)
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case Weekly:
		daysAhead := (int(spec.Weekday) - int(local.Weekday()) + 7) % 7
		candidate := time.Date(local.Year(), local.Month(), local.Day()+daysAhead,
			spec.AtHour, spec.AtMinute, 0, 0, loc)
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil

	case Monthly:
		candidate := monthlyCandidate(local.Year(), local.Month(), spec, loc)
		if !candidate.After(from) {
			candidate = monthlyCandidate(local.Year(), local.Month()+1, spec, loc)
		}
		return candidate, nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule frequency %q", spec.Frequency)
	}
}

// monthlyCandidate places the fire time in the given month, clamping the
// configured day to the month's last day (day 31 fires on the 30th of a
// 30-day month).
func monthlyCandidate(year int, month time.Month, spec *ScheduleSpec, loc *time.Location) time.Time {
	day := spec.DayOfMonth
	if day < 1 {
		day = 1
	}
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, spec.AtHour, spec.AtMinute, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to this month's last day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func intervalOrOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
