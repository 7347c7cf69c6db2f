package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval. Used by the minute-scale
// sweeps (reminders, escalation).
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// DailySchedule runs a job once per UTC day at a fixed hour and minute.
// The daily batches (streaks, milestones, retention) run shortly after the
// UTC day boundary so they evaluate a fully closed day window.
type DailySchedule struct {
	Hour   int
	Minute int
}

// NewDailySchedule creates a DailySchedule at hh:mm UTC.
func NewDailySchedule(hour, minute int) *DailySchedule {
	return &DailySchedule{Hour: hour, Minute: minute}
}

// Next returns the next hh:mm UTC strictly after t.
func (s *DailySchedule) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d UTC", s.Hour, s.Minute)
}

// WeeklySchedule runs a job once per week on the given UTC weekday at a
// fixed hour. Used by the full reconciliation audit.
type WeeklySchedule struct {
	Weekday time.Weekday
	Hour    int
}

// NewWeeklySchedule creates a WeeklySchedule.
func NewWeeklySchedule(weekday time.Weekday, hour int) *WeeklySchedule {
	return &WeeklySchedule{Weekday: weekday, Hour: hour}
}

// Next returns the next matching weekday/hour strictly after t.
func (s *WeeklySchedule) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, 0, 0, 0, time.UTC)
	for !next.After(t) || next.Weekday() != s.Weekday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *WeeklySchedule) String() string {
	return fmt.Sprintf("@weekly %s %02d:00 UTC", s.Weekday, s.Hour)
}
