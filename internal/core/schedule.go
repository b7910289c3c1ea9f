package core

import (
	"fmt"
	"time"
)

// Frequency is a JobSchedule cadence.
type Frequency string

const (
	FreqDaily       Frequency = "daily"
	FreqWeekly      Frequency = "weekly"
	FreqMonthly     Frequency = "monthly"
	FreqFortnightly Frequency = "fortnightly"
)

// JobSchedule narrows when scheduled Runs may be created for a job.
// Zero or one per job.
type JobSchedule struct {
	ID           string     `db:"id"`
	JobID        string     `db:"job_id"`
	Frequency    Frequency  `db:"frequency"`
	WeeksOfMonth IntList    `db:"weeks_of_month"`
	DaysOfWeek   IntList    `db:"days_of_week"`
	DatesOfMonth IntList    `db:"dates_of_month"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Validate checks the structural invariants of the schedule.
func (s *JobSchedule) Validate() error {
	switch s.Frequency {
	case FreqDaily, FreqFortnightly:
	case FreqWeekly:
		if len(s.DaysOfWeek) == 0 {
			return fmt.Errorf("weekly schedule requires days_of_week")
		}
	case FreqMonthly:
		if len(s.DatesOfMonth) == 0 {
			return fmt.Errorf("monthly schedule requires dates_of_month")
		}
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	for _, d := range s.DatesOfMonth {
		if d < 1 || d > 31 {
			return fmt.Errorf("date_of_month %d out of range [1,31]", d)
		}
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("day_of_week %d out of range [0,6]", d)
		}
	}
	for _, w := range s.WeeksOfMonth {
		if w < 1 || w > 5 {
			return fmt.Errorf("week_of_month %d out of range [1,5]", w)
		}
	}
	return nil
}

// Match reports whether the schedule admits the given instant.
// Days of week use time.Weekday numbering (Sunday = 0). Week of month
// counts occurrences of the weekday, so week 1 is the first Tuesday
// regardless of which weekday the month starts on.
func (s *JobSchedule) Match(t time.Time) bool {
	switch s.Frequency {
	case FreqDaily:
		return true
	case FreqWeekly, FreqFortnightly:
		if !s.DaysOfWeek.Contains(int(t.Weekday())) {
			return false
		}
		if len(s.WeeksOfMonth) == 0 {
			return true
		}
		return s.WeeksOfMonth.Contains(weekOfMonth(t))
	case FreqMonthly:
		if len(s.DaysOfWeek) > 0 && s.DaysOfWeek.Contains(int(t.Weekday())) {
			return true
		}
		return s.DatesOfMonth.Contains(t.Day())
	}
	return false
}

// weekOfMonth is the 1-based occurrence count of t's weekday in its month.
func weekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}
