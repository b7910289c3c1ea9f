package core

import (
	"testing"
	"time"
)

func TestJobSchedule_Validate(t *testing.T) {
	tests := []struct {
		name     string
		schedule JobSchedule
		wantErr  bool
	}{
		{
			name:     "Daily needs nothing",
			schedule: JobSchedule{Frequency: FreqDaily},
			wantErr:  false,
		},
		{
			name:     "Weekly without days",
			schedule: JobSchedule{Frequency: FreqWeekly},
			wantErr:  true,
		},
		{
			name:     "Weekly with days",
			schedule: JobSchedule{Frequency: FreqWeekly, DaysOfWeek: IntList{2}},
			wantErr:  false,
		},
		{
			name:     "Monthly without dates",
			schedule: JobSchedule{Frequency: FreqMonthly},
			wantErr:  true,
		},
		{
			name:     "Monthly date out of range",
			schedule: JobSchedule{Frequency: FreqMonthly, DatesOfMonth: IntList{0}},
			wantErr:  true,
		},
		{
			name:     "Monthly date 31 allowed",
			schedule: JobSchedule{Frequency: FreqMonthly, DatesOfMonth: IntList{31}},
			wantErr:  false,
		},
		{
			name:     "Unknown frequency",
			schedule: JobSchedule{Frequency: "hourly"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.schedule.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobSchedule_Match_WeeklyWithWeeks(t *testing.T) {
	// Tuesdays on the first and third week of the month.
	s := JobSchedule{
		Frequency:    FreqWeekly,
		DaysOfWeek:   IntList{int(time.Tuesday)},
		WeeksOfMonth: IntList{1, 3},
	}

	// March 2026: Tuesdays fall on the 3rd, 10th, 17th, 24th, 31st.
	match := []int{3, 17}
	for day := 1; day <= 31; day++ {
		d := time.Date(2026, time.March, day, 9, 0, 0, 0, time.UTC)
		want := false
		for _, m := range match {
			if day == m {
				want = true
			}
		}
		if got := s.Match(d); got != want {
			t.Errorf("Match(2026-03-%02d) = %v, want %v", day, got, want)
		}
	}
}

func TestJobSchedule_Match_Monthly(t *testing.T) {
	// Monthly matches on a date-of-month OR a day-of-week.
	s := JobSchedule{
		Frequency:    FreqMonthly,
		DatesOfMonth: IntList{15},
		DaysOfWeek:   IntList{int(time.Friday)},
	}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"Matching date", time.Date(2026, time.April, 15, 12, 0, 0, 0, time.UTC), true},
		{"Matching weekday", time.Date(2026, time.April, 3, 12, 0, 0, 0, time.UTC), true},
		{"Neither", time.Date(2026, time.April, 14, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Match(tt.date); got != tt.want {
				t.Errorf("Match(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestJobSchedule_Match_Daily(t *testing.T) {
	s := JobSchedule{Frequency: FreqDaily}
	if !s.Match(time.Now()) {
		t.Error("daily schedule should match any instant")
	}
}
