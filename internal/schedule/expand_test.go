package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/medkeep/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func morningDose() []model.TimeEntry {
	return []model.TimeEntry{{Time: "09:00", Dosage: "1", Unit: "tablet"}}
}

func TestDailyWithDuration(t *testing.T) {
	s := model.Schedule{
		ID:           1,
		Frequency:    model.FrequencyDaily,
		Times:        morningDose(),
		StartDate:    "2024-01-01",
		DurationDays: intPtr(3),
	}

	occs, err := Expand(s, date(2024, 1, 1), date(2024, 1, 10))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(occs))
	}
	want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	for i, w := range want {
		if occs[i].DateString() != w {
			t.Errorf("occ[%d].Date = %s, want %s", i, occs[i].DateString(), w)
		}
		if occs[i].Entry.Time != "09:00" {
			t.Errorf("occ[%d].Entry.Time = %s, want 09:00", i, occs[i].Entry.Time)
		}
	}
}

func TestDailyWindowClipsStart(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencyDaily,
		Times:     morningDose(),
		StartDate: "2024-01-01",
	}

	occs, err := Expand(s, date(2024, 1, 5), date(2024, 1, 7))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(occs))
	}
	if occs[0].DateString() != "2024-01-05" {
		t.Errorf("first date = %s, want 2024-01-05", occs[0].DateString())
	}
}

func TestEveryOtherDay(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencyEveryOtherDay,
		Times:     morningDose(),
		StartDate: "2024-03-01",
	}

	occs, err := Expand(s, date(2024, 3, 1), date(2024, 3, 10))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(occs))
	}
	want := []string{"2024-03-01", "2024-03-03", "2024-03-05", "2024-03-07", "2024-03-09"}
	for i, w := range want {
		if occs[i].DateString() != w {
			t.Errorf("occ[%d].Date = %s, want %s", i, occs[i].DateString(), w)
		}
	}
}

func TestEveryOtherDayOffsetWindow(t *testing.T) {
	// Window starts on an off day; parity stays anchored to start_date.
	s := model.Schedule{
		Frequency: model.FrequencyEveryOtherDay,
		Times:     morningDose(),
		StartDate: "2024-03-01",
	}

	occs, err := Expand(s, date(2024, 3, 2), date(2024, 3, 4))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(occs))
	}
	if occs[0].DateString() != "2024-03-03" {
		t.Errorf("date = %s, want 2024-03-03", occs[0].DateString())
	}
}

func TestSpecificDaysTwoWeeks(t *testing.T) {
	// Mon and Wed over two full weeks = 4 occurrences.
	s := model.Schedule{
		Frequency: model.FrequencySpecificDays,
		Days:      []int{1, 3},
		Times:     morningDose(),
		StartDate: "2024-01-01", // a Monday
	}

	occs, err := Expand(s, date(2024, 1, 1), date(2024, 1, 14))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(occs))
	}
	want := []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"}
	for i, w := range want {
		if occs[i].DateString() != w {
			t.Errorf("occ[%d].Date = %s, want %s", i, occs[i].DateString(), w)
		}
	}
}

func TestSpecificDaysSundayIsSeven(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencySpecificDays,
		Days:      []int{7},
		Times:     morningDose(),
		StartDate: "2024-01-01",
	}

	occs, err := Expand(s, date(2024, 1, 1), date(2024, 1, 7))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(occs))
	}
	if occs[0].DateString() != "2024-01-07" {
		t.Errorf("date = %s, want 2024-01-07 (Sunday)", occs[0].DateString())
	}
}

func TestSpecificDates(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencySpecificDates,
		Dates:     []string{"2024-02-10", "2024-02-20", "2024-03-05"},
		Times:     morningDose(),
		StartDate: "2024-02-01",
		EndDate:   strPtr("2024-02-28"),
	}

	// 2024-03-05 is listed but past effective end; dropped.
	occs, err := Expand(s, date(2024, 2, 1), date(2024, 3, 31))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(occs))
	}
	if occs[0].DateString() != "2024-02-10" || occs[1].DateString() != "2024-02-20" {
		t.Errorf("dates = %s, %s", occs[0].DateString(), occs[1].DateString())
	}
}

func TestMultipleTimeEntriesPreserveOrder(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencyDaily,
		Times: []model.TimeEntry{
			{Time: "21:00", Dosage: "2", Unit: "tablet"},
			{Time: "08:00", Dosage: "1", Unit: "tablet"},
		},
		StartDate:    "2024-01-01",
		DurationDays: intPtr(1),
	}

	occs, err := Expand(s, date(2024, 1, 1), date(2024, 1, 1))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(occs))
	}
	// Schedule order, not clock order.
	if occs[0].Entry.Time != "21:00" || occs[1].Entry.Time != "08:00" {
		t.Errorf("entry order = %s, %s; want 21:00, 08:00", occs[0].Entry.Time, occs[1].Entry.Time)
	}
}

func TestExpandDeterministic(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencyEveryOtherDay,
		Times:     morningDose(),
		StartDate: "2024-01-01",
	}

	a, err := Expand(s, date(2024, 1, 1), date(2024, 1, 31))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	b, _ := Expand(s, date(2024, 1, 1), date(2024, 1, 31))
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("occ[%d] differs between runs", i)
		}
	}
}

func TestWindowBeforeStart(t *testing.T) {
	s := model.Schedule{
		Frequency: model.FrequencyDaily,
		Times:     morningDose(),
		StartDate: "2024-06-01",
	}

	occs, err := Expand(s, date(2024, 5, 1), date(2024, 5, 31))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 0 {
		t.Errorf("got %d occurrences, want 0", len(occs))
	}
}

func TestValidateErrors(t *testing.T) {
	base := model.Schedule{
		Frequency: model.FrequencyDaily,
		Times:     morningDose(),
		StartDate: "2024-01-01",
	}

	cases := []struct {
		name   string
		mutate func(*model.Schedule)
	}{
		{"empty times", func(s *model.Schedule) { s.Times = nil }},
		{"bad time format", func(s *model.Schedule) { s.Times = []model.TimeEntry{{Time: "9am"}} }},
		{"unknown frequency", func(s *model.Schedule) { s.Frequency = "weekly" }},
		{"specific_days without days", func(s *model.Schedule) { s.Frequency = model.FrequencySpecificDays }},
		{"weekday out of range", func(s *model.Schedule) {
			s.Frequency = model.FrequencySpecificDays
			s.Days = []int{0, 8}
		}},
		{"specific_dates without dates", func(s *model.Schedule) { s.Frequency = model.FrequencySpecificDates }},
		{"end before start", func(s *model.Schedule) { s.EndDate = strPtr("2023-12-31") }},
		{"both end and duration", func(s *model.Schedule) {
			s.EndDate = strPtr("2024-02-01")
			s.DurationDays = intPtr(10)
		}},
		{"zero duration", func(s *model.Schedule) { s.DurationDays = intPtr(0) }},
		{"bad start date", func(s *model.Schedule) { s.StartDate = "01/01/2024" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			err := Validate(s)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not unwrap to ErrInvalidConfig", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("error %v is not a *ConfigError", err)
			}
		})
	}
}
