package domain

import (
	"testing"
	"time"
)

func TestOverlaps_HalfOpen(t *testing.T) {
	nine := NewTimeOfDay(9, 0, 0)
	ten := NewTimeOfDay(10, 0, 0)
	eleven := NewTimeOfDay(11, 0, 0)
	half := NewTimeOfDay(9, 30, 0)

	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd TimeOfDay
		want                       bool
	}{
		{"touching end to start", nine, ten, ten, eleven, false},
		{"touching start to end", ten, eleven, nine, ten, false},
		{"partial overlap", nine, ten, half, eleven, true},
		{"contained", nine, eleven, half, ten, true},
		{"identical", nine, ten, nine, ten, true},
		{"disjoint", nine, half, ten, eleven, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlaps_Timestamps(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if Overlaps(base, base.Add(30*time.Minute), base.Add(30*time.Minute), base.Add(time.Hour)) {
		t.Fatalf("back-to-back visits must not overlap")
	}
	if !Overlaps(base, base.Add(31*time.Minute), base.Add(30*time.Minute), base.Add(time.Hour)) {
		t.Fatalf("expected overlap")
	}
}

func TestTimeOfDay_ParseAndFormat(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("ParseTimeOfDay error: %v", err)
	}
	if got != NewTimeOfDay(9, 30, 0) {
		t.Fatalf("parsed = %v, want 09:30", got)
	}
	if got.String() != "09:30" {
		t.Fatalf("String = %q, want %q", got.String(), "09:30")
	}

	withSeconds, err := ParseTimeOfDay("17:00:15")
	if err != nil {
		t.Fatalf("ParseTimeOfDay error: %v", err)
	}
	if withSeconds.String() != "17:00:15" {
		t.Fatalf("String = %q, want %q", withSeconds.String(), "17:00:15")
	}

	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatalf("expected error for 25:00")
	}
}

func TestTimeOfDay_ScanAndValue(t *testing.T) {
	var tod TimeOfDay
	if err := tod.Scan("12:15:00"); err != nil {
		t.Fatalf("Scan string error: %v", err)
	}
	if tod != NewTimeOfDay(12, 15, 0) {
		t.Fatalf("scanned = %v, want 12:15", tod)
	}
	if err := tod.Scan(time.Date(0, 1, 1, 8, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Scan time error: %v", err)
	}
	if tod != NewTimeOfDay(8, 5, 0) {
		t.Fatalf("scanned = %v, want 08:05", tod)
	}

	v, err := NewTimeOfDay(13, 0, 0).Value()
	if err != nil {
		t.Fatalf("Value error: %v", err)
	}
	if v != "13:00:00" {
		t.Fatalf("Value = %v, want 13:00:00", v)
	}
	if _, err := TimeOfDay(25 * time.Hour).Value(); err == nil {
		t.Fatalf("expected error for out-of-range value")
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	d := time.Date(2024, 3, 5, 22, 10, 0, 0, loc)
	got := NewTimeOfDay(9, 0, 0).On(d)
	want := time.Date(2024, 3, 5, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("On = %v, want %v", got, want)
	}
}

func TestWeekdayOf(t *testing.T) {
	// 2024-01-15 is a Monday.
	monday := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i, want := range []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday} {
		if got := WeekdayOf(monday.AddDate(0, 0, i)); got != want {
			t.Fatalf("WeekdayOf(+%d) = %v, want %v", i, got, want)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	wd, err := ParseWeekday(" Sunday ")
	if err != nil {
		t.Fatalf("ParseWeekday error: %v", err)
	}
	if wd != Sunday {
		t.Fatalf("weekday = %v, want sunday", wd)
	}
	if _, err := ParseWeekday("funday"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVisitStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to VisitStatus
		want     bool
	}{
		{VisitStatusScheduled, VisitStatusCompleted, true},
		{VisitStatusScheduled, VisitStatusCancelled, true},
		{VisitStatusScheduled, VisitStatusScheduled, true},
		{VisitStatusCompleted, VisitStatusCompleted, true},
		{VisitStatusCompleted, VisitStatusScheduled, false},
		{VisitStatusCancelled, VisitStatusScheduled, false},
		{VisitStatusCancelled, VisitStatusCompleted, false},
		{VisitStatusCompleted, VisitStatusCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
