package clock

import (
	"testing"
	"time"
)

func TestCalendarTodayUsesLocalDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	cal := NewCalendar(loc)

	// 01:30 UTC on the 16th is still the 15th at UTC-3.
	now := time.Date(2026, 10, 16, 1, 30, 0, 0, time.UTC)
	got := cal.Today(now)
	want := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCalendarStartOfDayIsLocalMidnight(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	cal := NewCalendar(loc)

	now := time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)
	got := cal.StartOfDay(now)
	want := time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-02-28")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Location() != time.UTC || got.Day() != 28 || got.Hour() != 0 {
		t.Fatalf("unexpected date %s", got)
	}
	if _, err := ParseDate("28/02/2026"); err == nil {
		t.Fatalf("expected error for invalid layout")
	}
}
