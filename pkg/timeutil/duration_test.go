package timeutil

import (
	"testing"
	"time"
)

func TestParseWindowDefault(t *testing.T) {
	dur, label, err := ParseWindow("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 7 * 24 * time.Hour
	if dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label != "1w" {
		t.Fatalf("expected label 1w, got %s", label)
	}
}

func TestParseWindowComposite(t *testing.T) {
	dur, label, err := ParseWindow("1w2d6h30m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (7*24+2*24+6)*time.Hour + 30*time.Minute
	if dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label != "1w2d6h30m" {
		t.Fatalf("unexpected label: %s", label)
	}
}

func TestParseWindowInvalid(t *testing.T) {
	if _, _, err := ParseWindow("noop"); err == nil {
		t.Fatalf("expected error for invalid window")
	}
}

func TestParseIntervalRequiresValue(t *testing.T) {
	if _, _, err := ParseInterval(" "); err == nil {
		t.Fatal("expected error for empty interval")
	}
	dur, label, err := ParseInterval("90 mins")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dur != 90*time.Minute || label != "1h30m" {
		t.Fatalf("got %v %q", dur, label)
	}
}

func TestDaysBack(t *testing.T) {
	until := time.Date(2024, 5, 8, 15, 30, 0, 0, time.UTC)
	got := DaysBack(until, 7*24*time.Hour)
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DaysBack = %v, want %v", got, want)
	}
}
