package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestParseScheduleInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"interval:10", 10 * time.Second},
		{"interval:3600", time.Hour},
		{" interval:5 ", 5 * time.Second},
		{"interval: 30", 30 * time.Second},
	}
	for _, tt := range tests {
		spec, err := ParseSchedule("news", tt.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
		}
		if !spec.IsInterval() || spec.Interval != tt.want {
			t.Fatalf("ParseSchedule(%q) interval = %v, want %v", tt.in, spec.Interval, tt.want)
		}
	}
}

func TestParseScheduleCron(t *testing.T) {
	t.Parallel()
	spec, err := ParseSchedule("news", "*/15 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if spec.IsInterval() {
		t.Fatal("cron spec reported as interval")
	}
	base := time.Date(2026, 3, 1, 12, 7, 0, 0, time.UTC)
	if got := spec.Next(base); got != base.Add(8*time.Minute) {
		t.Fatalf("Next = %v, want %v", got, base.Add(8*time.Minute))
	}
}

func TestParseScheduleRejects(t *testing.T) {
	t.Parallel()
	tests := []string{
		"",
		"  ",
		"interval:",
		"interval:0",
		"interval:-5",
		"interval:abc",
		"interval:1.5",
		"not a schedule",
		"* * * * * *", // six fields
		"@hourly",     // descriptors disabled
	}
	for _, in := range tests {
		_, err := ParseSchedule("news", in)
		if err == nil {
			t.Fatalf("ParseSchedule(%q): want error", in)
		}
		var perr *ScheduleParseError
		if !errors.As(err, &perr) {
			t.Fatalf("ParseSchedule(%q): want ScheduleParseError, got %T", in, err)
		}
		if perr.SiteID != "news" {
			t.Fatalf("ParseSchedule(%q): SiteID = %q", in, perr.SiteID)
		}
	}
}
