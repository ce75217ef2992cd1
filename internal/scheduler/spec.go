package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions only. Seconds fields
// and @-descriptors are deliberately out; site schedules that need
// sub-minute cadence use the interval form.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const intervalPrefix = "interval:"

// ScheduleParseError reports an unusable schedule string. The site it
// belongs to stays registered but is never triggered.
type ScheduleParseError struct {
	SiteID string
	Spec   string
	Err    error
}

func (e *ScheduleParseError) Error() string {
	return fmt.Sprintf("site %q schedule %q: %v", e.SiteID, e.Spec, e.Err)
}

func (e *ScheduleParseError) Unwrap() error { return e.Err }

// Spec is a parsed schedule, either a fixed interval or a cron
// expression.
type Spec struct {
	Raw      string
	Interval time.Duration
	Cron     cron.Schedule
}

// IsInterval reports whether the spec is the interval form.
func (s Spec) IsInterval() bool { return s.Interval > 0 }

// Next returns the next firing time after t.
func (s Spec) Next(t time.Time) time.Time {
	if s.IsInterval() {
		return t.Add(s.Interval)
	}
	return s.Cron.Next(t)
}

// ParseSchedule parses "interval:<seconds>" or a 5-field cron
// expression.
func ParseSchedule(siteID, raw string) (Spec, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Spec{}, &ScheduleParseError{SiteID: siteID, Spec: raw, Err: fmt.Errorf("empty schedule")}
	}
	if rest, ok := strings.CutPrefix(trimmed, intervalPrefix); ok {
		secs, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Spec{}, &ScheduleParseError{SiteID: siteID, Spec: raw, Err: fmt.Errorf("interval is not an integer: %w", err)}
		}
		if secs <= 0 {
			return Spec{}, &ScheduleParseError{SiteID: siteID, Spec: raw, Err: fmt.Errorf("interval must be positive, got %d", secs)}
		}
		return Spec{Raw: trimmed, Interval: time.Duration(secs) * time.Second}, nil
	}
	sched, err := cronParser.Parse(trimmed)
	if err != nil {
		return Spec{}, &ScheduleParseError{SiteID: siteID, Spec: raw, Err: err}
	}
	return Spec{Raw: trimmed, Cron: sched}, nil
}
