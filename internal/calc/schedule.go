package calc

import (
	"regexp"
	"strings"
	"time"

	"academycore/pkg/domain"
)

// DefaultClassDuration applies when neither EndTime nor Schedule yields an end.
const DefaultClassDuration = 2 * time.Hour

var clockPattern = regexp.MustCompile(`(?i)(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm)?`)

// ParseClock reads "14:30", "2.30 pm" or "2pm" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	hour := atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute = atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// ClassWindow returns start and end minutes after midnight.
func ClassWindow(c domain.ClassGroup) (start, end int, ok bool) {
	start, ok = ParseClock(c.StartTime)
	if !ok {
		return 0, 0, false
	}
	if e, found := ParseClock(c.EndTime); found && c.EndTime != "" {
		return start, e, true
	}
	if idx := strings.LastIndex(c.Schedule, "-"); idx >= 0 {
		if e, found := ParseClock(c.Schedule[idx+1:]); found {
			return start, e, true
		}
	}
	return start, start + int(DefaultClassDuration/time.Minute), true
}

// ClassInProgress reports whether the class is running at now (wall clock).
func ClassInProgress(c domain.ClassGroup, now time.Time) bool {
	if now.Weekday() != c.DayOfWeek {
		return false
	}
	start, end, ok := ClassWindow(c)
	if !ok {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute < end
}
