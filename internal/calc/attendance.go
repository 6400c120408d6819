package calc

import (
	"sort"
	"strings"
	"time"

	"academycore/pkg/domain"
)

// StreakAlertThreshold is the consecutive-absence count at which parents are contacted.
const StreakAlertThreshold = 2

// DayStatus is the resolved attendance of one student on one day.
type DayStatus int

// Day resolutions. NotExpected days neither extend nor break a streak.
const (
	NotExpected DayStatus = iota
	Present
	Absent
)

func (s DayStatus) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "not_expected"
	}
}

// IsSentinelClass reports whether classID means "every grade".
func IsSentinelClass(classID string) bool {
	return strings.EqualFold(classID, domain.ClassGeneral) || strings.EqualFold(classID, domain.ClassAll)
}

// DigitsOnly keeps the decimal digits of s ("Grade 05" -> "05").
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AppliesTo is the loose class/grade predicate: sentinel, verbatim grade,
// or matching non-empty digit normalization.
func AppliesTo(record domain.AttendanceRecord, s domain.Student) bool {
	if IsSentinelClass(record.ClassID) {
		return true
	}
	if record.ClassID == s.Grade {
		return true
	}
	classDigits := DigitsOnly(record.ClassID)
	return classDigits != "" && classDigits == DigitsOnly(s.Grade)
}

// JoinedBy reports whether the student had joined on or before day.
// A missing join date counts as always joined.
func JoinedBy(s domain.Student, day time.Time) bool {
	if s.JoinedDate == nil || s.JoinedDate.IsZero() {
		return true
	}
	return !Day(*s.JoinedDate).After(Day(day))
}

// Expected reports whether the student was scheduled to attend the record's session.
func Expected(record domain.AttendanceRecord, s domain.Student) bool {
	if record.IsCancelled() || s.IsSuspended() {
		return false
	}
	if !JoinedBy(s, record.Date) {
		return false
	}
	return AppliesTo(record, s)
}

// ResolveDay folds every record of one day: present in any applicable record
// wins; absent needs at least one expecting record.
func ResolveDay(s domain.Student, records []domain.AttendanceRecord) DayStatus {
	expected := false
	for _, record := range records {
		if !Expected(record, s) {
			continue
		}
		if record.HasPresent(s.ID) {
			return Present
		}
		expected = true
	}
	if expected {
		return Absent
	}
	return NotExpected
}

// GroupByDay buckets records by calendar day.
func GroupByDay(records []domain.AttendanceRecord) map[time.Time][]domain.AttendanceRecord {
	out := make(map[time.Time][]domain.AttendanceRecord)
	for _, record := range records {
		if record.Date.IsZero() {
			continue
		}
		day := Day(record.Date)
		out[day] = append(out[day], record)
	}
	return out
}

// PastAbsenceStreak counts consecutive absences on class days strictly before ref.
func PastAbsenceStreak(s domain.Student, records []domain.AttendanceRecord, ref time.Time) int {
	byDay := GroupByDay(records)
	refDay := Day(ref)
	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		if day.Before(refDay) && IsClassDay(day) && JoinedBy(s, day) {
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	streak := 0
	for _, day := range days {
		switch ResolveDay(s, byDay[day]) {
		case Present:
			return streak
		case Absent:
			streak++
		}
	}
	return streak
}

// CurrentStreak folds the reference day into the past streak.
func CurrentStreak(s domain.Student, records []domain.AttendanceRecord, ref time.Time) int {
	var today []domain.AttendanceRecord
	for _, record := range records {
		if !record.Date.IsZero() && SameDay(record.Date, ref) {
			today = append(today, record)
		}
	}
	switch ResolveDay(s, today) {
	case Present:
		return 0
	case Absent:
		return PastAbsenceStreak(s, records, ref) + 1
	default:
		return PastAbsenceStreak(s, records, ref)
	}
}

// AbsenceAlert describes one expected-but-absent student of a record.
type AbsenceAlert struct {
	Student   domain.Student
	Streak    int
	NeedsCall bool
	Contacted bool
}

// AbsenceAlerts lists absentees of record (resolved across the whole day) with
// their streaks, sorted by descending streak then name.
func AbsenceAlerts(record domain.AttendanceRecord, students []domain.Student, records []domain.AttendanceRecord) []AbsenceAlert {
	if record.IsCancelled() {
		return nil
	}
	var sameDay []domain.AttendanceRecord
	for _, r := range records {
		if SameDay(r.Date, record.Date) {
			sameDay = append(sameDay, r)
		}
	}
	var alerts []AbsenceAlert
	for _, s := range students {
		if !Expected(record, s) || ResolveDay(s, sameDay) != Absent {
			continue
		}
		streak := PastAbsenceStreak(s, records, record.Date) + 1
		alerts = append(alerts, AbsenceAlert{
			Student:   s,
			Streak:    streak,
			NeedsCall: streak >= StreakAlertThreshold,
			Contacted: record.HasContacted(s.ID),
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Streak != alerts[j].Streak {
			return alerts[i].Streak > alerts[j].Streak
		}
		return alerts[i].Student.Name < alerts[j].Student.Name
	})
	return alerts
}

// ExpectedStudents returns the students a record expects, present or not.
func ExpectedStudents(record domain.AttendanceRecord, students []domain.Student) []domain.Student {
	var out []domain.Student
	for _, s := range students {
		if Expected(record, s) {
			out = append(out, s)
		}
	}
	return out
}
