package calc

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"academycore/pkg/domain"
)

// AttendanceRate is present slots over present+absent slots for the month of
// ref, one slot per (non-cancelled record, expected student). Zero when empty.
func AttendanceRate(students []domain.Student, records []domain.AttendanceRecord, ref time.Time) float64 {
	present, absent := 0, 0
	for _, record := range records {
		if record.IsCancelled() || record.Date.IsZero() || !SameMonth(record.Date, ref) {
			continue
		}
		for _, s := range students {
			if !Expected(record, s) {
				continue
			}
			if record.HasPresent(s.ID) {
				present++
			} else {
				absent++
			}
		}
	}
	if present+absent == 0 {
		return 0
	}
	return float64(present) / float64(present+absent)
}

// ActiveStudents drops suspended students.
func ActiveStudents(students []domain.Student) []domain.Student {
	out := make([]domain.Student, 0, len(students))
	for _, s := range students {
		if !s.IsSuspended() {
			out = append(out, s)
		}
	}
	return out
}

// FeePaidCount counts active students who are not overdue.
func FeePaidCount(students []domain.Student, fees []domain.FeeRecord, today time.Time) int {
	n := 0
	for _, s := range ActiveStudents(students) {
		if !StudentFeeStatus(s, fees, today).Overdue {
			n++
		}
	}
	return n
}

// OverdueStudents lists the fee status of every overdue active student, oldest due first.
func OverdueStudents(students []domain.Student, fees []domain.FeeRecord, today time.Time) []FeeStatus {
	var out []FeeStatus
	for _, s := range ActiveStudents(students) {
		status := StudentFeeStatus(s, fees, today)
		if status.Overdue {
			out = append(out, status)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextDue.Before(out[j].NextDue) })
	return out
}

// Breakdown maps a label to a head count.
type Breakdown map[string]int

// GradeBreakdown groups active students by trimmed grade label.
func GradeBreakdown(students []domain.Student) Breakdown {
	return groupBy(students, func(s domain.Student) string { return s.Grade })
}

// GenderBreakdown groups active students by gender, case-folded.
func GenderBreakdown(students []domain.Student) Breakdown {
	return groupBy(students, func(s domain.Student) string { return strings.ToLower(s.Gender) })
}

func groupBy(students []domain.Student, key func(domain.Student) string) Breakdown {
	out := Breakdown{}
	for _, s := range ActiveStudents(students) {
		k := strings.TrimSpace(key(s))
		if k == "" {
			k = "unspecified"
		}
		out[k]++
	}
	return out
}

// MonthlyCollection sums fee amounts transacted in ref's month.
func MonthlyCollection(fees []domain.FeeRecord, ref time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, fee := range fees {
		if !fee.Date.IsZero() && SameMonth(fee.Date, ref) {
			total = total.Add(fee.Amount)
		}
	}
	return total
}

// ExamPercentage is score/total*100, or 0 when total is not positive.
func ExamPercentage(e domain.ExamRecord) float64 {
	if e.Total <= 0 {
		return 0
	}
	return e.Score / e.Total * 100
}

// StudentExamAverage averages exam percentages of one student; ok is false without exams.
func StudentExamAverage(exams []domain.ExamRecord, studentID string) (avg float64, ok bool) {
	sum, n := 0.0, 0
	for _, e := range exams {
		if e.StudentID != studentID || e.Total <= 0 {
			continue
		}
		sum += ExamPercentage(e)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Dashboard is the full read-side rollup recomputed on every request.
type Dashboard struct {
	TotalStudents     int
	ActiveStudents    int
	AttendanceRate    float64
	FeePaidCount      int
	OverdueCount      int
	MonthlyCollection decimal.Decimal
	Grades            Breakdown
	Genders           Breakdown
}

// BuildDashboard computes every rollup from a full snapshot.
func BuildDashboard(c domain.Collections, today time.Time) Dashboard {
	active := ActiveStudents(c.Students)
	paid := FeePaidCount(c.Students, c.Fees, today)
	return Dashboard{
		TotalStudents:     len(c.Students),
		ActiveStudents:    len(active),
		AttendanceRate:    AttendanceRate(c.Students, c.Attendance, today),
		FeePaidCount:      paid,
		OverdueCount:      len(active) - paid,
		MonthlyCollection: MonthlyCollection(c.Fees, today),
		Grades:            GradeBreakdown(c.Students),
		Genders:           GenderBreakdown(c.Students),
	}
}
