package core

import (
	"fmt"
	"sort"
	"time"

	"academycore/internal/calc"
)

// Dashboard recomputes every aggregate from the current snapshot.
func (s *Service) Dashboard() calc.Dashboard {
	return calc.BuildDashboard(s.store.Collections(), s.today())
}

// StudentFeeStatus derives a student's next due date and overdue flag.
func (s *Service) StudentFeeStatus(studentID string) (calc.FeeStatus, error) {
	st, ok := s.store.GetStudent(studentID)
	if !ok {
		return calc.FeeStatus{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	return calc.StudentFeeStatus(st, s.store.ListFees(), s.today()), nil
}

// OverdueStudents lists active students whose next due date has passed.
func (s *Service) OverdueStudents() []calc.FeeStatus {
	return calc.OverdueStudents(s.store.ListStudents(), s.store.ListFees(), s.today())
}

// AbsenceAlerts lists the absentees of an attendance record with their streaks.
func (s *Service) AbsenceAlerts(recordID string) ([]calc.AbsenceAlert, error) {
	c := s.store.Collections()
	for _, rec := range c.Attendance {
		if rec.ID == recordID {
			return calc.AbsenceAlerts(rec, c.Students, c.Attendance), nil
		}
	}
	return nil, fmt.Errorf("attendance %s: %w", recordID, ErrNotFound)
}

// StudentStreak is the consecutive-absence count of one student.
type StudentStreak struct {
	Student Student
	Streak  int
}

// AbsenceStreaks returns active students with a current streak of at least
// threshold, longest first.
func (s *Service) AbsenceStreaks(threshold int) []StudentStreak {
	c := s.store.Collections()
	today := s.today()
	var out []StudentStreak
	for _, st := range calc.ActiveStudents(c.Students) {
		streak := calc.CurrentStreak(st, c.Attendance, today)
		if streak >= threshold && streak > 0 {
			out = append(out, StudentStreak{Student: st, Streak: streak})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Streak != out[j].Streak {
			return out[i].Streak > out[j].Streak
		}
		return out[i].Student.Name < out[j].Student.Name
	})
	return out
}

// ClassesInProgress lists classes running at now.
func (s *Service) ClassesInProgress(now time.Time) []ClassGroup {
	var out []ClassGroup
	for _, c := range s.store.ListClasses() {
		if calc.ClassInProgress(c, now) {
			out = append(out, c)
		}
	}
	return out
}

// ExamAverage returns a student's mean exam percentage.
func (s *Service) ExamAverage(studentID string) (float64, bool) {
	return calc.StudentExamAverage(s.store.ListExams(), studentID)
}
