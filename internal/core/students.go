package core

import (
	"context"
	"fmt"
	"strings"

	"academycore/internal/calc"
	"academycore/internal/messaging"
	"academycore/internal/syncer"
)

// CreateStudent persists a new student.
func (s *Service) CreateStudent(ctx context.Context, student Student) (Student, Result, error) {
	student.Name = strings.TrimSpace(student.Name)
	if err := validateEntity(EntityStudent, student); err != nil {
		return Student{}, Result{}, err
	}
	if student.JoinedDate != nil {
		joined := calc.Day(*student.JoinedDate)
		student.JoinedDate = &joined
	}
	var created Student
	res, err := s.run(ctx, "student.create", func(tx Transaction) error {
		var err error
		created, err = tx.CreateStudent(student)
		return err
	})
	if err != nil {
		return Student{}, res, err
	}
	s.replicateUpsert(ctx, EntityStudent, created)
	return created, res, nil
}

// UpdateStudent applies mutator to an existing student.
func (s *Service) UpdateStudent(ctx context.Context, id string, mutator func(*Student) error) (Student, Result, error) {
	var updated Student
	res, err := s.run(ctx, "student.update", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateStudent(id, func(st *Student) error {
			if err := mutator(st); err != nil {
				return err
			}
			st.Name = strings.TrimSpace(st.Name)
			if st.JoinedDate != nil {
				joined := calc.Day(*st.JoinedDate)
				st.JoinedDate = &joined
			}
			return validateEntity(EntityStudent, *st)
		})
		return err
	})
	if err != nil {
		return Student{}, res, err
	}
	s.replicateUpsert(ctx, EntityStudent, updated)
	return updated, res, nil
}

// SetStudentStatus switches a student between active and temporarily suspended.
// Attendance and fee history is left untouched.
func (s *Service) SetStudentStatus(ctx context.Context, id string, status StudentStatus) (Student, Result, error) {
	return s.UpdateStudent(ctx, id, func(st *Student) error {
		st.Status = status
		return nil
	})
}

// DeleteStudent removes a student together with their fees and exams.
// Remote deletes are issued children first; attendance history keeps the id.
func (s *Service) DeleteStudent(ctx context.Context, id string) (Result, error) {
	var feeIDs, examIDs []string
	res, err := s.run(ctx, "student.delete", func(tx Transaction) error {
		if _, ok := tx.FindStudent(id); !ok {
			return fmt.Errorf("student %s: %w", id, ErrNotFound)
		}
		view := tx.Snapshot()
		for _, fee := range calc.FeesFor(view.ListFees(), id) {
			if err := tx.DeleteFee(fee.ID); err != nil {
				return err
			}
			feeIDs = append(feeIDs, fee.ID)
		}
		for _, exam := range view.ListExams() {
			if exam.StudentID != id {
				continue
			}
			if err := tx.DeleteExam(exam.ID); err != nil {
				return err
			}
			examIDs = append(examIDs, exam.ID)
		}
		return tx.DeleteStudent(id)
	})
	if err != nil {
		return res, err
	}
	var batch []syncer.Mutation
	add := func(entity EntityType, id string) {
		m, err := deleteMutation(entity, id)
		if err != nil {
			s.logger.Error("encode delete", "entity", entity, "id", id, "err", err)
			return
		}
		batch = append(batch, m)
	}
	for _, fid := range feeIDs {
		add(EntityFee, fid)
	}
	for _, eid := range examIDs {
		add(EntityExam, eid)
	}
	add(EntityStudent, id)
	s.replicate(ctx, batch...)
	if s.photos != nil {
		if err := s.photos.Remove(ctx, id); err != nil {
			s.logger.Warn("remove student photos", "student", id, "err", err)
		}
	}
	return res, nil
}

// RecordReminderSent stamps a fee reminder on the student's audit fields.
func (s *Service) RecordReminderSent(ctx context.Context, studentID string) (Student, error) {
	now := s.now()
	st, _, err := s.UpdateStudent(ctx, studentID, func(st *Student) error {
		st.LastReminderSentAt = &now
		st.ReminderCount++
		return nil
	})
	return st, err
}

// DuplicateMatch is an existing student sharing a phone number with a new entry.
type DuplicateMatch struct {
	Student  Student
	SameName bool
}

// PossibleDuplicates lists students whose phone or parent phone normalises to
// the same number. It is a warning aid only and never blocks creation.
func (s *Service) PossibleDuplicates(phone, name string) []DuplicateMatch {
	target := messaging.FormatSLNumber(phone)
	if target == "" {
		return nil
	}
	name = strings.TrimSpace(name)
	var out []DuplicateMatch
	for _, st := range s.store.ListStudents() {
		if messaging.FormatSLNumber(st.Phone) != target && messaging.FormatSLNumber(st.ParentPhone) != target {
			continue
		}
		out = append(out, DuplicateMatch{Student: st, SameName: name != "" && strings.EqualFold(strings.TrimSpace(st.Name), name)})
	}
	return out
}
