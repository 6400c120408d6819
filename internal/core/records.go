package core

import (
	"context"
	"fmt"
	"strings"

	"academycore/internal/calc"
)

// CreateClass persists a class group.
func (s *Service) CreateClass(ctx context.Context, class ClassGroup) (ClassGroup, Result, error) {
	class.Name = strings.TrimSpace(class.Name)
	if err := validateEntity(EntityClass, class); err != nil {
		return ClassGroup{}, Result{}, err
	}
	var created ClassGroup
	res, err := s.run(ctx, "class.create", func(tx Transaction) error {
		var err error
		created, err = tx.CreateClass(class)
		return err
	})
	if err != nil {
		return ClassGroup{}, res, err
	}
	s.replicateUpsert(ctx, EntityClass, created)
	return created, res, nil
}

// UpdateClass applies mutator to a class group.
func (s *Service) UpdateClass(ctx context.Context, id string, mutator func(*ClassGroup) error) (ClassGroup, Result, error) {
	var updated ClassGroup
	res, err := s.run(ctx, "class.update", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateClass(id, func(c *ClassGroup) error {
			if err := mutator(c); err != nil {
				return err
			}
			return validateEntity(EntityClass, *c)
		})
		return err
	})
	if err != nil {
		return ClassGroup{}, res, err
	}
	s.replicateUpsert(ctx, EntityClass, updated)
	return updated, res, nil
}

// DeleteClass removes a class group. Attendance recorded against it is kept.
func (s *Service) DeleteClass(ctx context.Context, id string) (Result, error) {
	res, err := s.run(ctx, "class.delete", func(tx Transaction) error {
		return tx.DeleteClass(id)
	})
	if err != nil {
		return res, err
	}
	s.replicateDelete(ctx, EntityClass, id)
	return res, nil
}

// RecordAttendance stores an attendance sheet for one class and day.
func (s *Service) RecordAttendance(ctx context.Context, record AttendanceRecord) (AttendanceRecord, Result, error) {
	if err := validateEntity(EntityAttendance, record); err != nil {
		return AttendanceRecord{}, Result{}, err
	}
	record.Date = calc.Day(record.Date)
	var created AttendanceRecord
	res, err := s.run(ctx, "attendance.create", func(tx Transaction) error {
		var err error
		created, err = tx.CreateAttendance(record)
		return err
	})
	if err != nil {
		return AttendanceRecord{}, res, err
	}
	s.replicateUpsert(ctx, EntityAttendance, created)
	return created, res, nil
}

// UpdateAttendance applies mutator to an attendance record.
func (s *Service) UpdateAttendance(ctx context.Context, id string, mutator func(*AttendanceRecord) error) (AttendanceRecord, Result, error) {
	var updated AttendanceRecord
	res, err := s.run(ctx, "attendance.update", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateAttendance(id, func(a *AttendanceRecord) error {
			if err := mutator(a); err != nil {
				return err
			}
			a.Date = calc.Day(a.Date)
			return validateEntity(EntityAttendance, *a)
		})
		return err
	})
	if err != nil {
		return AttendanceRecord{}, res, err
	}
	s.replicateUpsert(ctx, EntityAttendance, updated)
	return updated, res, nil
}

// DeleteAttendance removes an attendance record.
func (s *Service) DeleteAttendance(ctx context.Context, id string) (Result, error) {
	res, err := s.run(ctx, "attendance.delete", func(tx Transaction) error {
		return tx.DeleteAttendance(id)
	})
	if err != nil {
		return res, err
	}
	s.replicateDelete(ctx, EntityAttendance, id)
	return res, nil
}

// ToggleAttendanceCancelled flips a record between active and cancelled.
// Cancelled sessions count for nothing in rates and streaks.
func (s *Service) ToggleAttendanceCancelled(ctx context.Context, id string) (AttendanceRecord, error) {
	rec, _, err := s.UpdateAttendance(ctx, id, func(a *AttendanceRecord) error {
		if a.IsCancelled() {
			a.Status = AttendanceActive
		} else {
			a.Status = AttendanceCancelled
		}
		return nil
	})
	return rec, err
}

// MarkAbsenteeContacted records that the parent of an absent student was
// contacted about record. Repeated calls leave the record unchanged.
func (s *Service) MarkAbsenteeContacted(ctx context.Context, recordID, studentID string) (AttendanceRecord, error) {
	now := s.now()
	var rec AttendanceRecord
	var student Student
	_, err := s.run(ctx, "attendance.contacted", func(tx Transaction) error {
		if _, ok := tx.FindStudent(studentID); !ok {
			return fmt.Errorf("student %s: %w", studentID, ErrNotFound)
		}
		var err error
		rec, err = tx.UpdateAttendance(recordID, func(a *AttendanceRecord) error {
			if !a.HasContacted(studentID) {
				a.ContactedAbsentees = append(a.ContactedAbsentees, studentID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		student, err = tx.UpdateStudent(studentID, func(st *Student) error {
			st.LastInquirySentDate = &now
			return nil
		})
		return err
	})
	if err != nil {
		return AttendanceRecord{}, err
	}
	att, errA := upsertMutation(EntityAttendance, rec)
	st, errS := upsertMutation(EntityStudent, student)
	if errA != nil || errS != nil {
		s.logger.Error("encode contact change", "record", recordID, "student", studentID)
		return rec, nil
	}
	s.replicate(ctx, att, st)
	return rec, nil
}

// RecordPayment stores a fee payment. A missing billing month defaults to the
// student's next due cycle; the cached next due date is always recomputed.
func (s *Service) RecordPayment(ctx context.Context, fee FeeRecord) (FeeRecord, Result, error) {
	if fee.Date.IsZero() {
		fee.Date = s.now()
	}
	if err := validateEntity(EntityFee, fee); err != nil {
		return FeeRecord{}, Result{}, err
	}
	if fee.Amount.IsNegative() {
		return FeeRecord{}, Result{}, invalidField(EntityFee, "Amount", "min=0")
	}
	var created FeeRecord
	res, err := s.run(ctx, "fee.create", func(tx Transaction) error {
		student, ok := tx.FindStudent(fee.StudentID)
		if !ok {
			return fmt.Errorf("student %s: %w", fee.StudentID, ErrNotFound)
		}
		if fee.BillingMonth == nil {
			if next, ok := calc.NextDueDate(student, tx.Snapshot().ListFees()); ok {
				fee.BillingMonth = &next
			}
		} else {
			month := calc.Day(*fee.BillingMonth)
			fee.BillingMonth = &month
		}
		next := calc.StoredNextDue(student, fee)
		fee.NextDueDate = &next
		var err error
		created, err = tx.CreateFee(fee)
		return err
	})
	if err != nil {
		return FeeRecord{}, res, err
	}
	s.replicateUpsert(ctx, EntityFee, created)
	return created, res, nil
}

// UpdateFee applies mutator to a fee and refreshes its cached next due date.
func (s *Service) UpdateFee(ctx context.Context, id string, mutator func(*FeeRecord) error) (FeeRecord, Result, error) {
	var updated FeeRecord
	res, err := s.run(ctx, "fee.update", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateFee(id, func(f *FeeRecord) error {
			if err := mutator(f); err != nil {
				return err
			}
			if err := validateEntity(EntityFee, *f); err != nil {
				return err
			}
			if f.Amount.IsNegative() {
				return invalidField(EntityFee, "Amount", "min=0")
			}
			if f.BillingMonth != nil {
				month := calc.Day(*f.BillingMonth)
				f.BillingMonth = &month
			}
			if student, ok := tx.FindStudent(f.StudentID); ok {
				next := calc.StoredNextDue(student, *f)
				f.NextDueDate = &next
			}
			return nil
		})
		return err
	})
	if err != nil {
		return FeeRecord{}, res, err
	}
	s.replicateUpsert(ctx, EntityFee, updated)
	return updated, res, nil
}

// DeleteFee removes a fee record.
func (s *Service) DeleteFee(ctx context.Context, id string) (Result, error) {
	res, err := s.run(ctx, "fee.delete", func(tx Transaction) error {
		return tx.DeleteFee(id)
	})
	if err != nil {
		return res, err
	}
	s.replicateDelete(ctx, EntityFee, id)
	return res, nil
}

// MarkReceiptSent flags that the payment receipt went out.
func (s *Service) MarkReceiptSent(ctx context.Context, feeID string) (FeeRecord, error) {
	fee, _, err := s.UpdateFee(ctx, feeID, func(f *FeeRecord) error {
		f.ReceiptSent = true
		return nil
	})
	return fee, err
}

// SaveExam creates or replaces an exam mark. Scores above the total are
// accepted and reported as a warning in the result.
func (s *Service) SaveExam(ctx context.Context, exam ExamRecord) (ExamRecord, Result, error) {
	exam.TestName = strings.TrimSpace(exam.TestName)
	if err := validateEntity(EntityExam, exam); err != nil {
		return ExamRecord{}, Result{}, err
	}
	if exam.Date.IsZero() {
		exam.Date = s.now()
	}
	var saved ExamRecord
	res, err := s.run(ctx, "exam.save", func(tx Transaction) error {
		var err error
		saved, err = tx.PutExam(exam)
		return err
	})
	if err != nil {
		return ExamRecord{}, res, err
	}
	s.replicateUpsert(ctx, EntityExam, saved)
	return saved, res, nil
}

// DeleteExam removes an exam mark.
func (s *Service) DeleteExam(ctx context.Context, id string) (Result, error) {
	res, err := s.run(ctx, "exam.delete", func(tx Transaction) error {
		return tx.DeleteExam(id)
	})
	if err != nil {
		return res, err
	}
	s.replicateDelete(ctx, EntityExam, id)
	return res, nil
}
