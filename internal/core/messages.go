package core

import (
	"context"
	"fmt"

	"academycore/internal/calc"
	"academycore/internal/messaging"
)

// Message is a composed outbound WhatsApp message.
type Message struct {
	Kind      messaging.Kind
	StudentID string
	Phone     string
	Text      string
	Link      string
	// Drafted is true when the text came from the generator rather than the template.
	Drafted bool
}

func contactPhone(st Student) string {
	if st.ParentPhone != "" {
		return st.ParentPhone
	}
	return st.Phone
}

func (s *Service) details(st Student) messaging.Details {
	return messaging.Details{
		Academy:     s.academy,
		Currency:    s.currency,
		StudentName: st.Name,
		ParentName:  st.ParentName,
	}
}

func (s *Service) compose(ctx context.Context, kind messaging.Kind, st Student, d messaging.Details) (Message, error) {
	phone := contactPhone(st)
	if phone == "" {
		return Message{}, invalidField(EntityStudent, "ParentPhone", "required")
	}
	text, drafted, err := s.drafter.Draft(ctx, kind, d)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:      kind,
		StudentID: st.ID,
		Phone:     messaging.FormatSLNumber(phone),
		Text:      text,
		Link:      messaging.WhatsAppLink(phone, text),
		Drafted:   drafted,
	}, nil
}

// ComposeFeeReminder builds the fee reminder for a student.
func (s *Service) ComposeFeeReminder(ctx context.Context, studentID string) (Message, error) {
	st, ok := s.store.GetStudent(studentID)
	if !ok {
		return Message{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	status := calc.StudentFeeStatus(st, s.store.ListFees(), s.today())
	d := s.details(st)
	d.DueDate = status.NextDue
	return s.compose(ctx, messaging.KindFeeReminder, st, d)
}

// SendFeeReminder opens the reminder link and records that it was sent.
func (s *Service) SendFeeReminder(ctx context.Context, studentID string) (Message, error) {
	msg, err := s.ComposeFeeReminder(ctx, studentID)
	if err != nil {
		return Message{}, err
	}
	if err := s.open(ctx, msg); err != nil {
		return msg, err
	}
	if _, err := s.RecordReminderSent(ctx, studentID); err != nil {
		return msg, err
	}
	return msg, nil
}

// ComposeAbsenceInquiry builds the parent inquiry for an absentee of record.
func (s *Service) ComposeAbsenceInquiry(ctx context.Context, recordID, studentID string) (Message, error) {
	alerts, err := s.AbsenceAlerts(recordID)
	if err != nil {
		return Message{}, err
	}
	for _, alert := range alerts {
		if alert.Student.ID != studentID {
			continue
		}
		d := s.details(alert.Student)
		d.Absences = alert.Streak
		for _, rec := range s.store.ListAttendance() {
			if rec.ID == recordID {
				d.LastClass = rec.Date
			}
		}
		return s.compose(ctx, messaging.KindAbsenceInquiry, alert.Student, d)
	}
	return Message{}, fmt.Errorf("student %s is not an absentee of %s: %w", studentID, recordID, ErrNotFound)
}

// SendAbsenceInquiry opens the inquiry link and marks the absentee contacted.
func (s *Service) SendAbsenceInquiry(ctx context.Context, recordID, studentID string) (Message, error) {
	msg, err := s.ComposeAbsenceInquiry(ctx, recordID, studentID)
	if err != nil {
		return Message{}, err
	}
	if err := s.open(ctx, msg); err != nil {
		return msg, err
	}
	if _, err := s.MarkAbsenteeContacted(ctx, recordID, studentID); err != nil {
		return msg, err
	}
	return msg, nil
}

// ComposeReceipt builds the payment receipt for a fee.
func (s *Service) ComposeReceipt(ctx context.Context, feeID string) (Message, error) {
	var fee FeeRecord
	found := false
	for _, f := range s.store.ListFees() {
		if f.ID == feeID {
			fee, found = f, true
			break
		}
	}
	if !found {
		return Message{}, fmt.Errorf("fee %s: %w", feeID, ErrNotFound)
	}
	st, ok := s.store.GetStudent(fee.StudentID)
	if !ok {
		return Message{}, fmt.Errorf("student %s: %w", fee.StudentID, ErrNotFound)
	}
	d := s.details(st)
	d.Amount = fee.Amount
	d.PaidOn = fee.Date
	d.BillingMonth, _ = calc.CycleAnchor(fee)
	return s.compose(ctx, messaging.KindPaymentReceipt, st, d)
}

// SendReceipt opens the receipt link and flags the fee.
func (s *Service) SendReceipt(ctx context.Context, feeID string) (Message, error) {
	msg, err := s.ComposeReceipt(ctx, feeID)
	if err != nil {
		return Message{}, err
	}
	if err := s.open(ctx, msg); err != nil {
		return msg, err
	}
	if _, err := s.MarkReceiptSent(ctx, feeID); err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *Service) open(ctx context.Context, msg Message) error {
	if s.opener == nil {
		return fmt.Errorf("message opener: %w", ErrFeatureDisabled)
	}
	if err := s.opener.Open(ctx, msg.Link); err != nil {
		return fmt.Errorf("open %s link: %w", msg.Kind, err)
	}
	return nil
}
