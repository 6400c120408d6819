package calc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"academycore/pkg/domain"
)

// ErrDuplicateCycle is returned when a payment targets a month already paid for.
var ErrDuplicateCycle = errors.New("billing cycle already paid")

var legacyBillingMonth = regexp.MustCompile(`(?i)billing month:\s*([a-z]+)\s+(\d{4})`)

// FeeStatus is the derived fee position of one student. It is never persisted.
type FeeStatus struct {
	StudentID  string
	BillingDay int
	Anchor     time.Time
	HasAnchor  bool
	NeverPaid  bool
	// NextDue is zero only when the student has neither payments nor a join date.
	NextDue time.Time
	Overdue bool
}

// BillingDay is the day-of-month the student's cycle renews on.
func BillingDay(s domain.Student) int {
	if s.JoinedDate == nil || s.JoinedDate.IsZero() {
		return 1
	}
	return s.JoinedDate.Day()
}

// CycleAnchor resolves which month a payment clears. explicit is false when
// the raw transaction date had to be used.
func CycleAnchor(fee domain.FeeRecord) (anchor time.Time, explicit bool) {
	if fee.BillingMonth != nil && !fee.BillingMonth.IsZero() {
		return Day(*fee.BillingMonth), true
	}
	if month, ok := ParseLegacyBillingMonth(fee.Notes); ok {
		return month, true
	}
	return Day(fee.Date), false
}

// ParseLegacyBillingMonth extracts "Billing Month: January 2024" style tokens.
func ParseLegacyBillingMonth(notes string) (time.Time, bool) {
	match := legacyBillingMonth.FindStringSubmatch(notes)
	if match == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("January 2006", titleMonth(match[1])+" "+match[2])
	if err != nil {
		t, err = time.Parse("Jan 2006", titleMonth(match[1])+" "+match[2])
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// LegacyBillingNote renders the notes token older records carry.
func LegacyBillingNote(month time.Time) string {
	return "Billing Month: " + month.Format("January 2006")
}

func titleMonth(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// FeesFor filters fees to one student.
func FeesFor(fees []domain.FeeRecord, studentID string) []domain.FeeRecord {
	var out []domain.FeeRecord
	for _, f := range fees {
		if f.StudentID == studentID {
			out = append(out, f)
		}
	}
	return out
}

// LatestAnchor picks the latest explicit anchor, else the latest raw date.
func LatestAnchor(fees []domain.FeeRecord) (time.Time, bool) {
	var explicitMax, fallbackMax time.Time
	var haveExplicit, haveFallback bool
	for _, fee := range fees {
		anchor, explicit := CycleAnchor(fee)
		if explicit {
			if !haveExplicit || anchor.After(explicitMax) {
				explicitMax = anchor
				haveExplicit = true
			}
			continue
		}
		if fee.Date.IsZero() {
			continue
		}
		if !haveFallback || anchor.After(fallbackMax) {
			fallbackMax = anchor
			haveFallback = true
		}
	}
	switch {
	case haveExplicit:
		return explicitMax, true
	case haveFallback:
		return fallbackMax, true
	default:
		return time.Time{}, false
	}
}

// NextDueDate derives when the next payment falls due.
func NextDueDate(s domain.Student, fees []domain.FeeRecord) (time.Time, bool) {
	anchor, ok := LatestAnchor(FeesFor(fees, s.ID))
	if ok {
		return AddMonthsClamped(anchor, 1, BillingDay(s)), true
	}
	if s.JoinedDate != nil && !s.JoinedDate.IsZero() {
		return Day(*s.JoinedDate), true
	}
	return time.Time{}, false
}

// StudentFeeStatus derives overdue state and next due date for one student.
// A student with no payments and no join date is reported overdue.
func StudentFeeStatus(s domain.Student, fees []domain.FeeRecord, today time.Time) FeeStatus {
	own := FeesFor(fees, s.ID)
	status := FeeStatus{StudentID: s.ID, BillingDay: BillingDay(s), NeverPaid: len(own) == 0}
	status.Anchor, status.HasAnchor = LatestAnchor(own)
	next, ok := NextDueDate(s, own)
	if !ok {
		status.Overdue = true
		return status
	}
	status.NextDue = next
	status.Overdue = Day(next).Before(Day(today))
	return status
}

// StoredNextDue computes the redundant NextDueDate written on a fee at save time.
func StoredNextDue(s domain.Student, fee domain.FeeRecord) time.Time {
	anchor, _ := CycleAnchor(fee)
	return AddMonthsClamped(anchor, 1, BillingDay(s))
}

// CheckDuplicateCycle rejects a payment for month when another record of the
// same student already resolves to that month. editingID exempts the record
// being edited.
func CheckDuplicateCycle(fees []domain.FeeRecord, studentID string, month time.Time, editingID string) error {
	for _, fee := range fees {
		if fee.StudentID != studentID || (editingID != "" && fee.ID == editingID) {
			continue
		}
		anchor, _ := CycleAnchor(fee)
		if SameMonth(anchor, month) {
			return fmt.Errorf("%w: %s already covered by %s", ErrDuplicateCycle, month.Format("January 2006"), fee.ID)
		}
	}
	return nil
}
