// Package domain defines the academy's persistent entities, value types, and
// rule evaluation primitives used by academycore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStudent identifies a student record.
	EntityStudent EntityType = "student"
	// EntityClass identifies a class group record.
	EntityClass EntityType = "class"
	// EntityAttendance identifies an attendance record.
	EntityAttendance EntityType = "attendance"
	// EntityFee identifies a fee payment record.
	EntityFee EntityType = "fee"
	// EntityExam identifies an exam mark record.
	EntityExam EntityType = "exam"
)

// StudentStatus captures whether a student is currently enrolled.
type StudentStatus string

// Student statuses. A suspended student keeps history but drops out of expectations and dues.
const (
	StudentActive             StudentStatus = "active"
	StudentTemporarySuspended StudentStatus = "temporary_suspended"
)

// AttendanceStatus marks whether a session took place.
type AttendanceStatus string

// Attendance record statuses. Cancelling is a toggle; the row is retained.
const (
	AttendanceActive    AttendanceStatus = "active"
	AttendanceCancelled AttendanceStatus = "cancelled"
)

// Sentinel class identifiers meaning "every grade".
const (
	ClassGeneral = "general"
	ClassAll     = "All"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Student is an enrolled (or suspended) learner.
type Student struct {
	Base
	Name                string        `json:"name" validate:"required"`
	ParentName          string        `json:"parent_name"`
	Phone               string        `json:"phone"`
	ParentPhone         string        `json:"parent_phone"`
	Gender              string        `json:"gender"`
	Grade               string        `json:"grade"`
	JoinedDate          *time.Time    `json:"joined_date"`
	Status              StudentStatus `json:"status" validate:"omitempty,oneof=active temporary_suspended"`
	PhotoKey            string        `json:"photo_key"`
	LastReminderSentAt  *time.Time    `json:"last_reminder_sent_at"`
	ReminderCount       int           `json:"reminder_count"`
	LastInquirySentDate *time.Time    `json:"last_inquiry_sent_date"`
}

// IsSuspended reports whether the student is temporarily out of the roll.
func (s Student) IsSuspended() bool {
	return s.Status == StudentTemporarySuspended
}

// ClassGroup is a recurring weekly session.
type ClassGroup struct {
	Base
	Name      string       `json:"name" validate:"required"`
	DayOfWeek time.Weekday `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string       `json:"start_time" validate:"omitempty,datetime=15:04"`
	// EndTime is optional; when empty the end is read from Schedule.
	EndTime  string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Schedule string `json:"schedule"`
}

// AttendanceRecord captures who attended a class (or a general session) on a day.
type AttendanceRecord struct {
	Base
	ClassID            string           `json:"class_id" validate:"required"`
	Date               time.Time        `json:"date" validate:"required"`
	StudentIDsPresent  []string         `json:"student_ids_present"`
	ContactedAbsentees []string         `json:"contacted_absentees"`
	Status             AttendanceStatus `json:"status" validate:"omitempty,oneof=active cancelled"`
}

// IsCancelled reports whether the session was cancelled.
func (a AttendanceRecord) IsCancelled() bool {
	return a.Status == AttendanceCancelled
}

// HasPresent reports whether studentID was marked present.
func (a AttendanceRecord) HasPresent(studentID string) bool {
	return containsID(a.StudentIDsPresent, studentID)
}

// HasContacted reports whether the absentee studentID was already messaged for this record.
func (a AttendanceRecord) HasContacted(studentID string) bool {
	return containsID(a.ContactedAbsentees, studentID)
}

// FeeRecord is a single payment. BillingMonth is the cycle it clears; NextDueDate is a cache.
type FeeRecord struct {
	Base
	StudentID    string          `json:"student_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date" validate:"required"`
	BillingMonth *time.Time      `json:"billing_month"`
	NextDueDate  *time.Time      `json:"next_due_date"`
	Notes        string          `json:"notes"`
	ReceiptSent  bool            `json:"receipt_sent"`
}

// ExamRecord is a test mark.
type ExamRecord struct {
	Base
	StudentID string    `json:"student_id" validate:"required"`
	TestName  string    `json:"test_name" validate:"required"`
	Score     float64   `json:"score" validate:"min=0"`
	Total     float64   `json:"total" validate:"gt=0"`
	Date      time.Time `json:"date"`
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
