package core

import "academycore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Student            = domain.Student
	StudentStatus      = domain.StudentStatus
	ClassGroup         = domain.ClassGroup
	AttendanceRecord   = domain.AttendanceRecord
	AttendanceStatus   = domain.AttendanceStatus
	FeeRecord          = domain.FeeRecord
	ExamRecord         = domain.ExamRecord
	Collections        = domain.Collections
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	MarkerStore        = domain.MarkerStore
)

const (
	EntityStudent    = domain.EntityStudent
	EntityClass      = domain.EntityClass
	EntityAttendance = domain.EntityAttendance
	EntityFee        = domain.EntityFee
	EntityExam       = domain.EntityExam
)

const (
	StudentActive             = domain.StudentActive
	StudentTemporarySuspended = domain.StudentTemporarySuspended
	AttendanceActive          = domain.AttendanceActive
	AttendanceCancelled       = domain.AttendanceCancelled
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
