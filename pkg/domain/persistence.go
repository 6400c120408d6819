package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateStudent(Student) (Student, error)
	UpdateStudent(id string, mutator func(*Student) error) (Student, error)
	DeleteStudent(id string) error
	CreateClass(ClassGroup) (ClassGroup, error)
	UpdateClass(id string, mutator func(*ClassGroup) error) (ClassGroup, error)
	DeleteClass(id string) error
	CreateAttendance(AttendanceRecord) (AttendanceRecord, error)
	UpdateAttendance(id string, mutator func(*AttendanceRecord) error) (AttendanceRecord, error)
	DeleteAttendance(id string) error
	CreateFee(FeeRecord) (FeeRecord, error)
	UpdateFee(id string, mutator func(*FeeRecord) error) (FeeRecord, error)
	DeleteFee(id string) error
	// PutExam creates or replaces an exam by id.
	PutExam(ExamRecord) (ExamRecord, error)
	DeleteExam(id string) error
	FindStudent(id string) (Student, bool)
	FindFee(id string) (FeeRecord, bool)
	FindAttendance(id string) (AttendanceRecord, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// Collections is a full point-in-time copy of every entity collection, ordered by id.
type Collections struct {
	Students   []Student          `json:"students"`
	Classes    []ClassGroup       `json:"classes"`
	Attendance []AttendanceRecord `json:"attendance"`
	Fees       []FeeRecord        `json:"fees"`
	Exams      []ExamRecord       `json:"exams"`
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// ReplaceAll swaps every collection at once (backup import, remote refresh).
	ReplaceAll(ctx context.Context, c Collections) error
	Collections() Collections
	GetStudent(id string) (Student, bool)
	ListStudents() []Student
	ListClasses() []ClassGroup
	ListAttendance() []AttendanceRecord
	ListFees() []FeeRecord
	ListExams() []ExamRecord
}

// MarkerStore persists one-shot workflow flags such as promoted_<year>.
type MarkerStore interface {
	HasMarker(ctx context.Context, name string) (bool, error)
	SetMarker(ctx context.Context, name string) error
}
