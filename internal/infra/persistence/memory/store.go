// Package memory provides an in-memory implementation of the academy snapshot
// store used for tests, demos and as the transactional core of the SQLite store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"academycore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.MarkerStore     = (*Store)(nil)
)

type (
	// Student aliases domain.Student for in-memory persistence operations.
	Student = domain.Student
	// ClassGroup aliases domain.ClassGroup.
	ClassGroup = domain.ClassGroup
	// AttendanceRecord aliases domain.AttendanceRecord.
	AttendanceRecord = domain.AttendanceRecord
	// FeeRecord aliases domain.FeeRecord.
	FeeRecord = domain.FeeRecord
	// ExamRecord aliases domain.ExamRecord.
	ExamRecord = domain.ExamRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	students   map[string]Student
	classes    map[string]ClassGroup
	attendance map[string]AttendanceRecord
	fees       map[string]FeeRecord
	exams      map[string]ExamRecord
	markers    map[string]time.Time
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Students   map[string]Student          `json:"students"`
	Classes    map[string]ClassGroup       `json:"classes"`
	Attendance map[string]AttendanceRecord `json:"attendance"`
	Fees       map[string]FeeRecord        `json:"fees"`
	Exams      map[string]ExamRecord       `json:"exams"`
	Markers    map[string]time.Time        `json:"markers"`
}

func newMemoryState() memoryState {
	return memoryState{
		students:   make(map[string]Student),
		classes:    make(map[string]ClassGroup),
		attendance: make(map[string]AttendanceRecord),
		fees:       make(map[string]FeeRecord),
		exams:      make(map[string]ExamRecord),
		markers:    make(map[string]time.Time),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		Students:   cloneMap(state.students, cloneStudent),
		Classes:    cloneMap(state.classes, identity[ClassGroup]),
		Attendance: cloneMap(state.attendance, cloneAttendance),
		Fees:       cloneMap(state.fees, cloneFee),
		Exams:      cloneMap(state.exams, identity[ExamRecord]),
		Markers:    cloneMap(state.markers, identity[time.Time]),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{
		students:   cloneMap(s.Students, cloneStudent),
		classes:    cloneMap(s.Classes, identity[ClassGroup]),
		attendance: cloneMap(s.Attendance, cloneAttendance),
		fees:       cloneMap(s.Fees, cloneFee),
		exams:      cloneMap(s.Exams, identity[ExamRecord]),
		markers:    cloneMap(s.Markers, identity[time.Time]),
	}
}

// SnapshotFromCollections keys each collection by id. Records without an id are dropped.
func SnapshotFromCollections(c domain.Collections) Snapshot {
	return Snapshot{
		Students:   byID(c.Students, func(v Student) string { return v.ID }),
		Classes:    byID(c.Classes, func(v ClassGroup) string { return v.ID }),
		Attendance: byID(c.Attendance, func(v AttendanceRecord) string { return v.ID }),
		Fees:       byID(c.Fees, func(v FeeRecord) string { return v.ID }),
		Exams:      byID(c.Exams, func(v ExamRecord) string { return v.ID }),
	}
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func (s memoryState) collections() domain.Collections {
	return domain.Collections{
		Students:   sortedValues(s.students, cloneStudent),
		Classes:    sortedValues(s.classes, identity[ClassGroup]),
		Attendance: sortedValues(s.attendance, cloneAttendance),
		Fees:       sortedValues(s.fees, cloneFee),
		Exams:      sortedValues(s.exams, identity[ExamRecord]),
	}
}

func identity[T any](v T) T { return v }

func cloneMap[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func byID[T any](in []T, id func(T) string) map[string]T {
	out := make(map[string]T, len(in))
	for _, v := range in {
		if key := id(v); key != "" {
			out[key] = v
		}
	}
	return out
}

func sortedValues[T any](in map[string]T, clone func(T) T) []T {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(in[k]))
	}
	return out
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneStudent(s Student) Student {
	cp := s
	cp.JoinedDate = cloneTimePtr(s.JoinedDate)
	cp.LastReminderSentAt = cloneTimePtr(s.LastReminderSentAt)
	cp.LastInquirySentDate = cloneTimePtr(s.LastInquirySentDate)
	return cp
}

func cloneAttendance(a AttendanceRecord) AttendanceRecord {
	cp := a
	cp.StudentIDsPresent = dedupeStrings(a.StudentIDsPresent)
	cp.ContactedAbsentees = dedupeStrings(a.ContactedAbsentees)
	return cp
}

func cloneFee(f FeeRecord) FeeRecord {
	cp := f
	cp.BillingMonth = cloneTimePtr(f.BillingMonth)
	cp.NextDueDate = cloneTimePtr(f.NextDueDate)
	return cp
}

func dedupeStrings(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Store provides an in-memory transactional store for the academy domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for timestamps.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = now
	s.mu.Unlock()
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// ReplaceAll swaps every entity collection. Markers are kept.
func (s *Store) ReplaceAll(_ context.Context, c domain.Collections) error {
	next := memoryStateFromSnapshot(SnapshotFromCollections(c))
	s.mu.Lock()
	defer s.mu.Unlock()
	next.markers = s.state.markers
	s.state = next
	return nil
}

// Collections returns every collection ordered by id.
func (s *Store) Collections() domain.Collections {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.collections()
}

// HasMarker reports whether a one-shot marker was set.
func (s *Store) HasMarker(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.markers[name]
	return ok, nil
}

// SetMarker records a one-shot marker.
func (s *Store) SetMarker(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("marker name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.markers[name] = s.nowFn()
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetStudent retrieves a student by ID from committed state.
func (s *Store) GetStudent(id string) (Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state.students[id]
	if !ok {
		return Student{}, false
	}
	return cloneStudent(st), true
}

// ListStudents returns all students ordered by id.
func (s *Store) ListStudents() []Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state.students, cloneStudent)
}

// ListClasses returns all classes ordered by id.
func (s *Store) ListClasses() []ClassGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state.classes, identity[ClassGroup])
}

// ListAttendance returns all attendance records ordered by id.
func (s *Store) ListAttendance() []AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state.attendance, cloneAttendance)
}

// ListFees returns all fee records ordered by id.
func (s *Store) ListFees() []FeeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state.fees, cloneFee)
}

// ListExams returns all exam records ordered by id.
func (s *Store) ListExams() []ExamRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state.exams, identity[ExamRecord])
}
