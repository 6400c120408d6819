package memory

import (
	"fmt"
	"time"

	"academycore/pkg/domain"
)

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListStudents() []Student {
	return sortedValues(v.state.students, cloneStudent)
}

func (v transactionView) ListClasses() []ClassGroup {
	return sortedValues(v.state.classes, identity[ClassGroup])
}

func (v transactionView) ListAttendance() []AttendanceRecord {
	return sortedValues(v.state.attendance, cloneAttendance)
}

func (v transactionView) ListFees() []FeeRecord {
	return sortedValues(v.state.fees, cloneFee)
}

func (v transactionView) ListExams() []ExamRecord {
	return sortedValues(v.state.exams, identity[ExamRecord])
}

func (v transactionView) FindStudent(id string) (Student, bool) {
	s, ok := v.state.students[id]
	return cloneStudent(s), ok
}

func (v transactionView) FindClass(id string) (ClassGroup, bool) {
	c, ok := v.state.classes[id]
	return c, ok
}

func (v transactionView) FindAttendance(id string) (AttendanceRecord, bool) {
	a, ok := v.state.attendance[id]
	return cloneAttendance(a), ok
}

func (v transactionView) FindFee(id string) (FeeRecord, bool) {
	f, ok := v.state.fees[id]
	return cloneFee(f), ok
}

func (v transactionView) FindExam(id string) (ExamRecord, bool) {
	e, ok := v.state.exams[id]
	return e, ok
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindStudent exposes student lookup within the transaction scope.
func (tx *transaction) FindStudent(id string) (Student, bool) {
	return transactionView{state: &tx.state}.FindStudent(id)
}

// FindFee exposes fee lookup within the transaction scope.
func (tx *transaction) FindFee(id string) (FeeRecord, bool) {
	return transactionView{state: &tx.state}.FindFee(id)
}

// FindAttendance exposes attendance lookup within the transaction scope.
func (tx *transaction) FindAttendance(id string) (AttendanceRecord, bool) {
	return transactionView{state: &tx.state}.FindAttendance(id)
}

// CreateStudent stores a new student within the transaction.
func (tx *transaction) CreateStudent(s Student) (Student, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.students[s.ID]; exists {
		return Student{}, fmt.Errorf("student %q already exists", s.ID)
	}
	if s.Status == "" {
		s.Status = domain.StudentActive
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.students[s.ID] = cloneStudent(s)
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionCreate, After: cloneStudent(s)})
	return cloneStudent(s), nil
}

// UpdateStudent mutates a student using the provided mutator function.
func (tx *transaction) UpdateStudent(id string, mutator func(*Student) error) (Student, error) {
	current, ok := tx.state.students[id]
	if !ok {
		return Student{}, fmt.Errorf("student %q not found", id)
	}
	before := cloneStudent(current)
	current = cloneStudent(current)
	if err := mutator(&current); err != nil {
		return Student{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.students[id] = cloneStudent(current)
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionUpdate, Before: before, After: cloneStudent(current)})
	return cloneStudent(current), nil
}

// DeleteStudent removes a student. Fees and exams must be removed first;
// attendance history keeps the id.
func (tx *transaction) DeleteStudent(id string) error {
	current, ok := tx.state.students[id]
	if !ok {
		return fmt.Errorf("student %q not found", id)
	}
	for _, fee := range tx.state.fees {
		if fee.StudentID == id {
			return fmt.Errorf("student %q still referenced by fee %q", id, fee.ID)
		}
	}
	for _, exam := range tx.state.exams {
		if exam.StudentID == id {
			return fmt.Errorf("student %q still referenced by exam %q", id, exam.ID)
		}
	}
	delete(tx.state.students, id)
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionDelete, Before: cloneStudent(current)})
	return nil
}

// CreateClass stores a new class group.
func (tx *transaction) CreateClass(c ClassGroup) (ClassGroup, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.classes[c.ID]; exists {
		return ClassGroup{}, fmt.Errorf("class %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.classes[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateClass mutates a class group.
func (tx *transaction) UpdateClass(id string, mutator func(*ClassGroup) error) (ClassGroup, error) {
	current, ok := tx.state.classes[id]
	if !ok {
		return ClassGroup{}, fmt.Errorf("class %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return ClassGroup{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.classes[id] = current
	tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteClass removes a class group. Attendance rows are not cascaded.
func (tx *transaction) DeleteClass(id string) error {
	current, ok := tx.state.classes[id]
	if !ok {
		return fmt.Errorf("class %q not found", id)
	}
	delete(tx.state.classes, id)
	tx.recordChange(Change{Entity: domain.EntityClass, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateAttendance stores a new attendance record.
func (tx *transaction) CreateAttendance(a AttendanceRecord) (AttendanceRecord, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.attendance[a.ID]; exists {
		return AttendanceRecord{}, fmt.Errorf("attendance %q already exists", a.ID)
	}
	if a.Status == "" {
		a.Status = domain.AttendanceActive
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	a = cloneAttendance(a)
	tx.state.attendance[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAttendance, Action: domain.ActionCreate, After: cloneAttendance(a)})
	return cloneAttendance(a), nil
}

// UpdateAttendance mutates an attendance record.
func (tx *transaction) UpdateAttendance(id string, mutator func(*AttendanceRecord) error) (AttendanceRecord, error) {
	current, ok := tx.state.attendance[id]
	if !ok {
		return AttendanceRecord{}, fmt.Errorf("attendance %q not found", id)
	}
	before := cloneAttendance(current)
	current = cloneAttendance(current)
	if err := mutator(&current); err != nil {
		return AttendanceRecord{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current = cloneAttendance(current)
	tx.state.attendance[id] = current
	tx.recordChange(Change{Entity: domain.EntityAttendance, Action: domain.ActionUpdate, Before: before, After: cloneAttendance(current)})
	return cloneAttendance(current), nil
}

// DeleteAttendance removes an attendance record.
func (tx *transaction) DeleteAttendance(id string) error {
	current, ok := tx.state.attendance[id]
	if !ok {
		return fmt.Errorf("attendance %q not found", id)
	}
	delete(tx.state.attendance, id)
	tx.recordChange(Change{Entity: domain.EntityAttendance, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateFee stores a new fee record.
func (tx *transaction) CreateFee(f FeeRecord) (FeeRecord, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.fees[f.ID]; exists {
		return FeeRecord{}, fmt.Errorf("fee %q already exists", f.ID)
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.fees[f.ID] = cloneFee(f)
	tx.recordChange(Change{Entity: domain.EntityFee, Action: domain.ActionCreate, After: cloneFee(f)})
	return cloneFee(f), nil
}

// UpdateFee mutates a fee record.
func (tx *transaction) UpdateFee(id string, mutator func(*FeeRecord) error) (FeeRecord, error) {
	current, ok := tx.state.fees[id]
	if !ok {
		return FeeRecord{}, fmt.Errorf("fee %q not found", id)
	}
	before := cloneFee(current)
	current = cloneFee(current)
	if err := mutator(&current); err != nil {
		return FeeRecord{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.fees[id] = cloneFee(current)
	tx.recordChange(Change{Entity: domain.EntityFee, Action: domain.ActionUpdate, Before: before, After: cloneFee(current)})
	return cloneFee(current), nil
}

// DeleteFee removes a fee record.
func (tx *transaction) DeleteFee(id string) error {
	current, ok := tx.state.fees[id]
	if !ok {
		return fmt.Errorf("fee %q not found", id)
	}
	delete(tx.state.fees, id)
	tx.recordChange(Change{Entity: domain.EntityFee, Action: domain.ActionDelete, Before: cloneFee(current)})
	return nil
}

// PutExam creates or replaces an exam record by id.
func (tx *transaction) PutExam(e ExamRecord) (ExamRecord, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	before, exists := tx.state.exams[e.ID]
	e.UpdatedAt = tx.now
	if exists {
		e.CreatedAt = before.CreatedAt
		tx.state.exams[e.ID] = e
		tx.recordChange(Change{Entity: domain.EntityExam, Action: domain.ActionUpdate, Before: before, After: e})
		return e, nil
	}
	e.CreatedAt = tx.now
	tx.state.exams[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityExam, Action: domain.ActionCreate, After: e})
	return e, nil
}

// DeleteExam removes an exam record.
func (tx *transaction) DeleteExam(id string) error {
	current, ok := tx.state.exams[id]
	if !ok {
		return fmt.Errorf("exam %q not found", id)
	}
	delete(tx.state.exams, id)
	tx.recordChange(Change{Entity: domain.EntityExam, Action: domain.ActionDelete, Before: current})
	return nil
}
