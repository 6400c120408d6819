package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Call records one gateway invocation.
type Call struct {
	Method string
	Table  Table
	ID     string
}

// Memory is an in-process Gateway. Failures can be injected per call or
// for every call until cleared.
type Memory struct {
	mu       sync.Mutex
	tables   map[Table]map[string]Row
	calls    []Call
	failAll  error
	failNext []error
	failIDs  map[string]error
}

// NewMemory constructs an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		tables:  make(map[Table]map[string]Row),
		failIDs: make(map[string]error),
	}
}

// FailAll makes every call return err until FailAll(nil).
func (m *Memory) FailAll(err error) {
	m.mu.Lock()
	m.failAll = err
	m.mu.Unlock()
}

// FailNext queues errors returned by the next calls, one per call.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	m.failNext = append(m.failNext, errs...)
	m.mu.Unlock()
}

// FailID makes writes for the given row id fail with err (nil clears).
func (m *Memory) FailID(id string, err error) {
	m.mu.Lock()
	if err == nil {
		delete(m.failIDs, id)
	} else {
		m.failIDs[id] = err
	}
	m.mu.Unlock()
}

// Calls returns the recorded invocations in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Rows returns a copy of a table's rows ordered by id.
func (m *Memory) Rows(table Table) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(table)
}

// Get returns one row.
func (m *Memory) Get(table Table, id string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tables[table][id]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Ping implements a connectivity probe honouring FailAll.
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failAll
}

func (m *Memory) Upsert(ctx context.Context, table Table, row Row) error {
	if err := m.begin(ctx, "upsert", table, row.ID()); err != nil {
		return err
	}
	if err := checkRow(table, row); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableLocked(table)[row.ID()] = row.Clone()
	return nil
}

func (m *Memory) Insert(ctx context.Context, table Table, row Row) error {
	if err := m.begin(ctx, "insert", table, row.ID()); err != nil {
		return err
	}
	if err := checkRow(table, row); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tableLocked(table)
	if _, exists := rows[row.ID()]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, table, row.ID())
	}
	rows[row.ID()] = row.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, table Table, id string) error {
	if err := m.begin(ctx, "delete", table, id); err != nil {
		return err
	}
	if !table.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tableLocked(table), id)
	return nil
}

func (m *Memory) Select(ctx context.Context, table Table) ([]Row, error) {
	if err := m.begin(ctx, "select", table, ""); err != nil {
		return nil, err
	}
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(table), nil
}

func (m *Memory) begin(ctx context.Context, method string, table Table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Table: table, ID: id})
	if m.failAll != nil {
		return m.failAll
	}
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		if err != nil {
			return err
		}
	}
	if id != "" {
		if err, ok := m.failIDs[id]; ok {
			return err
		}
	}
	return nil
}

func (m *Memory) tableLocked(table Table) map[string]Row {
	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]Row)
		m.tables[table] = rows
	}
	return rows
}

func (m *Memory) sortedLocked(table Table) []Row {
	rows := m.tables[table]
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, rows[id].Clone())
	}
	return out
}

var _ Gateway = (*Memory)(nil)
