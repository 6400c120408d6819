// Package gateway defines the remote table contract the sync path replays
// mutations against, plus row translation and an in-memory implementation.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"academycore/pkg/domain"
)

// Table names a remote collection.
type Table string

// Remote tables.
const (
	TableStudents   Table = "students"
	TableClasses    Table = "classes"
	TableAttendance Table = "attendance"
	TableFees       Table = "fees"
	TableExams      Table = "exams"
)

// Tables lists every remote table in dependency order (parents first).
func Tables() []Table {
	return []Table{TableStudents, TableClasses, TableAttendance, TableFees, TableExams}
}

// Valid reports whether t names a known table.
func (t Table) Valid() bool {
	for _, known := range Tables() {
		if t == known {
			return true
		}
	}
	return false
}

// TableFor maps an entity type to its remote table.
func TableFor(entity domain.EntityType) (Table, bool) {
	switch entity {
	case domain.EntityStudent:
		return TableStudents, true
	case domain.EntityClass:
		return TableClasses, true
	case domain.EntityAttendance:
		return TableAttendance, true
	case domain.EntityFee:
		return TableFees, true
	case domain.EntityExam:
		return TableExams, true
	default:
		return "", false
	}
}

var (
	// ErrUnknownTable is returned for table names outside Tables().
	ErrUnknownTable = errors.New("gateway: unknown table")
	// ErrMissingID is returned when a row carries no id.
	ErrMissingID = errors.New("gateway: row has no id")
	// ErrDuplicate is returned by Insert when the id already exists.
	ErrDuplicate = errors.New("gateway: duplicate id")
)

// Gateway is the remote table store. Upsert is last-writer-wins on id.
type Gateway interface {
	Upsert(ctx context.Context, table Table, row Row) error
	Insert(ctx context.Context, table Table, row Row) error
	Delete(ctx context.Context, table Table, id string) error
	Select(ctx context.Context, table Table) ([]Row, error)
}

// Row is a remote record keyed by snake_case column names.
type Row map[string]any

// ID returns the row's id column, or "".
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a deep copy through JSON.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		out := make(Row, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	var out Row
	_ = json.Unmarshal(raw, &out)
	return out
}

// RowFrom converts an entity (or any JSON-tagged struct) into a Row.
func RowFrom(value any) (Row, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return row, nil
}

// Decode converts a Row back into a typed entity.
func Decode[T any](row Row) (T, error) {
	var out T
	raw, err := json.Marshal(row)
	if err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

// DeleteRow is the minimal payload identifying a row to delete.
func DeleteRow(id string) Row {
	return Row{"id": id}
}

func checkRow(table Table, row Row) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if row.ID() == "" {
		return fmt.Errorf("%w (table %s)", ErrMissingID, table)
	}
	return nil
}
