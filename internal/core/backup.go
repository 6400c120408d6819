package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"academycore/internal/calc"
	"academycore/internal/syncer"
)

const backupVersion = 1

// Backup is the portable JSON document written by ExportBackup.
type Backup struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Students   []Student          `json:"students"`
	Classes    []ClassGroup       `json:"classes"`
	Attendance []AttendanceRecord `json:"attendance"`
	Fees       []FeeRecord        `json:"fees"`
	Exams      []ExamRecord       `json:"exams"`
}

func (b Backup) collections() Collections {
	return Collections{Students: b.Students, Classes: b.Classes, Attendance: b.Attendance, Fees: b.Fees, Exams: b.Exams}
}

// ExportBackup writes every collection to w.
func (s *Service) ExportBackup(w io.Writer) error {
	c := s.store.Collections()
	doc := Backup{
		Version:    backupVersion,
		ExportedAt: s.now(),
		Students:   c.Students,
		Classes:    c.Classes,
		Attendance: c.Attendance,
		Fees:       c.Fees,
		Exams:      c.Exams,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// ImportBackup validates a backup completely, then replaces the local
// snapshot and replicates every row. Nothing changes when validation fails.
func (s *Service) ImportBackup(ctx context.Context, r io.Reader) (Collections, error) {
	started := time.Now()
	var doc Backup
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		s.observe(ctx, "backup.import", started, err)
		return Collections{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if doc.Version > backupVersion {
		return Collections{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidBackup, doc.Version)
	}
	if err := checkBackup(&doc); err != nil {
		s.observe(ctx, "backup.import", started, err)
		return Collections{}, err
	}
	c := doc.collections()
	if err := s.store.ReplaceAll(ctx, c); err != nil {
		s.observe(ctx, "backup.import", started, err)
		return Collections{}, fmt.Errorf("replace collections: %w", err)
	}
	s.observe(ctx, "backup.import", started, nil)
	s.replicateAll(ctx, s.store.Collections())
	s.logger.Info("backup imported", "students", len(c.Students), "fees", len(c.Fees), "attendance", len(c.Attendance))
	return s.store.Collections(), nil
}

func checkBackup(doc *Backup) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidBackup, fmt.Sprintf(format, args...))
	}
	students := make(map[string]Student, len(doc.Students))
	for i, st := range doc.Students {
		if st.ID == "" {
			return fail("student #%d has no id", i)
		}
		if _, dup := students[st.ID]; dup {
			return fail("duplicate student %s", st.ID)
		}
		if st.Status == "" {
			doc.Students[i].Status = StudentActive
			st.Status = StudentActive
		}
		if err := validateEntity(EntityStudent, st); err != nil {
			return fail("student %s: %v", st.ID, err)
		}
		students[st.ID] = st
	}
	ids := map[string]struct{}{}
	unique := func(kind, id string) error {
		if id == "" {
			return fail("%s without id", kind)
		}
		key := kind + "/" + id
		if _, dup := ids[key]; dup {
			return fail("duplicate %s %s", kind, id)
		}
		ids[key] = struct{}{}
		return nil
	}
	for _, c := range doc.Classes {
		if err := unique("class", c.ID); err != nil {
			return err
		}
	}
	for i, a := range doc.Attendance {
		if err := unique("attendance", a.ID); err != nil {
			return err
		}
		if a.Date.IsZero() {
			return fail("attendance %s has no date", a.ID)
		}
		if a.Status == "" {
			doc.Attendance[i].Status = AttendanceActive
		}
	}
	for i, f := range doc.Fees {
		if err := unique("fee", f.ID); err != nil {
			return err
		}
		st, ok := students[f.StudentID]
		if !ok {
			return fail("fee %s references missing student %s", f.ID, f.StudentID)
		}
		if f.Date.IsZero() {
			return fail("fee %s has no date", f.ID)
		}
		next := calc.StoredNextDue(st, f)
		doc.Fees[i].NextDueDate = &next
	}
	for _, e := range doc.Exams {
		if err := unique("exam", e.ID); err != nil {
			return err
		}
		if _, ok := students[e.StudentID]; !ok {
			return fail("exam %s references missing student %s", e.ID, e.StudentID)
		}
	}
	return nil
}

// replicateAll upserts every row, parents first.
func (s *Service) replicateAll(ctx context.Context, c Collections) {
	var batch []syncer.Mutation
	add := func(entity EntityType, value any) {
		m, err := upsertMutation(entity, value)
		if err != nil {
			s.logger.Error("encode change", "entity", entity, "err", err)
			return
		}
		batch = append(batch, m)
	}
	for _, v := range c.Students {
		add(EntityStudent, v)
	}
	for _, v := range c.Classes {
		add(EntityClass, v)
	}
	for _, v := range c.Attendance {
		add(EntityAttendance, v)
	}
	for _, v := range c.Fees {
		add(EntityFee, v)
	}
	for _, v := range c.Exams {
		add(EntityExam, v)
	}
	s.replicate(ctx, batch...)
}
