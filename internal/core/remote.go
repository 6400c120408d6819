package core

import (
	"context"
	"fmt"
	"time"

	"academycore/internal/gateway"
)

// RefreshFromRemote replaces the local snapshot with the remote tables
// (last writer wins). It is refused while offline edits are still queued.
func (s *Service) RefreshFromRemote(ctx context.Context) (Collections, error) {
	gw := s.sync.Gateway()
	if gw == nil {
		return Collections{}, ErrNoRemote
	}
	if n := s.sync.Pending(); n > 0 {
		return Collections{}, fmt.Errorf("%w (%d queued)", ErrPendingSync, n)
	}
	started := time.Now()
	c, err := fetchAll(ctx, gw)
	if err == nil {
		err = s.store.ReplaceAll(ctx, c)
	}
	s.observe(ctx, "remote.refresh", started, err)
	if err != nil {
		return Collections{}, fmt.Errorf("refresh from remote: %w", err)
	}
	return s.store.Collections(), nil
}

func fetchAll(ctx context.Context, gw gateway.Gateway) (Collections, error) {
	var c Collections
	var err error
	if c.Students, err = fetchTable[Student](ctx, gw, gateway.TableStudents); err != nil {
		return c, err
	}
	if c.Classes, err = fetchTable[ClassGroup](ctx, gw, gateway.TableClasses); err != nil {
		return c, err
	}
	if c.Attendance, err = fetchTable[AttendanceRecord](ctx, gw, gateway.TableAttendance); err != nil {
		return c, err
	}
	if c.Fees, err = fetchTable[FeeRecord](ctx, gw, gateway.TableFees); err != nil {
		return c, err
	}
	if c.Exams, err = fetchTable[ExamRecord](ctx, gw, gateway.TableExams); err != nil {
		return c, err
	}
	return c, nil
}

func fetchTable[T any](ctx context.Context, gw gateway.Gateway, table gateway.Table) ([]T, error) {
	rows, err := gw.Select(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := gateway.Decode[T](row)
		if err != nil {
			return nil, fmt.Errorf("%s row %s: %w", table, row.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}
