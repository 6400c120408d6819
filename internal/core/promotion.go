package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"academycore/internal/syncer"
)

// PromotionMarker names the marker guarding the promotion for year.
func PromotionMarker(year int) string {
	return fmt.Sprintf("promoted_%d", year)
}

// PromoteGrades moves every active student with a numeric grade up one
// grade, once per year. already is true when the year was promoted before.
// The marker is claimed before any grade moves, so a failed marker write
// leaves every grade untouched and a later retry promotes exactly once.
func (s *Service) PromoteGrades(ctx context.Context, year int) (promoted int, already bool, err error) {
	if s.markers == nil {
		return 0, false, fmt.Errorf("promotion markers: %w", ErrFeatureDisabled)
	}
	marker := PromotionMarker(year)
	done, err := s.markers.HasMarker(ctx, marker)
	if err != nil {
		return 0, false, fmt.Errorf("check %s: %w", marker, err)
	}
	if done {
		return 0, true, nil
	}
	if err := s.markers.SetMarker(ctx, marker); err != nil {
		return 0, false, fmt.Errorf("set %s: %w", marker, err)
	}
	var updated []Student
	_, err = s.run(ctx, "student.promote", func(tx Transaction) error {
		for _, st := range tx.Snapshot().ListStudents() {
			if st.IsSuspended() {
				continue
			}
			grade, err := strconv.Atoi(strings.TrimSpace(st.Grade))
			if err != nil {
				continue
			}
			next, err := tx.UpdateStudent(st.ID, func(p *Student) error {
				p.Grade = strconv.Itoa(grade + 1)
				return nil
			})
			if err != nil {
				return err
			}
			updated = append(updated, next)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("promotion failed after claiming the year", "marker", marker, "err", err)
		return 0, false, err
	}
	var batch []syncer.Mutation
	for _, st := range updated {
		m, err := upsertMutation(EntityStudent, st)
		if err != nil {
			s.logger.Error("encode change", "entity", EntityStudent, "err", err)
			continue
		}
		batch = append(batch, m)
	}
	s.replicate(ctx, batch...)
	s.logger.Info("grades promoted", "year", year, "students", len(updated))
	return len(updated), false, nil
}
