package core

import (
	"context"
	"fmt"

	"academycore/pkg/domain"
)

// RecordReferenceRule ensures fees and exams point at an existing student.
func RecordReferenceRule() domain.Rule {
	return recordReferenceRule{}
}

type recordReferenceRule struct{}

func (recordReferenceRule) Name() string { return "record_reference" }

func (r recordReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	check := func(entity domain.EntityType, id, studentID string) {
		if studentID == "" {
			res.Violations = append(res.Violations, r.violation(entity, id, fmt.Sprintf("%s %s has no student", entity, id)))
			return
		}
		if _, ok := view.FindStudent(studentID); !ok {
			res.Violations = append(res.Violations, r.violation(entity, id, fmt.Sprintf("%s %s references missing student %s", entity, id, studentID)))
		}
	}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		switch v := change.After.(type) {
		case domain.FeeRecord:
			check(domain.EntityFee, v.ID, v.StudentID)
		case domain.ExamRecord:
			check(domain.EntityExam, v.ID, v.StudentID)
		}
	}
	return res, nil
}

func (r recordReferenceRule) violation(entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
