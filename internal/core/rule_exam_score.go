package core

import (
	"context"
	"fmt"

	"academycore/pkg/domain"
)

// ExamScoreRule warns when a mark exceeds the paper total. The write still goes through.
func ExamScoreRule() domain.Rule {
	return examScoreRule{}
}

type examScoreRule struct{}

func (examScoreRule) Name() string { return "exam_score" }

func (r examScoreRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		exam, ok := change.After.(domain.ExamRecord)
		if !ok || exam.Score <= exam.Total {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("exam %s score %.2f exceeds total %.2f", exam.ID, exam.Score, exam.Total),
			Entity:   domain.EntityExam,
			EntityID: exam.ID,
		})
	}
	return res, nil
}
