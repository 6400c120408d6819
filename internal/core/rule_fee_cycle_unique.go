package core

import (
	"context"
	"fmt"

	"academycore/internal/calc"
	"academycore/pkg/domain"
)

// FeeCycleUniqueRule blocks a second payment for a billing month that another
// record of the same student already covers. Editing a record onto its own
// month is allowed.
func FeeCycleUniqueRule() domain.Rule {
	return feeCycleUniqueRule{}
}

type feeCycleUniqueRule struct{}

func (feeCycleUniqueRule) Name() string { return "fee_cycle_unique" }

func (r feeCycleUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var fees []domain.FeeRecord
	for _, change := range changes {
		if change.Entity != domain.EntityFee || change.After == nil {
			continue
		}
		fee, ok := change.After.(domain.FeeRecord)
		if !ok {
			continue
		}
		if fees == nil {
			fees = view.ListFees()
		}
		month, _ := calc.CycleAnchor(fee)
		if err := calc.CheckDuplicateCycle(fees, fee.StudentID, month, fee.ID); err != nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("fee %s for student %s: %v", fee.ID, fee.StudentID, err),
				Entity:   domain.EntityFee,
				EntityID: fee.ID,
			})
		}
	}
	return res, nil
}
