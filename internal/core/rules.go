package core

import "academycore/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in academy policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(FeeCycleUniqueRule())
	engine.Register(RecordReferenceRule())
	engine.Register(ExamScoreRule())
	return engine
}
