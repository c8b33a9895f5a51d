package metrics

import (
	"context"

	"github.com/marketsage/journey-engine/internal/domain"
)

// FormulaEvaluator computes the value of a custom metric formula. The engine
// stores formulas verbatim and calls out here during recalculation; formula
// syntax is owned by the implementation.
type FormulaEvaluator interface {
	Evaluate(ctx context.Context, journeyID string, m domain.Metric) (float64, error)
}

// UnimplementedEvaluator rejects every formula. Custom metric values then
// come exclusively from external writes via UpdateStageMetricValue.
type UnimplementedEvaluator struct{}

// Evaluate implements FormulaEvaluator.
func (UnimplementedEvaluator) Evaluate(context.Context, string, domain.Metric) (float64, error) {
	return 0, ErrFormulaNotSupported
}
