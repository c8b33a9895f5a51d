package metrics

import "errors"

// Sentinel errors for the metrics service layer.
var (
	ErrNotFound            = errors.New("metric not found")
	ErrJourneyNotFound     = errors.New("journey not found")
	ErrStageNotFound       = errors.New("stage not found")
	ErrFormulaNotSupported = errors.New("custom metric formulas are not evaluated by this engine")
)
