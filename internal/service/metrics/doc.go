// Package metrics manages metric declarations on journeys and recomputes
// their values from progression data.
//
// Conversion-rate, contacts-count, and duration metrics are derived
// internally, reusing the latest analytics snapshot when one exists. Revenue
// and custom metrics are supplied externally through UpdateStageMetricValue;
// custom formulas are delegated to a pluggable FormulaEvaluator.
//
// Repository implementations live in repository/postgres/ and
// repository/memory/.
package metrics
