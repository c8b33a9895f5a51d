package domain

import "time"

// MetricType enumerates what a metric measures.
type MetricType string

const (
	MetricConversionRate MetricType = "conversion_rate"
	MetricContactsCount  MetricType = "contacts_count"
	MetricDuration       MetricType = "duration"
	MetricRevenue        MetricType = "revenue"
	MetricCustom         MetricType = "custom"
)

// Valid reports whether t is a known metric type.
func (t MetricType) Valid() bool {
	switch t {
	case MetricConversionRate, MetricContactsCount, MetricDuration, MetricRevenue, MetricCustom:
		return true
	}
	return false
}

// ComputedInternally returns true for metric types the engine can derive from
// progression data. Revenue and custom values arrive through external writes.
func (t MetricType) ComputedInternally() bool {
	return t == MetricConversionRate || t == MetricContactsCount || t == MetricDuration
}

// AggregationType enumerates how per-stage values roll up.
type AggregationType string

const (
	AggregationSum     AggregationType = "sum"
	AggregationAverage AggregationType = "average"
	AggregationCount   AggregationType = "count"
	AggregationMin     AggregationType = "min"
	AggregationMax     AggregationType = "max"
)

// Valid reports whether a is a known aggregation type.
func (a AggregationType) Valid() bool {
	switch a {
	case AggregationSum, AggregationAverage, AggregationCount, AggregationMin, AggregationMax:
		return true
	}
	return false
}

// Metric is a performance metric declared on a journey. IsSuccess marks the
// journey's north-star metric.
type Metric struct {
	ID          string          `json:"id" db:"id"`
	JourneyID   string          `json:"journey_id" db:"journey_id"`
	Name        string          `json:"name" db:"name"`
	Type        MetricType      `json:"metric_type" db:"metric_type"`
	TargetValue *float64        `json:"target_value" db:"target_value"`
	Aggregation AggregationType `json:"aggregation_type" db:"aggregation_type"`
	Formula     string          `json:"formula,omitempty" db:"formula"`
	IsSuccess   bool            `json:"is_success" db:"is_success"`

	ActualValue      float64    `json:"actual_value" db:"actual_value"`
	LastCalculatedAt *time.Time `json:"last_calculated_at" db:"last_calculated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Populated by Get.
	StageMetrics []StageMetric `json:"stage_metrics,omitempty"`
}

// StageMetric is a per-stage sub-record of a metric.
type StageMetric struct {
	ID          string    `json:"id" db:"id"`
	MetricID    string    `json:"metric_id" db:"metric_id"`
	StageID     string    `json:"stage_id" db:"stage_id"`
	TargetValue *float64  `json:"target_value" db:"target_value"`
	ActualValue float64   `json:"actual_value" db:"actual_value"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}
