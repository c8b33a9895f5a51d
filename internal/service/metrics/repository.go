package metrics

import (
	"context"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
)

// Repository defines the data access contract for metric management.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetJourney returns a journey with stages. Returns ErrJourneyNotFound
	// if missing.
	GetJourney(ctx context.Context, orgID, journeyID string) (*domain.Journey, error)

	// GetStage returns a stage by id. Returns ErrStageNotFound if missing.
	GetStage(ctx context.Context, stageID string) (*domain.Stage, error)

	// GetMetric returns a metric with its stage sub-records. Returns
	// ErrNotFound if missing.
	GetMetric(ctx context.Context, id string) (*domain.Metric, error)

	// ListMetrics returns every metric declared on the journey.
	ListMetrics(ctx context.Context, journeyID string) ([]domain.Metric, error)

	// CreateMetric inserts a metric.
	CreateMetric(ctx context.Context, m *domain.Metric) (string, error)

	// UpdateMetric applies non-nil fields. Returns ErrNotFound if missing.
	UpdateMetric(ctx context.Context, id string, u UpdateFields) error

	// DeleteMetric removes a metric and its stage sub-records.
	DeleteMetric(ctx context.Context, id string) error

	// SetMetricValue writes the journey-level computed value.
	SetMetricValue(ctx context.Context, id string, value float64, at time.Time) error

	// UpsertStageMetric writes a per-stage sub-record keyed
	// (metric, stage).
	UpsertStageMetric(ctx context.Context, sm *domain.StageMetric) error

	// LatestSnapshot returns the journey's most recent analytics snapshot.
	// A nil snapshot with nil error means none exists yet.
	LatestSnapshot(ctx context.Context, journeyID string) (*domain.AnalyticsSnapshot, error)

	// StatusCounts returns the number of contact journeys per status.
	StatusCounts(ctx context.Context, journeyID string) (map[domain.ProgressionStatus]int, error)

	// AverageCompletionHours returns the mean enrollment-to-completion time
	// over completed journeys, 0 when none completed.
	AverageCompletionHours(ctx context.Context, journeyID string) (float64, error)

	// StageVisitStats returns open/entered/exited visit counts and the mean
	// closed-visit duration in hours for one stage.
	StageVisitStats(ctx context.Context, stageID string) (StageStats, error)
}

// StageStats aggregates one stage's visit history.
type StageStats struct {
	Open             int
	Entered          int
	Exited           int
	AvgDurationHours float64
}

// UpdateFields holds the mutable metric fields. Nil fields are not applied.
type UpdateFields struct {
	Name           *string
	TargetValue    *float64
	SetTargetValue bool
	Aggregation    *domain.AggregationType
	Formula        *string
	IsSuccess      *bool
}
