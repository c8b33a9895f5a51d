package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marketsage/journey-engine/internal/domain"
)

// Service implements metric management and recalculation. All public methods
// are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo      Repository
	evaluator FormulaEvaluator
}

// NewService creates a metrics service. A nil evaluator installs
// UnimplementedEvaluator, leaving custom metrics to external writes.
func NewService(repo Repository, evaluator FormulaEvaluator) *Service {
	if evaluator == nil {
		evaluator = UnimplementedEvaluator{}
	}
	return &Service{repo: repo, evaluator: evaluator}
}

// Define validates and persists a new metric with optional per-stage targets.
func (s *Service) Define(ctx context.Context, orgID, journeyID string, input DefineInput) (*domain.Metric, error) {
	j, err := s.repo.GetJourney(ctx, orgID, journeyID)
	if err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("unknown metric type %q", input.Type)
	}
	agg := input.Aggregation
	if agg == "" {
		agg = domain.AggregationAverage
	}
	if !agg.Valid() {
		return nil, fmt.Errorf("unknown aggregation type %q", input.Aggregation)
	}
	if input.Formula != "" && input.Type != domain.MetricCustom {
		return nil, fmt.Errorf("formula is only allowed on custom metrics")
	}

	stageIDs := make(map[string]bool, len(j.Stages))
	for _, st := range j.Stages {
		stageIDs[st.ID] = true
	}

	m := &domain.Metric{
		ID:          uuid.New().String(),
		JourneyID:   journeyID,
		Name:        input.Name,
		Type:        input.Type,
		TargetValue: input.TargetValue,
		Aggregation: agg,
		Formula:     input.Formula,
		IsSuccess:   input.IsSuccess,
	}
	id, err := s.repo.CreateMetric(ctx, m)
	if err != nil {
		return nil, err
	}
	m.ID = id

	now := time.Now().UTC()
	for _, st := range input.StageTargets {
		if !stageIDs[st.StageID] {
			return nil, ErrStageNotFound
		}
		target := st.TargetValue
		sm := &domain.StageMetric{
			ID:          uuid.New().String(),
			MetricID:    m.ID,
			StageID:     st.StageID,
			TargetValue: &target,
			LastUpdated: now,
		}
		if err := s.repo.UpsertStageMetric(ctx, sm); err != nil {
			return nil, fmt.Errorf("set stage target: %w", err)
		}
		m.StageMetrics = append(m.StageMetrics, *sm)
	}
	return m, nil
}

// Get returns one metric with its stage sub-records.
func (s *Service) Get(ctx context.Context, orgID, journeyID, metricID string) (*domain.Metric, error) {
	return s.metricInJourney(ctx, orgID, journeyID, metricID)
}

// List returns every metric declared on the journey.
func (s *Service) List(ctx context.Context, orgID, journeyID string) ([]domain.Metric, error) {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return nil, err
	}
	return s.repo.ListMetrics(ctx, journeyID)
}

// Update modifies mutable metric fields.
func (s *Service) Update(ctx context.Context, orgID, journeyID, metricID string, u UpdateFields) error {
	if u.Aggregation != nil && !u.Aggregation.Valid() {
		return fmt.Errorf("unknown aggregation type %q", *u.Aggregation)
	}
	if _, err := s.metricInJourney(ctx, orgID, journeyID, metricID); err != nil {
		return err
	}
	return s.repo.UpdateMetric(ctx, metricID, u)
}

// Delete removes a metric and its stage sub-records.
func (s *Service) Delete(ctx context.Context, orgID, journeyID, metricID string) error {
	if _, err := s.metricInJourney(ctx, orgID, journeyID, metricID); err != nil {
		return err
	}
	return s.repo.DeleteMetric(ctx, metricID)
}

// UpdateStageMetricValue is the external write path for metric values the
// engine does not compute itself (revenue, custom).
func (s *Service) UpdateStageMetricValue(ctx context.Context, orgID, journeyID, metricID, stageID string, actualValue float64) error {
	if _, err := s.metricInJourney(ctx, orgID, journeyID, metricID); err != nil {
		return err
	}
	stage, err := s.repo.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	if stage.JourneyID != journeyID {
		return ErrStageNotFound
	}
	return s.repo.UpsertStageMetric(ctx, &domain.StageMetric{
		ID:          uuid.New().String(),
		MetricID:    metricID,
		StageID:     stageID,
		ActualValue: actualValue,
		LastUpdated: time.Now().UTC(),
	})
}

// Recalculate recomputes every internally-derivable metric on the journey.
// Conversion-rate and duration metrics reuse the latest analytics snapshot
// when one exists and fall back to raw progression data otherwise. Revenue
// metrics are left to external writes; custom metrics go through the formula
// evaluator.
func (s *Service) Recalculate(ctx context.Context, orgID, journeyID string) ([]domain.Metric, error) {
	j, err := s.repo.GetJourney(ctx, orgID, journeyID)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListMetrics(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.LatestSnapshot(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	now := time.Now().UTC()
	for i := range list {
		m := &list[i]

		value, computed, err := s.journeyValue(ctx, journeyID, *m, snap)
		if err != nil {
			return nil, err
		}
		if computed {
			if err := s.repo.SetMetricValue(ctx, m.ID, value, now); err != nil {
				return nil, fmt.Errorf("set metric value: %w", err)
			}
			m.ActualValue = value
			m.LastCalculatedAt = &now
		}

		if !m.Type.ComputedInternally() {
			continue
		}
		for _, st := range j.Stages {
			sv, err := s.stageValue(ctx, *m, st.ID, snap)
			if err != nil {
				return nil, err
			}
			sm := &domain.StageMetric{
				ID:          uuid.New().String(),
				MetricID:    m.ID,
				StageID:     st.ID,
				ActualValue: sv,
				LastUpdated: now,
			}
			if err := s.repo.UpsertStageMetric(ctx, sm); err != nil {
				return nil, fmt.Errorf("upsert stage metric: %w", err)
			}
		}
	}
	return list, nil
}

// journeyValue computes the journey-level value for one metric. computed is
// false when the metric's value is externally owned.
func (s *Service) journeyValue(ctx context.Context, journeyID string, m domain.Metric, snap *domain.AnalyticsSnapshot) (float64, bool, error) {
	switch m.Type {
	case domain.MetricConversionRate:
		if snap != nil {
			return snap.ConversionRate, true, nil
		}
		counts, err := s.repo.StatusCounts(ctx, journeyID)
		if err != nil {
			return 0, false, fmt.Errorf("status counts: %w", err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if total == 0 {
			return 0, true, nil
		}
		return float64(counts[domain.ProgressionCompleted]) / float64(total), true, nil

	case domain.MetricContactsCount:
		if snap != nil {
			return float64(snap.TotalContacts), true, nil
		}
		counts, err := s.repo.StatusCounts(ctx, journeyID)
		if err != nil {
			return 0, false, fmt.Errorf("status counts: %w", err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		return float64(total), true, nil

	case domain.MetricDuration:
		if snap != nil {
			return snap.AverageDurationHours, true, nil
		}
		avg, err := s.repo.AverageCompletionHours(ctx, journeyID)
		if err != nil {
			return 0, false, fmt.Errorf("average completion: %w", err)
		}
		return avg, true, nil

	case domain.MetricCustom:
		value, err := s.evaluator.Evaluate(ctx, journeyID, m)
		if errors.Is(err, ErrFormulaNotSupported) {
			return 0, false, nil
		}
		if err != nil {
			log.Printf("[metrics.Service] formula evaluation failed for %s: %v", m.ID, err)
			return 0, false, nil
		}
		return value, true, nil
	}

	// Revenue: externally supplied.
	return 0, false, nil
}

// stageValue computes the per-stage value for an internally-derived metric.
func (s *Service) stageValue(ctx context.Context, m domain.Metric, stageID string, snap *domain.AnalyticsSnapshot) (float64, error) {
	if snap != nil {
		for _, ss := range snap.Stages {
			if ss.StageID != stageID {
				continue
			}
			switch m.Type {
			case domain.MetricConversionRate:
				return ss.ConversionRate, nil
			case domain.MetricContactsCount:
				return float64(ss.ContactsCurrentlyIn), nil
			case domain.MetricDuration:
				return ss.AverageDurationHours, nil
			}
		}
	}

	stats, err := s.repo.StageVisitStats(ctx, stageID)
	if err != nil {
		return 0, fmt.Errorf("stage visit stats: %w", err)
	}
	switch m.Type {
	case domain.MetricConversionRate:
		if stats.Entered == 0 {
			return 0, nil
		}
		return float64(stats.Exited) / float64(stats.Entered), nil
	case domain.MetricContactsCount:
		return float64(stats.Open), nil
	case domain.MetricDuration:
		return stats.AvgDurationHours, nil
	}
	return 0, nil
}

func (s *Service) metricInJourney(ctx context.Context, orgID, journeyID, metricID string) (*domain.Metric, error) {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return nil, err
	}
	m, err := s.repo.GetMetric(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if m.JourneyID != journeyID {
		return nil, ErrNotFound
	}
	return m, nil
}

// DefineInput holds the fields for declaring a metric.
type DefineInput struct {
	Name         string                 `json:"name"`
	Type         domain.MetricType      `json:"metric_type"`
	TargetValue  *float64               `json:"target_value"`
	Aggregation  domain.AggregationType `json:"aggregation_type"`
	Formula      string                 `json:"formula"`
	IsSuccess    bool                   `json:"is_success"`
	StageTargets []StageTargetInput     `json:"stage_targets"`
}

// StageTargetInput sets a per-stage target at definition time.
type StageTargetInput struct {
	StageID     string  `json:"stage_id"`
	TargetValue float64 `json:"target_value"`
}
