package memory

import (
	"context"
	"sort"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/metrics"
)

// MetricsRepo implements metrics.Repository against the in-memory store.
type MetricsRepo struct{ s *Store }

var _ metrics.Repository = (*MetricsRepo)(nil)

func (r *MetricsRepo) GetJourney(_ context.Context, orgID, journeyID string) (*domain.Journey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j := r.s.journeyWithGraph(orgID, journeyID)
	if j == nil {
		return nil, metrics.ErrJourneyNotFound
	}
	return j, nil
}

func (r *MetricsRepo) GetStage(_ context.Context, stageID string) (*domain.Stage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stages[stageID]
	if !ok {
		return nil, metrics.ErrStageNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *MetricsRepo) GetMetric(_ context.Context, id string) (*domain.Metric, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.metrics[id]
	if !ok {
		return nil, metrics.ErrNotFound
	}
	return r.metricWithStagesLocked(m), nil
}

func (r *MetricsRepo) ListMetrics(_ context.Context, journeyID string) ([]domain.Metric, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Metric
	for _, m := range r.s.metrics {
		if m.JourneyID == journeyID {
			out = append(out, *r.metricWithStagesLocked(m))
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (r *MetricsRepo) CreateMetric(_ context.Context, m *domain.Metric) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *m
	cp.StageMetrics = nil
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.s.metrics[cp.ID] = &cp
	return cp.ID, nil
}

func (r *MetricsRepo) UpdateMetric(_ context.Context, id string, u metrics.UpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.metrics[id]
	if !ok {
		return metrics.ErrNotFound
	}
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.SetTargetValue {
		m.TargetValue = u.TargetValue
	}
	if u.Aggregation != nil {
		m.Aggregation = *u.Aggregation
	}
	if u.Formula != nil {
		m.Formula = *u.Formula
	}
	if u.IsSuccess != nil {
		m.IsSuccess = *u.IsSuccess
	}
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MetricsRepo) DeleteMetric(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.metrics[id]; !ok {
		return metrics.ErrNotFound
	}
	delete(r.s.metrics, id)
	for key, sm := range r.s.stageMetrics {
		if sm.MetricID == id {
			delete(r.s.stageMetrics, key)
		}
	}
	return nil
}

func (r *MetricsRepo) SetMetricValue(_ context.Context, id string, value float64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.metrics[id]
	if !ok {
		return metrics.ErrNotFound
	}
	m.ActualValue = value
	calculatedAt := at
	m.LastCalculatedAt = &calculatedAt
	m.UpdatedAt = at
	return nil
}

func (r *MetricsRepo) UpsertStageMetric(_ context.Context, sm *domain.StageMetric) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := sm.MetricID + "/" + sm.StageID
	if existing, ok := r.s.stageMetrics[key]; ok {
		existing.ActualValue = sm.ActualValue
		existing.LastUpdated = sm.LastUpdated
		if sm.TargetValue != nil {
			existing.TargetValue = sm.TargetValue
		}
		return nil
	}
	cp := *sm
	r.s.stageMetrics[key] = &cp
	return nil
}

func (r *MetricsRepo) LatestSnapshot(_ context.Context, journeyID string) (*domain.AnalyticsSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.AnalyticsSnapshot
	for _, snap := range r.s.snapshots {
		if snap.JourneyID != journeyID {
			continue
		}
		if latest == nil || snap.SnapshotDate.After(latest.SnapshotDate) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	cp.Stages = append([]domain.StageSnapshot(nil), latest.Stages...)
	return &cp, nil
}

func (r *MetricsRepo) StatusCounts(_ context.Context, journeyID string) (map[domain.ProgressionStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[domain.ProgressionStatus]int)
	for _, cj := range r.s.contacts {
		if cj.JourneyID == journeyID {
			counts[cj.Status]++
		}
	}
	return counts, nil
}

func (r *MetricsRepo) AverageCompletionHours(_ context.Context, journeyID string) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var hours float64
	n := 0
	for _, cj := range r.s.contacts {
		if cj.JourneyID != journeyID || cj.Status != domain.ProgressionCompleted || cj.CompletedAt == nil {
			continue
		}
		hours += cj.Duration().Hours()
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return hours / float64(n), nil
}

func (r *MetricsRepo) StageVisitStats(_ context.Context, stageID string) (metrics.StageStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats metrics.StageStats
	var closedHours float64
	for _, v := range r.s.visits {
		if v.StageID != stageID {
			continue
		}
		stats.Entered++
		if v.ExitedAt == nil {
			stats.Open++
			continue
		}
		stats.Exited++
		if v.DurationSeconds != nil {
			closedHours += *v.DurationSeconds / 3600
		} else {
			closedHours += v.ExitedAt.Sub(v.EnteredAt).Hours()
		}
	}
	if stats.Exited > 0 {
		stats.AvgDurationHours = closedHours / float64(stats.Exited)
	}
	return stats, nil
}

// metricWithStagesLocked copies a metric and attaches its stage sub-records.
// Caller holds the lock.
func (r *MetricsRepo) metricWithStagesLocked(m *domain.Metric) *domain.Metric {
	cp := *m
	cp.StageMetrics = nil
	for _, sm := range r.s.stageMetrics {
		if sm.MetricID == m.ID {
			cp.StageMetrics = append(cp.StageMetrics, *sm)
		}
	}
	sort.SliceStable(cp.StageMetrics, func(i, k int) bool {
		return cp.StageMetrics[i].StageID < cp.StageMetrics[k].StageID
	})
	return &cp
}
