package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/analytics"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/metrics"
)

// MetricsRepo implements metrics.Repository against PostgreSQL.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

func (r *MetricsRepo) GetJourney(ctx context.Context, orgID, journeyID string) (*domain.Journey, error) {
	j, err := NewJourneyRepo(r.db).GetJourney(ctx, orgID, journeyID)
	if errors.Is(err, journey.ErrNotFound) {
		return nil, metrics.ErrJourneyNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *MetricsRepo) GetStage(ctx context.Context, stageID string) (*domain.Stage, error) {
	s, err := NewJourneyRepo(r.db).GetStage(ctx, stageID)
	if errors.Is(err, journey.ErrStageNotFound) {
		return nil, metrics.ErrStageNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *MetricsRepo) GetMetric(ctx context.Context, id string) (*domain.Metric, error) {
	m := &domain.Metric{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, name, metric_type, target_value,
		       aggregation_type, COALESCE(formula,''), is_success,
		       actual_value, last_calculated_at, created_at, updated_at
		FROM journey_metrics
		WHERE id = $1
	`, id).Scan(
		&m.ID, &m.JourneyID, &m.Name, &m.Type, &m.TargetValue,
		&m.Aggregation, &m.Formula, &m.IsSuccess,
		&m.ActualValue, &m.LastCalculatedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, metrics.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get metric", err)
	}
	if m.StageMetrics, err = r.listStageMetrics(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MetricsRepo) listStageMetrics(ctx context.Context, metricID string) ([]domain.StageMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, metric_id, stage_id, target_value, actual_value, last_updated
		FROM journey_stage_metrics
		WHERE metric_id = $1
		ORDER BY stage_id
	`, metricID)
	if err != nil {
		return nil, storeErr("list stage metrics", err)
	}
	defer rows.Close()

	var out []domain.StageMetric
	for rows.Next() {
		var sm domain.StageMetric
		if err := rows.Scan(&sm.ID, &sm.MetricID, &sm.StageID,
			&sm.TargetValue, &sm.ActualValue, &sm.LastUpdated); err != nil {
			return nil, storeErr("scan stage metric", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (r *MetricsRepo) ListMetrics(ctx context.Context, journeyID string) ([]domain.Metric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, journey_id, name, metric_type, target_value,
		       aggregation_type, COALESCE(formula,''), is_success,
		       actual_value, last_calculated_at, created_at, updated_at
		FROM journey_metrics
		WHERE journey_id = $1
		ORDER BY created_at
	`, journeyID)
	if err != nil {
		return nil, storeErr("list metrics", err)
	}
	defer rows.Close()

	var out []domain.Metric
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(
			&m.ID, &m.JourneyID, &m.Name, &m.Type, &m.TargetValue,
			&m.Aggregation, &m.Formula, &m.IsSuccess,
			&m.ActualValue, &m.LastCalculatedAt, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, storeErr("scan metric", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].StageMetrics, err = r.listStageMetrics(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *MetricsRepo) CreateMetric(ctx context.Context, m *domain.Metric) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journey_metrics
			(id, journey_id, name, metric_type, target_value, aggregation_type,
			 formula, is_success, actual_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, 0, NOW(), NOW())
	`, m.ID, m.JourneyID, m.Name, m.Type, m.TargetValue,
		m.Aggregation, m.Formula, m.IsSuccess)
	if err != nil {
		return "", storeErr("create metric", err)
	}
	return m.ID, nil
}

func (r *MetricsRepo) UpdateMetric(ctx context.Context, id string, u metrics.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.SetTargetValue {
		add("target_value", u.TargetValue)
	}
	if u.Aggregation != nil {
		add("aggregation_type", *u.Aggregation)
	}
	if u.Formula != nil {
		add("formula", *u.Formula)
	}
	if u.IsSuccess != nil {
		add("is_success", *u.IsSuccess)
	}
	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE journey_metrics SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storeErr("update metric", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return metrics.ErrNotFound
	}
	return nil
}

func (r *MetricsRepo) DeleteMetric(ctx context.Context, id string) error {
	// Stage sub-records cascade via foreign keys.
	res, err := r.db.ExecContext(ctx, `DELETE FROM journey_metrics WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete metric", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return metrics.ErrNotFound
	}
	return nil
}

func (r *MetricsRepo) SetMetricValue(ctx context.Context, id string, value float64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE journey_metrics
		SET actual_value = $1, last_calculated_at = $2, updated_at = $2
		WHERE id = $3
	`, value, at, id)
	if err != nil {
		return storeErr("set metric value", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return metrics.ErrNotFound
	}
	return nil
}

func (r *MetricsRepo) UpsertStageMetric(ctx context.Context, sm *domain.StageMetric) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journey_stage_metrics
			(id, metric_id, stage_id, target_value, actual_value, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (metric_id, stage_id) DO UPDATE SET
			target_value = COALESCE(EXCLUDED.target_value, journey_stage_metrics.target_value),
			actual_value = EXCLUDED.actual_value,
			last_updated = EXCLUDED.last_updated
	`, sm.ID, sm.MetricID, sm.StageID, sm.TargetValue, sm.ActualValue, sm.LastUpdated)
	if err != nil {
		return storeErr("upsert stage metric", err)
	}
	return nil
}

func (r *MetricsRepo) LatestSnapshot(ctx context.Context, journeyID string) (*domain.AnalyticsSnapshot, error) {
	snap, err := NewAnalyticsRepo(r.db).LatestSnapshot(ctx, journeyID)
	if errors.Is(err, analytics.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *MetricsRepo) StatusCounts(ctx context.Context, journeyID string) (map[domain.ProgressionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM contact_journeys
		WHERE journey_id = $1
		GROUP BY status
	`, journeyID)
	if err != nil {
		return nil, storeErr("status counts", err)
	}
	defer rows.Close()

	counts := make(map[domain.ProgressionStatus]int)
	for rows.Next() {
		var status domain.ProgressionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storeErr("scan status count", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *MetricsRepo) AverageCompletionHours(ctx context.Context, journeyID string) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - started_at)) / 3600)
		FROM contact_journeys
		WHERE journey_id = $1 AND status = 'completed' AND completed_at IS NOT NULL
	`, journeyID).Scan(&avg)
	if err != nil {
		return 0, storeErr("average completion hours", err)
	}
	return avg.Float64, nil
}

func (r *MetricsRepo) StageVisitStats(ctx context.Context, stageID string) (metrics.StageStats, error) {
	var stats metrics.StageStats
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE exited_at IS NULL),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE exited_at IS NOT NULL),
		       AVG(duration_seconds / 3600) FILTER (WHERE exited_at IS NOT NULL)
		FROM stage_visits
		WHERE stage_id = $1
	`, stageID).Scan(&stats.Open, &stats.Entered, &stats.Exited, &avg)
	if err != nil {
		return stats, storeErr("stage visit stats", err)
	}
	stats.AvgDurationHours = avg.Float64
	return stats, nil
}
