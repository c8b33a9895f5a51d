package metrics_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/metrics"
)

const (
	testOrg    = "11111111-1111-1111-1111-111111111111"
	journeyID  = "journey-1"
	signupID   = "stage-signup"
	verifiedID = "stage-verified"
)

type memRepo struct {
	journey      *domain.Journey
	metrics      map[string]*domain.Metric
	stageMetrics map[string]*domain.StageMetric // metricID + "/" + stageID
	snapshot     *domain.AnalyticsSnapshot
	statuses     map[domain.ProgressionStatus]int
	avgHours     float64
	stageStats   map[string]metrics.StageStats
}

func newRepo() *memRepo {
	return &memRepo{
		journey: &domain.Journey{
			ID:             journeyID,
			OrganizationID: testOrg,
			Name:           "Onboarding",
			Active:         true,
			Stages: []domain.Stage{
				{ID: signupID, JourneyID: journeyID, Name: "Signup", Order: 0, IsEntryPoint: true},
				{ID: verifiedID, JourneyID: journeyID, Name: "Verified", Order: 1, IsExitPoint: true},
			},
		},
		metrics:      make(map[string]*domain.Metric),
		stageMetrics: make(map[string]*domain.StageMetric),
		statuses:     make(map[domain.ProgressionStatus]int),
		stageStats:   make(map[string]metrics.StageStats),
	}
}

func (r *memRepo) GetJourney(_ context.Context, orgID, id string) (*domain.Journey, error) {
	if r.journey.ID != id || r.journey.OrganizationID != orgID {
		return nil, metrics.ErrJourneyNotFound
	}
	return r.journey, nil
}

func (r *memRepo) GetStage(_ context.Context, stageID string) (*domain.Stage, error) {
	for _, st := range r.journey.Stages {
		if st.ID == stageID {
			cp := st
			return &cp, nil
		}
	}
	return nil, metrics.ErrStageNotFound
}

func (r *memRepo) GetMetric(_ context.Context, id string) (*domain.Metric, error) {
	m, ok := r.metrics[id]
	if !ok {
		return nil, metrics.ErrNotFound
	}
	cp := *m
	for _, sm := range r.stageMetrics {
		if sm.MetricID == id {
			cp.StageMetrics = append(cp.StageMetrics, *sm)
		}
	}
	return &cp, nil
}

func (r *memRepo) ListMetrics(_ context.Context, journeyID string) ([]domain.Metric, error) {
	var out []domain.Metric
	for _, m := range r.metrics {
		if m.JourneyID == journeyID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memRepo) CreateMetric(_ context.Context, m *domain.Metric) (string, error) {
	cp := *m
	r.metrics[m.ID] = &cp
	return m.ID, nil
}

func (r *memRepo) UpdateMetric(_ context.Context, id string, u metrics.UpdateFields) error {
	m, ok := r.metrics[id]
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
	return nil
}

func (r *memRepo) DeleteMetric(_ context.Context, id string) error {
	if _, ok := r.metrics[id]; !ok {
		return metrics.ErrNotFound
	}
	delete(r.metrics, id)
	for key, sm := range r.stageMetrics {
		if sm.MetricID == id {
			delete(r.stageMetrics, key)
		}
	}
	return nil
}

func (r *memRepo) SetMetricValue(_ context.Context, id string, value float64, at time.Time) error {
	m, ok := r.metrics[id]
	if !ok {
		return metrics.ErrNotFound
	}
	m.ActualValue = value
	m.LastCalculatedAt = &at
	return nil
}

func (r *memRepo) UpsertStageMetric(_ context.Context, sm *domain.StageMetric) error {
	key := sm.MetricID + "/" + sm.StageID
	if existing, ok := r.stageMetrics[key]; ok {
		existing.ActualValue = sm.ActualValue
		existing.LastUpdated = sm.LastUpdated
		if sm.TargetValue != nil {
			existing.TargetValue = sm.TargetValue
		}
		return nil
	}
	cp := *sm
	r.stageMetrics[key] = &cp
	return nil
}

func (r *memRepo) LatestSnapshot(_ context.Context, journeyID string) (*domain.AnalyticsSnapshot, error) {
	return r.snapshot, nil
}

func (r *memRepo) StatusCounts(_ context.Context, journeyID string) (map[domain.ProgressionStatus]int, error) {
	return r.statuses, nil
}

func (r *memRepo) AverageCompletionHours(_ context.Context, journeyID string) (float64, error) {
	return r.avgHours, nil
}

func (r *memRepo) StageVisitStats(_ context.Context, stageID string) (metrics.StageStats, error) {
	return r.stageStats[stageID], nil
}

func floatEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDefine(t *testing.T) {
	repo := newRepo()
	svc := metrics.NewService(repo, nil)

	target := 0.5
	m, err := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name:        "Signup conversion",
		Type:        domain.MetricConversionRate,
		TargetValue: &target,
		IsSuccess:   true,
		StageTargets: []metrics.StageTargetInput{
			{StageID: verifiedID, TargetValue: 0.8},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if m.Aggregation != domain.AggregationAverage {
		t.Fatalf("expected default aggregation average, got %s", m.Aggregation)
	}
	if len(m.StageMetrics) != 1 || *m.StageMetrics[0].TargetValue != 0.8 {
		t.Fatalf("expected one stage target of 0.8, got %+v", m.StageMetrics)
	}

	got, err := svc.Get(context.Background(), testOrg, journeyID, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Signup conversion" || !got.IsSuccess {
		t.Fatalf("unexpected metric: %+v", got)
	}
}

func TestDefineValidation(t *testing.T) {
	svc := metrics.NewService(newRepo(), nil)

	cases := []metrics.DefineInput{
		{Type: domain.MetricConversionRate}, // missing name
		{Name: "m", Type: "velocity"},       // unknown type
		{Name: "m", Type: domain.MetricConversionRate, Aggregation: "median"},
		{Name: "m", Type: domain.MetricConversionRate, Formula: "a+b"}, // formula on non-custom
		{Name: "m", Type: domain.MetricConversionRate, StageTargets: []metrics.StageTargetInput{{StageID: "nope"}}},
	}
	for i, input := range cases {
		if _, err := svc.Define(context.Background(), testOrg, journeyID, input); err == nil {
			t.Fatalf("case %d: expected error, got nil", i)
		}
	}
}

func TestUpdateClearTarget(t *testing.T) {
	repo := newRepo()
	svc := metrics.NewService(repo, nil)

	target := 0.5
	m, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "m", Type: domain.MetricConversionRate, TargetValue: &target,
	})

	err := svc.Update(context.Background(), testOrg, journeyID, m.ID, metrics.UpdateFields{
		SetTargetValue: true,
		TargetValue:    nil,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := svc.Get(context.Background(), testOrg, journeyID, m.ID)
	if got.TargetValue != nil {
		t.Fatalf("expected target cleared, got %v", *got.TargetValue)
	}
}

func TestDelete(t *testing.T) {
	repo := newRepo()
	svc := metrics.NewService(repo, nil)

	m, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "m", Type: domain.MetricConversionRate,
	})
	if err := svc.Delete(context.Background(), testOrg, journeyID, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), testOrg, journeyID, m.ID); !errors.Is(err, metrics.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRecalculateFromSnapshot(t *testing.T) {
	repo := newRepo()
	repo.snapshot = &domain.AnalyticsSnapshot{
		JourneyID:            journeyID,
		TotalContacts:        10,
		CompletedContacts:    4,
		ConversionRate:       0.4,
		AverageDurationHours: 12,
		Stages: []domain.StageSnapshot{
			{StageID: signupID, ConversionRate: 1, ContactsCurrentlyIn: 0, AverageDurationHours: 1},
			{StageID: verifiedID, ConversionRate: 0.4, ContactsCurrentlyIn: 6, AverageDurationHours: 11},
		},
	}
	svc := metrics.NewService(repo, nil)

	conv, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "conversion", Type: domain.MetricConversionRate,
	})
	count, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "in flight", Type: domain.MetricContactsCount,
	})

	list, err := svc.Recalculate(context.Background(), testOrg, journeyID)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 metrics back, got %d", len(list))
	}

	got, _ := svc.Get(context.Background(), testOrg, journeyID, conv.ID)
	if !floatEq(got.ActualValue, 0.4) || got.LastCalculatedAt == nil {
		t.Fatalf("expected conversion 0.4 with timestamp, got %+v", got)
	}
	for _, sm := range got.StageMetrics {
		if sm.StageID == verifiedID && !floatEq(sm.ActualValue, 0.4) {
			t.Fatalf("expected Verified stage conversion 0.4, got %v", sm.ActualValue)
		}
	}

	got, _ = svc.Get(context.Background(), testOrg, journeyID, count.ID)
	if !floatEq(got.ActualValue, 10) {
		t.Fatalf("expected contacts count 10, got %v", got.ActualValue)
	}
}

func TestRecalculateRawFallback(t *testing.T) {
	repo := newRepo() // no snapshot
	repo.statuses = map[domain.ProgressionStatus]int{
		domain.ProgressionActive:    6,
		domain.ProgressionCompleted: 4,
	}
	repo.avgHours = 9
	repo.stageStats[signupID] = metrics.StageStats{Open: 2, Entered: 10, Exited: 8, AvgDurationHours: 1.5}
	svc := metrics.NewService(repo, nil)

	conv, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "conversion", Type: domain.MetricConversionRate,
	})
	dur, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "time to complete", Type: domain.MetricDuration,
	})

	if _, err := svc.Recalculate(context.Background(), testOrg, journeyID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	got, _ := svc.Get(context.Background(), testOrg, journeyID, conv.ID)
	if !floatEq(got.ActualValue, 0.4) {
		t.Fatalf("expected conversion 0.4 from raw counts, got %v", got.ActualValue)
	}
	for _, sm := range got.StageMetrics {
		if sm.StageID == signupID && !floatEq(sm.ActualValue, 0.8) {
			t.Fatalf("expected Signup stage conversion 0.8, got %v", sm.ActualValue)
		}
	}

	got, _ = svc.Get(context.Background(), testOrg, journeyID, dur.ID)
	if !floatEq(got.ActualValue, 9) {
		t.Fatalf("expected average duration 9h, got %v", got.ActualValue)
	}
}

func TestRecalculateSkipsExternalMetrics(t *testing.T) {
	repo := newRepo()
	svc := metrics.NewService(repo, nil)

	rev, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "revenue", Type: domain.MetricRevenue,
	})
	custom, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "score", Type: domain.MetricCustom, Formula: "completed / entered",
	})

	// Seed external values that recalculation must not clobber.
	if err := svc.UpdateStageMetricValue(context.Background(), testOrg, journeyID, rev.ID, signupID, 1234.5); err != nil {
		t.Fatalf("update stage value: %v", err)
	}

	if _, err := svc.Recalculate(context.Background(), testOrg, journeyID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	got, _ := svc.Get(context.Background(), testOrg, journeyID, rev.ID)
	if got.LastCalculatedAt != nil {
		t.Fatal("expected revenue metric untouched by recalculation")
	}
	if len(got.StageMetrics) != 1 || !floatEq(got.StageMetrics[0].ActualValue, 1234.5) {
		t.Fatalf("expected external stage value preserved, got %+v", got.StageMetrics)
	}

	got, _ = svc.Get(context.Background(), testOrg, journeyID, custom.ID)
	if got.LastCalculatedAt != nil {
		t.Fatal("expected custom metric skipped without an evaluator")
	}
}

func TestUpdateStageMetricValueUnknownStage(t *testing.T) {
	svc := metrics.NewService(newRepo(), nil)
	m, _ := svc.Define(context.Background(), testOrg, journeyID, metrics.DefineInput{
		Name: "revenue", Type: domain.MetricRevenue,
	})
	err := svc.UpdateStageMetricValue(context.Background(), testOrg, journeyID, m.ID, "nope", 1)
	if !errors.Is(err, metrics.ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}
