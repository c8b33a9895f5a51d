package memory

import (
	"context"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/analytics"
)

// AnalyticsRepo implements analytics.Repository against the in-memory store.
type AnalyticsRepo struct{ s *Store }

var _ analytics.Repository = (*AnalyticsRepo)(nil)

func (r *AnalyticsRepo) GetJourney(_ context.Context, orgID, journeyID string) (*domain.Journey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j := r.s.journeyWithGraph(orgID, journeyID)
	if j == nil {
		return nil, analytics.ErrNotFound
	}
	return j, nil
}

func (r *AnalyticsRepo) ListContactJourneys(_ context.Context, journeyID string) ([]domain.ContactJourney, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ContactJourney
	for _, cj := range r.s.contacts {
		if cj.JourneyID == journeyID {
			out = append(out, *cj)
		}
	}
	return out, nil
}

func (r *AnalyticsRepo) ListJourneyVisits(_ context.Context, journeyID string) ([]domain.StageVisit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.StageVisit
	for _, v := range r.s.visits {
		cj, ok := r.s.contacts[v.ContactJourneyID]
		if ok && cj.JourneyID == journeyID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *AnalyticsRepo) UpsertSnapshot(_ context.Context, snap *domain.AnalyticsSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *snap
	cp.Stages = append([]domain.StageSnapshot(nil), snap.Stages...)
	r.s.snapshots[snapshotKey(cp.JourneyID, cp.SnapshotDate)] = &cp
	return nil
}

func (r *AnalyticsRepo) GetSnapshot(_ context.Context, journeyID string, date time.Time) (*domain.AnalyticsSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.snapshots[snapshotKey(journeyID, date)]
	if !ok {
		return nil, analytics.ErrSnapshotNotFound
	}
	cp := *snap
	cp.Stages = append([]domain.StageSnapshot(nil), snap.Stages...)
	return &cp, nil
}

func (r *AnalyticsRepo) LatestSnapshot(_ context.Context, journeyID string) (*domain.AnalyticsSnapshot, error) {
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
		return nil, analytics.ErrSnapshotNotFound
	}
	cp := *latest
	cp.Stages = append([]domain.StageSnapshot(nil), latest.Stages...)
	return &cp, nil
}
