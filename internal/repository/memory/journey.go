package memory

import (
	"context"
	"sort"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/journey"
)

// JourneyRepo implements journey.Repository against the in-memory store.
type JourneyRepo struct{ s *Store }

var _ journey.Repository = (*JourneyRepo)(nil)

func (r *JourneyRepo) GetJourney(_ context.Context, orgID, id string) (*domain.Journey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j := r.s.journeyWithGraph(orgID, id)
	if j == nil {
		return nil, journey.ErrNotFound
	}
	return j, nil
}

func (r *JourneyRepo) ListJourneys(_ context.Context, orgID string, f journey.ListFilter) ([]domain.Journey, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.Journey
	for _, j := range r.s.journeys {
		if j.OrganizationID != orgID {
			continue
		}
		if f.ActiveOnly && !j.Active {
			continue
		}
		if !matches(j, f.Search) {
			continue
		}
		out = append(out, *j)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (r *JourneyRepo) CreateJourney(_ context.Context, j *domain.Journey) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	cp := *j
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.Stages = nil
	cp.Transitions = nil
	r.s.journeys[cp.ID] = &cp
	for _, st := range j.Stages {
		sc := st
		sc.CreatedAt = now
		sc.UpdatedAt = now
		r.s.stages[sc.ID] = &sc
	}
	return cp.ID, nil
}

func (r *JourneyRepo) UpdateJourney(_ context.Context, orgID, id string, u journey.UpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.journeys[id]
	if !ok || j.OrganizationID != orgID {
		return journey.ErrNotFound
	}
	if u.Name != nil {
		j.Name = *u.Name
	}
	if u.Description != nil {
		j.Description = *u.Description
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JourneyRepo) DeleteJourney(_ context.Context, orgID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.journeys[id]
	if !ok || j.OrganizationID != orgID {
		return journey.ErrNotFound
	}

	delete(r.s.journeys, id)
	for sid, st := range r.s.stages {
		if st.JourneyID == id {
			delete(r.s.stages, sid)
		}
	}
	for tid, t := range r.s.transitions {
		if t.JourneyID == id {
			delete(r.s.transitions, tid)
		}
	}
	for cid, cj := range r.s.contacts {
		if cj.JourneyID != id {
			continue
		}
		delete(r.s.contacts, cid)
		for vid, v := range r.s.visits {
			if v.ContactJourneyID == cid {
				delete(r.s.visits, vid)
			}
		}
		for eid, e := range r.s.events {
			if e.ContactJourneyID == cid {
				delete(r.s.events, eid)
			}
		}
	}
	for mid, m := range r.s.metrics {
		if m.JourneyID != id {
			continue
		}
		delete(r.s.metrics, mid)
		for key, sm := range r.s.stageMetrics {
			if sm.MetricID == mid {
				delete(r.s.stageMetrics, key)
			}
		}
	}
	for key, snap := range r.s.snapshots {
		if snap.JourneyID == id {
			delete(r.s.snapshots, key)
		}
	}
	return nil
}

func (r *JourneyRepo) SetJourneyActive(_ context.Context, orgID, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.journeys[id]
	if !ok || j.OrganizationID != orgID {
		return journey.ErrNotFound
	}
	j.Active = active
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JourneyRepo) GetStage(_ context.Context, id string) (*domain.Stage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stages[id]
	if !ok {
		return nil, journey.ErrStageNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *JourneyRepo) CreateStage(_ context.Context, st *domain.Stage) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *st
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.s.stages[cp.ID] = &cp
	return cp.ID, nil
}

func (r *JourneyRepo) UpdateStage(_ context.Context, id string, u journey.StageUpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stages[id]
	if !ok {
		return journey.ErrStageNotFound
	}
	if u.Name != nil {
		st.Name = *u.Name
	}
	if u.Description != nil {
		st.Description = *u.Description
	}
	if u.Order != nil {
		st.Order = *u.Order
	}
	if u.SetExpectedDuration {
		st.ExpectedDurationHours = u.ExpectedDurationHours
	}
	if u.SetConversionGoal {
		st.ConversionGoal = u.ConversionGoal
	}
	if u.IsEntryPoint != nil {
		st.IsEntryPoint = *u.IsEntryPoint
	}
	if u.IsExitPoint != nil {
		st.IsExitPoint = *u.IsExitPoint
	}
	st.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JourneyRepo) DeleteStage(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.stages[id]; !ok {
		return journey.ErrStageNotFound
	}
	delete(r.s.stages, id)
	for tid, t := range r.s.transitions {
		if t.FromStageID == id || t.ToStageID == id {
			delete(r.s.transitions, tid)
		}
	}
	return nil
}

func (r *JourneyRepo) CountOpenVisits(_ context.Context, stageID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, v := range r.s.visits {
		if v.StageID == stageID && v.ExitedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *JourneyRepo) GetTransition(_ context.Context, id string) (*domain.Transition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transitions[id]
	if !ok {
		return nil, journey.ErrTransitionNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *JourneyRepo) CreateTransition(_ context.Context, t *domain.Transition) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *t
	cp.CreatedAt = time.Now().UTC()
	r.s.transitions[cp.ID] = &cp
	return cp.ID, nil
}

func (r *JourneyRepo) UpdateTransition(_ context.Context, id string, u journey.TransitionUpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transitions[id]
	if !ok {
		return journey.ErrTransitionNotFound
	}
	if u.TriggerType != nil {
		t.TriggerType = *u.TriggerType
	}
	if u.TriggerDetails != nil {
		t.TriggerDetails = u.TriggerDetails
	}
	if u.Conditions != nil {
		t.Conditions = u.Conditions
	}
	return nil
}

func (r *JourneyRepo) DeleteTransition(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transitions[id]; !ok {
		return journey.ErrTransitionNotFound
	}
	delete(r.s.transitions, id)
	return nil
}
