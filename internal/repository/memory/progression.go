package memory

import (
	"context"
	"sort"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

// ProgressionRepo implements progression.Repository against the in-memory
// store.
type ProgressionRepo struct{ s *Store }

var _ progression.Repository = (*ProgressionRepo)(nil)

func (r *ProgressionRepo) GetJourney(_ context.Context, orgID, journeyID string) (*domain.Journey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j := r.s.journeyWithGraph(orgID, journeyID)
	if j == nil {
		return nil, progression.ErrJourneyNotFound
	}
	return j, nil
}

func (r *ProgressionRepo) GetStage(_ context.Context, stageID string) (*domain.Stage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stages[stageID]
	if !ok {
		return nil, progression.ErrStageNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *ProgressionRepo) FindTransition(_ context.Context, journeyID, fromStageID, toStageID string) (*domain.Transition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.transitions {
		if t.JourneyID == journeyID && t.FromStageID == fromStageID && t.ToStageID == toStageID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, progression.ErrInvalidTransition
}

func (r *ProgressionRepo) Enroll(_ context.Context, cj *domain.ContactJourney, visit *domain.StageVisit) (*domain.ContactJourney, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// The open-enrollment check and the insert happen under one lock, the
	// in-memory equivalent of the partial unique index.
	for _, existing := range r.s.contacts {
		if existing.JourneyID == cj.JourneyID && existing.ContactID == cj.ContactID && existing.Status.IsOpen() {
			cp := *existing
			return &cp, false, nil
		}
	}

	cc := *cj
	r.s.contacts[cc.ID] = &cc
	vc := *visit
	r.s.visits[vc.ID] = &vc
	out := cc
	return &out, true, nil
}

func (r *ProgressionRepo) GetContactJourney(_ context.Context, orgID, id string) (*domain.ContactJourney, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cj, ok := r.s.contacts[id]
	if !ok || cj.OrganizationID != orgID {
		return nil, progression.ErrNotFound
	}
	cp := *cj
	return &cp, nil
}

func (r *ProgressionRepo) ListVisits(_ context.Context, contactJourneyID string) ([]domain.StageVisit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.StageVisit
	for _, v := range r.s.visits {
		if v.ContactJourneyID == contactJourneyID {
			out = append(out, *v)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].EnteredAt.Before(out[k].EnteredAt) })
	return out, nil
}

func (r *ProgressionRepo) ListEvents(_ context.Context, contactJourneyID string) ([]domain.TransitionEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TransitionEvent
	for _, e := range r.s.events {
		if e.ContactJourneyID == contactJourneyID {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].OccurredAt.Before(out[k].OccurredAt) })
	return out, nil
}

func (r *ProgressionRepo) ListForContact(_ context.Context, orgID, contactID string) ([]domain.ContactJourney, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ContactJourney
	for _, cj := range r.s.contacts {
		if cj.OrganizationID == orgID && cj.ContactID == contactID {
			out = append(out, *cj)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out, nil
}

func (r *ProgressionRepo) ListContactsInStage(_ context.Context, stageID string) ([]domain.ContactJourney, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ContactJourney
	for _, v := range r.s.visits {
		if v.StageID != stageID || v.ExitedAt != nil {
			continue
		}
		if cj, ok := r.s.contacts[v.ContactJourneyID]; ok {
			out = append(out, *cj)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out, nil
}

func (r *ProgressionRepo) GetOpenVisit(_ context.Context, contactJourneyID string) (*domain.StageVisit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v := r.openVisitLocked(contactJourneyID)
	if v == nil {
		return nil, progression.ErrNoOpenVisit
	}
	cp := *v
	return &cp, nil
}

func (r *ProgressionRepo) openVisitLocked(contactJourneyID string) *domain.StageVisit {
	for _, v := range r.s.visits {
		if v.ContactJourneyID == contactJourneyID && v.ExitedAt == nil {
			return v
		}
	}
	return nil
}

func (r *ProgressionRepo) Advance(_ context.Context, p progression.AdvanceParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cj, ok := r.s.contacts[p.ContactJourneyID]
	if !ok {
		return progression.ErrNotFound
	}
	if cj.Status != domain.ProgressionActive || cj.CurrentStageID != p.FromStageID {
		return progression.ErrConcurrentModification
	}
	open := r.openVisitLocked(cj.ID)
	if open == nil {
		return progression.ErrNoOpenVisit
	}

	exited := p.Now
	seconds := exited.Sub(open.EnteredAt).Seconds()
	open.ExitedAt = &exited
	open.DurationSeconds = &seconds

	next := &domain.StageVisit{
		ID:               p.NewVisitID,
		ContactJourneyID: cj.ID,
		StageID:          p.ToStageID,
		EnteredAt:        p.Now,
	}
	r.s.visits[next.ID] = next
	r.s.events[p.EventID] = &domain.TransitionEvent{
		ID:               p.EventID,
		ContactJourneyID: cj.ID,
		TransitionID:     p.TransitionID,
		FromStageID:      p.FromStageID,
		ToStageID:        p.ToStageID,
		TriggerSource:    p.TriggerSource,
		OccurredAt:       p.Now,
	}

	cj.CurrentStageID = p.ToStageID
	cj.UpdatedAt = p.Now
	if p.Complete {
		cj.Status = domain.ProgressionCompleted
		completedAt := p.Now
		cj.CompletedAt = &completedAt
		// Completion also closes the exit-stage visit so completed contacts
		// do not count as currently in any stage.
		exitDur := 0.0
		next.ExitedAt = &completedAt
		next.DurationSeconds = &exitDur
	}
	return nil
}

func (r *ProgressionRepo) UpdateStatus(_ context.Context, p progression.StatusParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cj, ok := r.s.contacts[p.ContactJourneyID]
	if !ok {
		return progression.ErrNotFound
	}
	allowed := false
	for _, st := range p.AllowedFrom {
		if cj.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return progression.ErrConcurrentModification
	}

	cj.Status = p.To
	cj.UpdatedAt = p.Now
	if p.To == domain.ProgressionDropped {
		droppedAt := p.Now
		cj.DroppedAt = &droppedAt
		cj.DropReason = p.DropReason
	}
	if p.CloseOpenVisit {
		if v := r.openVisitLocked(cj.ID); v != nil {
			exitAt := p.Now
			dur := exitAt.Sub(v.EnteredAt).Seconds()
			v.ExitedAt = &exitAt
			v.DurationSeconds = &dur
		}
	}
	return nil
}
