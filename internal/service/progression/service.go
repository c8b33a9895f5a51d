package progression

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/events"
)

// Service implements the contact progression state machine. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo     Repository
	notifier events.Notifier
}

// NewService creates a progression service. A nil notifier disables
// stage-changed notifications.
func NewService(repo Repository, notifier events.Notifier) *Service {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &Service{repo: repo, notifier: notifier}
}

// Enroll enrolls a contact into a journey at its entry stage. The operation
// is idempotent: while an active-or-paused enrollment exists for the
// (journey, contact) pair, the existing record is returned and created is
// false.
func (s *Service) Enroll(ctx context.Context, orgID, journeyID, contactID string) (*domain.ContactJourney, bool, error) {
	if contactID == "" {
		return nil, false, fmt.Errorf("contact id is required")
	}

	j, err := s.repo.GetJourney(ctx, orgID, journeyID)
	if err != nil {
		return nil, false, err
	}
	if !j.Active {
		return nil, false, ErrJourneyInactive
	}
	entry := j.EntryStage()
	if entry == nil {
		return nil, false, ErrNoEntryPoint
	}

	now := time.Now().UTC()
	cj := &domain.ContactJourney{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		JourneyID:      journeyID,
		ContactID:      contactID,
		Status:         domain.ProgressionActive,
		CurrentStageID: entry.ID,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	visit := &domain.StageVisit{
		ID:               uuid.New().String(),
		ContactJourneyID: cj.ID,
		StageID:          entry.ID,
		EnteredAt:        now,
	}

	rec, created, err := s.repo.Enroll(ctx, cj, visit)
	if err != nil {
		return nil, false, fmt.Errorf("enroll contact: %w", err)
	}
	return rec, created, nil
}

// AdvanceStage moves an active contact journey along a defined transition to
// toStage. The visit bookkeeping, transition event, and stage pointer update
// are one atomic unit; entering an exit-point stage completes the journey in
// the same unit. A stage-changed notification is emitted after commit.
func (s *Service) AdvanceStage(ctx context.Context, orgID, contactJourneyID, toStageID, triggerSource string) (*domain.ContactJourney, error) {
	cj, err := s.repo.GetContactJourney(ctx, orgID, contactJourneyID)
	if err != nil {
		return nil, err
	}
	if cj.Status != domain.ProgressionActive {
		return nil, ErrJourneyNotActive
	}

	open, err := s.repo.GetOpenVisit(ctx, cj.ID)
	if err != nil {
		return nil, err
	}
	if open.StageID != cj.CurrentStageID {
		// Open visit out of sync with the stage pointer: an internal
		// consistency violation, reported rather than papered over.
		return nil, ErrNoOpenVisit
	}

	tr, err := s.repo.FindTransition(ctx, cj.JourneyID, cj.CurrentStageID, toStageID)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetStage(ctx, toStageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := AdvanceParams{
		ContactJourneyID: cj.ID,
		FromStageID:      cj.CurrentStageID,
		ToStageID:        toStageID,
		TransitionID:     tr.ID,
		TriggerSource:    triggerSource,
		Complete:         target.IsExitPoint,
		Now:              now,
		NewVisitID:       uuid.New().String(),
		EventID:          uuid.New().String(),
	}
	if err := s.repo.Advance(ctx, p); err != nil {
		return nil, err
	}

	// Post-commit: best effort, never fails the advance.
	ev := events.StageChanged{
		ContactJourneyID: cj.ID,
		JourneyID:        cj.JourneyID,
		ContactID:        cj.ContactID,
		FromStageID:      p.FromStageID,
		ToStageID:        toStageID,
		Completed:        p.Complete,
		Timestamp:        now,
	}
	if err := s.notifier.NotifyStageChanged(ctx, ev); err != nil {
		log.Printf("[progression.Service] stage-changed notify failed for %s: %v", cj.ID, err)
	}

	return s.repo.GetContactJourney(ctx, orgID, cj.ID)
}

// Pause suspends an active contact journey.
func (s *Service) Pause(ctx context.Context, orgID, contactJourneyID string) error {
	cj, err := s.repo.GetContactJourney(ctx, orgID, contactJourneyID)
	if err != nil {
		return err
	}
	if cj.Status != domain.ProgressionActive {
		return ErrJourneyNotActive
	}
	return s.repo.UpdateStatus(ctx, StatusParams{
		ContactJourneyID: cj.ID,
		AllowedFrom:      []domain.ProgressionStatus{domain.ProgressionActive},
		To:               domain.ProgressionPaused,
		Now:              time.Now().UTC(),
	})
}

// Resume reactivates a paused contact journey.
func (s *Service) Resume(ctx context.Context, orgID, contactJourneyID string) error {
	cj, err := s.repo.GetContactJourney(ctx, orgID, contactJourneyID)
	if err != nil {
		return err
	}
	if cj.Status != domain.ProgressionPaused {
		return ErrNotPaused
	}
	return s.repo.UpdateStatus(ctx, StatusParams{
		ContactJourneyID: cj.ID,
		AllowedFrom:      []domain.ProgressionStatus{domain.ProgressionPaused},
		To:               domain.ProgressionActive,
		Now:              time.Now().UTC(),
	})
}

// Drop terminally removes a contact from a journey with an optional reason.
// The open stage visit is closed at drop time so dwell analytics over
// dropped contacts stay meaningful up to the drop point.
func (s *Service) Drop(ctx context.Context, orgID, contactJourneyID, reason string) error {
	cj, err := s.repo.GetContactJourney(ctx, orgID, contactJourneyID)
	if err != nil {
		return err
	}
	if cj.Status.IsTerminal() {
		return ErrTerminal
	}
	return s.repo.UpdateStatus(ctx, StatusParams{
		ContactJourneyID: cj.ID,
		AllowedFrom:      []domain.ProgressionStatus{domain.ProgressionActive, domain.ProgressionPaused},
		To:               domain.ProgressionDropped,
		Now:              time.Now().UTC(),
		DropReason:       reason,
		CloseOpenVisit:   true,
	})
}

// Get returns a contact journey with its full visit and transition history.
func (s *Service) Get(ctx context.Context, orgID, contactJourneyID string) (*domain.ContactJourney, error) {
	cj, err := s.repo.GetContactJourney(ctx, orgID, contactJourneyID)
	if err != nil {
		return nil, err
	}
	if cj.Visits, err = s.repo.ListVisits(ctx, cj.ID); err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	if cj.Events, err = s.repo.ListEvents(ctx, cj.ID); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return cj, nil
}

// ListForContact returns every enrollment of a contact across journeys.
func (s *Service) ListForContact(ctx context.Context, orgID, contactID string) ([]domain.ContactJourney, error) {
	return s.repo.ListForContact(ctx, orgID, contactID)
}

// ListContactsInStage returns the contact journeys currently (openly)
// visiting a stage.
func (s *Service) ListContactsInStage(ctx context.Context, stageID string) ([]domain.ContactJourney, error) {
	return s.repo.ListContactsInStage(ctx, stageID)
}
