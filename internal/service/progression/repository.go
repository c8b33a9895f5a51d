package progression

import (
	"context"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
)

// Repository defines the data access contract for contact progression.
// Implementations must be safe for concurrent use.
//
// Enroll and Advance are multi-write operations and must execute atomically:
// either every write is applied or none is. UpdateStatus and Advance use a
// compare-and-set predicate on the contact journey row so a concurrent
// mutation surfaces as ErrConcurrentModification instead of a silent
// double-apply.
type Repository interface {
	// GetJourney returns a journey with stages and transitions.
	// Returns ErrJourneyNotFound if missing.
	GetJourney(ctx context.Context, orgID, journeyID string) (*domain.Journey, error)

	// GetStage returns a stage by id. Returns ErrStageNotFound if missing.
	GetStage(ctx context.Context, stageID string) (*domain.Stage, error)

	// FindTransition returns the transition fromStageID -> toStageID within
	// the journey, or ErrInvalidTransition if none is defined.
	FindTransition(ctx context.Context, journeyID, fromStageID, toStageID string) (*domain.Transition, error)

	// Enroll conditionally inserts the contact journey and its initial open
	// visit. If an active-or-paused record already exists for the
	// (journey, contact) pair, it is returned unchanged with created=false.
	// The uniqueness check and the insert must not race.
	Enroll(ctx context.Context, cj *domain.ContactJourney, visit *domain.StageVisit) (*domain.ContactJourney, bool, error)

	// GetContactJourney returns the record without history.
	// Returns ErrNotFound if missing.
	GetContactJourney(ctx context.Context, orgID, id string) (*domain.ContactJourney, error)

	// ListVisits returns all stage visits for a contact journey, oldest first.
	ListVisits(ctx context.Context, contactJourneyID string) ([]domain.StageVisit, error)

	// ListEvents returns all transition events, oldest first.
	ListEvents(ctx context.Context, contactJourneyID string) ([]domain.TransitionEvent, error)

	// ListForContact returns every enrollment of a contact, newest first.
	ListForContact(ctx context.Context, orgID, contactID string) ([]domain.ContactJourney, error)

	// ListContactsInStage returns contact journeys with an open visit to the
	// stage.
	ListContactsInStage(ctx context.Context, stageID string) ([]domain.ContactJourney, error)

	// GetOpenVisit returns the single open visit of a contact journey.
	// Returns ErrNoOpenVisit if none exists.
	GetOpenVisit(ctx context.Context, contactJourneyID string) (*domain.StageVisit, error)

	// Advance applies one stage transition as a single transaction: close
	// the open visit, open the new one, append the transition event, and
	// CAS-update the contact journey (current stage, and status/completed_at
	// when completing). Returns ErrConcurrentModification if the record no
	// longer matches FromStageID with status active.
	Advance(ctx context.Context, p AdvanceParams) error

	// UpdateStatus applies a guarded status change. The update only applies
	// while the current status is in AllowedFrom; otherwise
	// ErrConcurrentModification is returned. When CloseOpenVisit is set, the
	// open visit (if any) is closed at the same instant in the same
	// transaction.
	UpdateStatus(ctx context.Context, p StatusParams) error
}

// AdvanceParams carries one atomic stage transition.
type AdvanceParams struct {
	ContactJourneyID string
	FromStageID      string
	ToStageID        string
	TransitionID     string
	TriggerSource    string
	Complete         bool
	Now              time.Time

	// Ids for the rows the transaction inserts, generated by the service.
	NewVisitID string
	EventID    string
}

// StatusParams carries one guarded status change.
type StatusParams struct {
	ContactJourneyID string
	AllowedFrom      []domain.ProgressionStatus
	To               domain.ProgressionStatus
	Now              time.Time
	DropReason       string
	CloseOpenVisit   bool
}
