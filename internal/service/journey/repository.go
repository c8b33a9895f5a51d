package journey

import (
	"context"
	"encoding/json"

	"github.com/marketsage/journey-engine/internal/domain"
)

// Repository defines the data access contract for the journey graph.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetJourney returns a journey with its stages (ordered) and transitions.
	// Returns ErrNotFound if it doesn't exist in the given organization.
	GetJourney(ctx context.Context, orgID, id string) (*domain.Journey, error)

	// ListJourneys returns journeys matching the filter, newest first.
	ListJourneys(ctx context.Context, orgID string, f ListFilter) ([]domain.Journey, int, error)

	// CreateJourney inserts a journey together with any initial stages.
	CreateJourney(ctx context.Context, j *domain.Journey) (string, error)

	// UpdateJourney applies non-nil fields. Returns ErrNotFound if missing.
	UpdateJourney(ctx context.Context, orgID, id string, u UpdateFields) error

	// DeleteJourney removes a journey and cascades to stages, transitions,
	// contact journeys, visits, events, and metrics.
	DeleteJourney(ctx context.Context, orgID, id string) error

	// SetJourneyActive flips the active flag.
	SetJourneyActive(ctx context.Context, orgID, id string, active bool) error

	// GetStage returns a stage by id. Returns ErrStageNotFound if missing.
	GetStage(ctx context.Context, id string) (*domain.Stage, error)

	// CreateStage inserts a stage into an existing journey.
	CreateStage(ctx context.Context, s *domain.Stage) (string, error)

	// UpdateStage applies non-nil fields. Returns ErrStageNotFound if missing.
	UpdateStage(ctx context.Context, id string, u StageUpdateFields) error

	// DeleteStage removes a stage and its transitions. The service checks
	// open visits first; implementations may assume that check was done.
	DeleteStage(ctx context.Context, id string) error

	// CountOpenVisits returns the number of open stage visits referencing
	// the stage.
	CountOpenVisits(ctx context.Context, stageID string) (int, error)

	// GetTransition returns a transition by id. Returns ErrTransitionNotFound
	// if missing.
	GetTransition(ctx context.Context, id string) (*domain.Transition, error)

	// CreateTransition inserts a transition.
	CreateTransition(ctx context.Context, t *domain.Transition) (string, error)

	// UpdateTransition applies non-nil fields.
	UpdateTransition(ctx context.Context, id string, u TransitionUpdateFields) error

	// DeleteTransition removes a transition.
	DeleteTransition(ctx context.Context, id string) error
}

// ListFilter controls pagination and filtering for journey lists.
type ListFilter struct {
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

// UpdateFields holds the mutable journey fields. Nil fields are not applied.
type UpdateFields struct {
	Name        *string
	Description *string
}

// StageUpdateFields holds the mutable stage fields. Nil fields are not
// applied. SetExpectedDuration/SetConversionGoal distinguish "leave alone"
// from "clear the target".
type StageUpdateFields struct {
	Name                  *string
	Description           *string
	Order                 *int
	ExpectedDurationHours *float64
	SetExpectedDuration   bool
	ConversionGoal        *float64
	SetConversionGoal     bool
	IsEntryPoint          *bool
	IsExitPoint           *bool
}

// TransitionUpdateFields holds the mutable transition fields.
type TransitionUpdateFields struct {
	TriggerType    *domain.TriggerType
	TriggerDetails json.RawMessage
	Conditions     json.RawMessage
}
