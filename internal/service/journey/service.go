package journey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketsage/journey-engine/internal/domain"
)

// Service implements journey graph business logic. All public methods are
// safe for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a journey service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a journey with stages and transitions.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.Journey, error) {
	return s.repo.GetJourney(ctx, orgID, id)
}

// List returns journeys matching the filter.
func (s *Service) List(ctx context.Context, orgID string, f ListFilter) ([]domain.Journey, int, error) {
	return s.repo.ListJourneys(ctx, orgID, f)
}

// Create validates and persists a new journey, active by default, together
// with any initial stage set.
func (s *Service) Create(ctx context.Context, orgID string, input CreateInput) (*domain.Journey, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	j := &domain.Journey{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		CreatedByID:    input.CreatedByID,
		Name:           input.Name,
		Description:    input.Description,
		Active:         true,
	}
	for _, si := range input.Stages {
		stage, err := buildStage(j.ID, si)
		if err != nil {
			return nil, err
		}
		j.Stages = append(j.Stages, *stage)
	}

	id, err := s.repo.CreateJourney(ctx, j)
	if err != nil {
		return nil, err
	}
	j.ID = id
	return j, nil
}

// Update modifies mutable journey fields.
func (s *Service) Update(ctx context.Context, orgID, id string, u UpdateFields) error {
	return s.repo.UpdateJourney(ctx, orgID, id, u)
}

// Delete removes a journey and everything under it: stages, transitions,
// contact journeys, stage visits, transition events, metrics. This is the
// one bulk removal allowed regardless of in-flight contacts.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.repo.DeleteJourney(ctx, orgID, id)
}

// Activate re-enables enrollment into the journey.
func (s *Service) Activate(ctx context.Context, orgID, id string) error {
	return s.repo.SetJourneyActive(ctx, orgID, id, true)
}

// Deactivate blocks new enrollment. In-flight contacts keep progressing.
func (s *Service) Deactivate(ctx context.Context, orgID, id string) error {
	return s.repo.SetJourneyActive(ctx, orgID, id, false)
}

// AddStage creates a stage in an existing journey.
func (s *Service) AddStage(ctx context.Context, orgID, journeyID string, input StageInput) (*domain.Stage, error) {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return nil, err
	}
	stage, err := buildStage(journeyID, input)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateStage(ctx, stage)
	if err != nil {
		return nil, err
	}
	stage.ID = id
	return stage, nil
}

// UpdateStage modifies mutable stage fields.
func (s *Service) UpdateStage(ctx context.Context, orgID, journeyID, stageID string, u StageUpdateFields) error {
	if _, err := s.stageInJourney(ctx, orgID, journeyID, stageID); err != nil {
		return err
	}
	return s.repo.UpdateStage(ctx, stageID, u)
}

// DeleteStage removes a stage unless any contact journey has an open visit
// to it, in which case it fails with a StageInUseError carrying the count.
func (s *Service) DeleteStage(ctx context.Context, orgID, journeyID, stageID string) error {
	if _, err := s.stageInJourney(ctx, orgID, journeyID, stageID); err != nil {
		return err
	}
	n, err := s.repo.CountOpenVisits(ctx, stageID)
	if err != nil {
		return fmt.Errorf("count open visits: %w", err)
	}
	if n > 0 {
		return &StageInUseError{StageID: stageID, OpenVisits: n}
	}
	return s.repo.DeleteStage(ctx, stageID)
}

// AddTransition creates a directed edge between two stages of the journey.
// Both endpoints must exist and belong to the same journey.
func (s *Service) AddTransition(ctx context.Context, orgID, journeyID string, input TransitionInput) (*domain.Transition, error) {
	if !input.TriggerType.Valid() {
		return nil, fmt.Errorf("unknown trigger type %q", input.TriggerType)
	}

	from, err := s.stageInJourney(ctx, orgID, journeyID, input.FromStageID)
	if err != nil {
		return nil, err
	}
	to, err := s.repo.GetStage(ctx, input.ToStageID)
	if err != nil {
		return nil, err
	}
	if from.JourneyID != to.JourneyID {
		return nil, ErrCrossJourneyTransition
	}

	t := &domain.Transition{
		ID:             uuid.New().String(),
		JourneyID:      journeyID,
		FromStageID:    input.FromStageID,
		ToStageID:      input.ToStageID,
		TriggerType:    input.TriggerType,
		TriggerDetails: input.TriggerDetails,
		Conditions:     input.Conditions,
	}
	id, err := s.repo.CreateTransition(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id
	return t, nil
}

// UpdateTransition modifies a transition's trigger configuration.
func (s *Service) UpdateTransition(ctx context.Context, orgID, journeyID, transitionID string, u TransitionUpdateFields) error {
	if u.TriggerType != nil && !u.TriggerType.Valid() {
		return fmt.Errorf("unknown trigger type %q", *u.TriggerType)
	}
	if err := s.transitionInJourney(ctx, orgID, journeyID, transitionID); err != nil {
		return err
	}
	return s.repo.UpdateTransition(ctx, transitionID, u)
}

// DeleteTransition removes a transition.
func (s *Service) DeleteTransition(ctx context.Context, orgID, journeyID, transitionID string) error {
	if err := s.transitionInJourney(ctx, orgID, journeyID, transitionID); err != nil {
		return err
	}
	return s.repo.DeleteTransition(ctx, transitionID)
}

// stageInJourney loads a stage and verifies it belongs to the given journey
// within the caller's organization.
func (s *Service) stageInJourney(ctx context.Context, orgID, journeyID, stageID string) (*domain.Stage, error) {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return nil, err
	}
	stage, err := s.repo.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.JourneyID != journeyID {
		return nil, ErrStageNotFound
	}
	return stage, nil
}

func (s *Service) transitionInJourney(ctx context.Context, orgID, journeyID, transitionID string) error {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return err
	}
	t, err := s.repo.GetTransition(ctx, transitionID)
	if err != nil {
		return err
	}
	if t.JourneyID != journeyID {
		return ErrTransitionNotFound
	}
	return nil
}

func buildStage(journeyID string, input StageInput) (*domain.Stage, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("stage name is required")
	}
	if input.ConversionGoal != nil && (*input.ConversionGoal <= 0 || *input.ConversionGoal > 1) {
		return nil, fmt.Errorf("conversion goal must be in (0, 1]")
	}
	if input.ExpectedDurationHours != nil && *input.ExpectedDurationHours <= 0 {
		return nil, fmt.Errorf("expected duration must be positive")
	}
	return &domain.Stage{
		ID:                    uuid.New().String(),
		JourneyID:             journeyID,
		Name:                  input.Name,
		Description:           input.Description,
		Order:                 input.Order,
		ExpectedDurationHours: input.ExpectedDurationHours,
		ConversionGoal:        input.ConversionGoal,
		IsEntryPoint:          input.IsEntryPoint,
		IsExitPoint:           input.IsExitPoint,
	}, nil
}

// CreateInput holds the fields for creating a journey.
type CreateInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CreatedByID string       `json:"created_by_id"`
	Stages      []StageInput `json:"stages"`
}

// StageInput holds the fields for creating a stage.
type StageInput struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	Order                 int      `json:"order"`
	ExpectedDurationHours *float64 `json:"expected_duration_hours"`
	ConversionGoal        *float64 `json:"conversion_goal"`
	IsEntryPoint          bool     `json:"is_entry_point"`
	IsExitPoint           bool     `json:"is_exit_point"`
}

// TransitionInput holds the fields for creating a transition.
type TransitionInput struct {
	FromStageID    string             `json:"from_stage_id"`
	ToStageID      string             `json:"to_stage_id"`
	TriggerType    domain.TriggerType `json:"trigger_type"`
	TriggerDetails json.RawMessage    `json:"trigger_details"`
	Conditions     json.RawMessage    `json:"conditions"`
}
