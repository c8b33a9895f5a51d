package domain

import (
	"time"
)

// ProgressionStatus enumerates the lifecycle states of a contact journey.
type ProgressionStatus string

const (
	ProgressionActive    ProgressionStatus = "active"
	ProgressionPaused    ProgressionStatus = "paused"
	ProgressionCompleted ProgressionStatus = "completed"
	ProgressionDropped   ProgressionStatus = "dropped"
)

// IsTerminal returns true if the status is final.
func (s ProgressionStatus) IsTerminal() bool {
	return s == ProgressionCompleted || s == ProgressionDropped
}

// IsOpen returns true if the contact journey can still progress or resume.
func (s ProgressionStatus) IsOpen() bool {
	return s == ProgressionActive || s == ProgressionPaused
}

// CanTransitionTo reports whether the status change follows the legal graph:
// active<->paused, active->completed, {active,paused}->dropped.
func (s ProgressionStatus) CanTransitionTo(next ProgressionStatus) bool {
	switch s {
	case ProgressionActive:
		return next == ProgressionPaused || next == ProgressionCompleted || next == ProgressionDropped
	case ProgressionPaused:
		return next == ProgressionActive || next == ProgressionDropped
	}
	return false
}

// ContactJourney is one contact's live progress record within one journey.
// At most one active-or-paused record exists per (journey, contact) pair.
type ContactJourney struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	JourneyID      string            `json:"journey_id" db:"journey_id"`
	ContactID      string            `json:"contact_id" db:"contact_id"`
	Status         ProgressionStatus `json:"status" db:"status"`
	CurrentStageID string            `json:"current_stage_id" db:"current_stage_id"`
	StartedAt      time.Time         `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at" db:"completed_at"`
	DroppedAt      *time.Time        `json:"dropped_at" db:"dropped_at"`
	DropReason     string            `json:"drop_reason,omitempty" db:"drop_reason"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`

	// Populated by Get.
	Visits []StageVisit      `json:"visits,omitempty"`
	Events []TransitionEvent `json:"events,omitempty"`
}

// Duration returns the total time from enrollment to completion.
// Zero if the journey has not completed.
func (cj *ContactJourney) Duration() time.Duration {
	if cj.CompletedAt == nil {
		return 0
	}
	return cj.CompletedAt.Sub(cj.StartedAt)
}

// StageVisit is one open-or-closed interval during which a contact journey
// occupied a stage. Exactly one open visit (ExitedAt nil) exists per contact
// journey, and it references CurrentStageID.
type StageVisit struct {
	ID               string     `json:"id" db:"id"`
	ContactJourneyID string     `json:"contact_journey_id" db:"contact_journey_id"`
	StageID          string     `json:"stage_id" db:"stage_id"`
	EnteredAt        time.Time  `json:"entered_at" db:"entered_at"`
	ExitedAt         *time.Time `json:"exited_at" db:"exited_at"`
	DurationSeconds  *float64   `json:"duration_seconds" db:"duration_seconds"`
}

// Open returns true while the visit has not been exited.
func (v *StageVisit) Open() bool { return v.ExitedAt == nil }

// TransitionEvent is an append-only audit record of one stage change.
type TransitionEvent struct {
	ID               string    `json:"id" db:"id"`
	ContactJourneyID string    `json:"contact_journey_id" db:"contact_journey_id"`
	TransitionID     string    `json:"transition_id" db:"transition_id"`
	FromStageID      string    `json:"from_stage_id" db:"from_stage_id"`
	ToStageID        string    `json:"to_stage_id" db:"to_stage_id"`
	TriggerSource    string    `json:"trigger_source" db:"trigger_source"`
	OccurredAt       time.Time `json:"occurred_at" db:"occurred_at"`
}
