package domain

import (
	"encoding/json"
	"time"
)

// TriggerType enumerates how a transition between stages may be triggered.
type TriggerType string

const (
	TriggerAutomatic  TriggerType = "automatic"
	TriggerEvent      TriggerType = "event"
	TriggerConversion TriggerType = "conversion"
	TriggerCondition  TriggerType = "condition"
	TriggerManual     TriggerType = "manual"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerAutomatic, TriggerEvent, TriggerConversion, TriggerCondition, TriggerManual:
		return true
	}
	return false
}

// Journey is a named directed graph of stages a contact can progress through.
type Journey struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	CreatedByID    string    `json:"created_by_id" db:"created_by_id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description" db:"description"`
	Active         bool      `json:"active" db:"active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	// Populated by Get; ordered by stage order, then name.
	Stages      []Stage      `json:"stages,omitempty"`
	Transitions []Transition `json:"transitions,omitempty"`
}

// EntryStage returns the first stage flagged as an entry point, or nil.
func (j *Journey) EntryStage() *Stage {
	for i := range j.Stages {
		if j.Stages[i].IsEntryPoint {
			return &j.Stages[i]
		}
	}
	return nil
}

// Stage is one step within a journey. Order is presentational only;
// transition legality is decided by the transition graph.
type Stage struct {
	ID          string `json:"id" db:"id"`
	JourneyID   string `json:"journey_id" db:"journey_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Order       int    `json:"order" db:"stage_order"`

	// Targets used by bottleneck detection. Nil means no target set.
	ExpectedDurationHours *float64 `json:"expected_duration_hours" db:"expected_duration_hours"`
	ConversionGoal        *float64 `json:"conversion_goal" db:"conversion_goal"`

	IsEntryPoint bool `json:"is_entry_point" db:"is_entry_point"`
	IsExitPoint  bool `json:"is_exit_point" db:"is_exit_point"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transition is an allowed directed move between two stages of one journey.
// TriggerDetails and Conditions are opaque payloads owned by the external
// rule-evaluation collaborator; the engine stores and forwards them only.
type Transition struct {
	ID             string          `json:"id" db:"id"`
	JourneyID      string          `json:"journey_id" db:"journey_id"`
	FromStageID    string          `json:"from_stage_id" db:"from_stage_id"`
	ToStageID      string          `json:"to_stage_id" db:"to_stage_id"`
	TriggerType    TriggerType     `json:"trigger_type" db:"trigger_type"`
	TriggerDetails json.RawMessage `json:"trigger_details,omitempty" db:"trigger_details"`
	Conditions     json.RawMessage `json:"conditions,omitempty" db:"conditions"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
