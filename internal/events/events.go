// Package events defines the stage-changed notification sink consumed by
// downstream messaging/workflow subsystems. The engine publishes after the
// store transaction commits; delivery is best-effort.
package events

import (
	"context"
	"time"
)

// StageChanged is emitted once per committed stage transition.
type StageChanged struct {
	ContactJourneyID string    `json:"contact_journey_id"`
	JourneyID        string    `json:"journey_id"`
	ContactID        string    `json:"contact_id"`
	FromStageID      string    `json:"from_stage_id"`
	ToStageID        string    `json:"to_stage_id"`
	Completed        bool      `json:"completed"`
	Timestamp        time.Time `json:"timestamp"`
}

// Notifier receives stage-changed notifications.
// Implementations must be safe for concurrent use.
type Notifier interface {
	NotifyStageChanged(ctx context.Context, ev StageChanged) error
}

// NopNotifier discards all notifications. Used when no sink is configured.
type NopNotifier struct{}

// NotifyStageChanged implements Notifier.
func (NopNotifier) NotifyStageChanged(context.Context, StageChanged) error { return nil }
