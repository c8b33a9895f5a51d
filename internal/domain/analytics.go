package domain

import "time"

// AnalyticsSnapshot is a point-in-time aggregate for one journey. One logical
// row exists per (journey, calendar day); recomputing within the same day
// overwrites.
type AnalyticsSnapshot struct {
	ID           string    `json:"id" db:"id"`
	JourneyID    string    `json:"journey_id" db:"journey_id"`
	SnapshotDate time.Time `json:"snapshot_date" db:"snapshot_date"`

	TotalContacts     int `json:"total_contacts" db:"total_contacts"`
	ActiveContacts    int `json:"active_contacts" db:"active_contacts"`
	PausedContacts    int `json:"paused_contacts" db:"paused_contacts"`
	CompletedContacts int `json:"completed_contacts" db:"completed_contacts"`
	DroppedContacts   int `json:"dropped_contacts" db:"dropped_contacts"`

	// ConversionRate is completed/total (0 when total is 0).
	ConversionRate float64 `json:"conversion_rate" db:"conversion_rate"`

	// AverageDurationHours is the mean enrollment-to-completion time over
	// completed journeys only.
	AverageDurationHours float64 `json:"average_duration_hours" db:"average_duration_hours"`

	Stages []StageSnapshot `json:"stages"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// StageSnapshot is the per-stage breakdown within a snapshot.
type StageSnapshot struct {
	StageID   string `json:"stage_id"`
	StageName string `json:"stage_name"`
	Order     int    `json:"order"`

	ContactsCurrentlyIn int `json:"contacts_currently_in"` // open visits
	EnteredCount        int `json:"entered_count"`         // all visits ever
	ExitedCount         int `json:"exited_count"`          // closed visits

	// ConversionRate is exited/entered for this stage.
	ConversionRate float64 `json:"stage_conversion_rate"`

	// AverageDurationHours is the mean duration of closed visits.
	AverageDurationHours float64 `json:"average_stage_duration_hours"`
}

// BottleneckSeverity orders flagged stages from worst to mildest.
type BottleneckSeverity string

const (
	SeverityHigh   BottleneckSeverity = "high"
	SeverityMedium BottleneckSeverity = "medium"
	SeverityLow    BottleneckSeverity = "low"
)

// Rank returns a sortable weight, lower is more severe.
func (s BottleneckSeverity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	}
	return 2
}

// Bottleneck is a stage flagged for abnormal drop-off or dwell time relative
// to its goals.
type Bottleneck struct {
	StageID   string `json:"stage_id"`
	StageName string `json:"stage_name"`

	DropOffRate           float64  `json:"drop_off_rate"`
	ConversionRate        float64  `json:"stage_conversion_rate"`
	AverageDurationHours  float64  `json:"average_stage_duration_hours"`
	ConversionGoal        *float64 `json:"conversion_goal,omitempty"`
	ExpectedDurationHours *float64 `json:"expected_duration_hours,omitempty"`

	Severity        BottleneckSeverity `json:"severity"`
	Recommendations []string           `json:"recommendations"`
}

// FlowDistributionEntry reports what share of all enrolled contacts is
// currently open in one stage.
type FlowDistributionEntry struct {
	StageID      string  `json:"stage_id"`
	StageName    string  `json:"stage_name"`
	Order        int     `json:"order"`
	ContactCount int     `json:"contact_count"`
	Percentage   float64 `json:"percentage"`
}

// CompletionBucket is one range of the completion-time histogram.
type CompletionBucket struct {
	Label      string  `json:"label"`
	MinHours   float64 `json:"min_hours"`
	MaxHours   float64 `json:"max_hours"` // 0 means unbounded
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}
