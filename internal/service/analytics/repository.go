package analytics

import (
	"context"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
)

// Repository defines the data access contract for analytics computation.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetJourney returns a journey with its stages (ordered) and
	// transitions. Returns ErrNotFound if missing.
	GetJourney(ctx context.Context, orgID, journeyID string) (*domain.Journey, error)

	// ListContactJourneys returns every enrollment of the journey.
	ListContactJourneys(ctx context.Context, journeyID string) ([]domain.ContactJourney, error)

	// ListJourneyVisits returns every stage visit across the journey's
	// contact journeys.
	ListJourneyVisits(ctx context.Context, journeyID string) ([]domain.StageVisit, error)

	// UpsertSnapshot writes the snapshot, replacing any existing row for the
	// same (journey, snapshot date).
	UpsertSnapshot(ctx context.Context, s *domain.AnalyticsSnapshot) error

	// GetSnapshot returns the snapshot for a given day, or
	// ErrSnapshotNotFound.
	GetSnapshot(ctx context.Context, journeyID string, date time.Time) (*domain.AnalyticsSnapshot, error)

	// LatestSnapshot returns the most recent snapshot, or
	// ErrSnapshotNotFound.
	LatestSnapshot(ctx context.Context, journeyID string) (*domain.AnalyticsSnapshot, error)
}
