package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/analytics"
	"github.com/marketsage/journey-engine/internal/service/journey"
)

// AnalyticsRepo implements analytics.Repository against PostgreSQL. Per-stage
// figures are stored as a jsonb column on the snapshot row rather than a
// child table; snapshots are immutable once the day rolls over.
type AnalyticsRepo struct{ db *sql.DB }

// NewAnalyticsRepo creates a Postgres-backed analytics repository.
func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

func (r *AnalyticsRepo) GetJourney(ctx context.Context, orgID, journeyID string) (*domain.Journey, error) {
	j, err := NewJourneyRepo(r.db).GetJourney(ctx, orgID, journeyID)
	if errors.Is(err, journey.ErrNotFound) {
		return nil, analytics.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *AnalyticsRepo) ListContactJourneys(ctx context.Context, journeyID string) ([]domain.ContactJourney, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, journey_id, contact_id, status,
		       current_stage_id, started_at, completed_at, dropped_at,
		       COALESCE(drop_reason,''), updated_at
		FROM contact_journeys
		WHERE journey_id = $1
	`, journeyID)
	if err != nil {
		return nil, storeErr("list contact journeys", err)
	}
	defer rows.Close()
	return scanContactJourneys(rows)
}

func (r *AnalyticsRepo) ListJourneyVisits(ctx context.Context, journeyID string) ([]domain.StageVisit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.contact_journey_id, v.stage_id, v.entered_at,
		       v.exited_at, v.duration_seconds
		FROM stage_visits v
		JOIN contact_journeys cj ON cj.id = v.contact_journey_id
		WHERE cj.journey_id = $1
	`, journeyID)
	if err != nil {
		return nil, storeErr("list journey visits", err)
	}
	defer rows.Close()

	var out []domain.StageVisit
	for rows.Next() {
		var v domain.StageVisit
		if err := rows.Scan(&v.ID, &v.ContactJourneyID, &v.StageID,
			&v.EnteredAt, &v.ExitedAt, &v.DurationSeconds); err != nil {
			return nil, storeErr("scan visit", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepo) UpsertSnapshot(ctx context.Context, s *domain.AnalyticsSnapshot) error {
	stages, err := json.Marshal(s.Stages)
	if err != nil {
		return fmt.Errorf("marshal stage snapshots: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journey_analytics_snapshots
			(id, journey_id, snapshot_date, total_contacts, active_contacts,
			 paused_contacts, completed_contacts, dropped_contacts,
			 conversion_rate, average_duration_hours, stages, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (journey_id, snapshot_date) DO UPDATE SET
			total_contacts = EXCLUDED.total_contacts,
			active_contacts = EXCLUDED.active_contacts,
			paused_contacts = EXCLUDED.paused_contacts,
			completed_contacts = EXCLUDED.completed_contacts,
			dropped_contacts = EXCLUDED.dropped_contacts,
			conversion_rate = EXCLUDED.conversion_rate,
			average_duration_hours = EXCLUDED.average_duration_hours,
			stages = EXCLUDED.stages,
			computed_at = EXCLUDED.computed_at
	`, s.ID, s.JourneyID, s.SnapshotDate.UTC().Format("2006-01-02"),
		s.TotalContacts, s.ActiveContacts, s.PausedContacts,
		s.CompletedContacts, s.DroppedContacts,
		s.ConversionRate, s.AverageDurationHours, stages, s.ComputedAt)
	if err != nil {
		return storeErr("upsert snapshot", err)
	}
	return nil
}

func (r *AnalyticsRepo) GetSnapshot(ctx context.Context, journeyID string, date time.Time) (*domain.AnalyticsSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, snapshot_date, total_contacts, active_contacts,
		       paused_contacts, completed_contacts, dropped_contacts,
		       conversion_rate, average_duration_hours, stages, computed_at
		FROM journey_analytics_snapshots
		WHERE journey_id = $1 AND snapshot_date = $2
	`, journeyID, date.UTC().Format("2006-01-02"))
	return scanSnapshot(row)
}

func (r *AnalyticsRepo) LatestSnapshot(ctx context.Context, journeyID string) (*domain.AnalyticsSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, snapshot_date, total_contacts, active_contacts,
		       paused_contacts, completed_contacts, dropped_contacts,
		       conversion_rate, average_duration_hours, stages, computed_at
		FROM journey_analytics_snapshots
		WHERE journey_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, journeyID)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (*domain.AnalyticsSnapshot, error) {
	s := &domain.AnalyticsSnapshot{}
	var stages []byte
	err := row.Scan(
		&s.ID, &s.JourneyID, &s.SnapshotDate, &s.TotalContacts, &s.ActiveContacts,
		&s.PausedContacts, &s.CompletedContacts, &s.DroppedContacts,
		&s.ConversionRate, &s.AverageDurationHours, &stages, &s.ComputedAt,
	)
	if err == sql.ErrNoRows {
		return nil, analytics.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, storeErr("scan snapshot", err)
	}
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &s.Stages); err != nil {
			return nil, fmt.Errorf("unmarshal stage snapshots: %w", err)
		}
	}
	return s, nil
}
