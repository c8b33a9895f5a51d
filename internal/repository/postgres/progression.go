package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

// ProgressionRepo implements progression.Repository against PostgreSQL.
//
// Enroll and Advance run inside a transaction. Advance carries a
// compare-and-set predicate on (status, current_stage_id) so two concurrent
// callers cannot both apply the same transition.
type ProgressionRepo struct{ db *sql.DB }

// NewProgressionRepo creates a Postgres-backed progression repository.
func NewProgressionRepo(db *sql.DB) *ProgressionRepo { return &ProgressionRepo{db: db} }

func (r *ProgressionRepo) GetJourney(ctx context.Context, orgID, journeyID string) (*domain.Journey, error) {
	j, err := NewJourneyRepo(r.db).GetJourney(ctx, orgID, journeyID)
	if errors.Is(err, journey.ErrNotFound) {
		return nil, progression.ErrJourneyNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *ProgressionRepo) GetStage(ctx context.Context, stageID string) (*domain.Stage, error) {
	s, err := NewJourneyRepo(r.db).GetStage(ctx, stageID)
	if errors.Is(err, journey.ErrStageNotFound) {
		return nil, progression.ErrStageNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ProgressionRepo) FindTransition(ctx context.Context, journeyID, fromStageID, toStageID string) (*domain.Transition, error) {
	t := &domain.Transition{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, from_stage_id, to_stage_id, trigger_type,
		       trigger_details, conditions, created_at
		FROM journey_transitions
		WHERE journey_id = $1 AND from_stage_id = $2 AND to_stage_id = $3
	`, journeyID, fromStageID, toStageID).Scan(
		&t.ID, &t.JourneyID, &t.FromStageID, &t.ToStageID, &t.TriggerType,
		&t.TriggerDetails, &t.Conditions, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, progression.ErrInvalidTransition
	}
	if err != nil {
		return nil, storeErr("find transition", err)
	}
	return t, nil
}

func (r *ProgressionRepo) Enroll(ctx context.Context, cj *domain.ContactJourney, visit *domain.StageVisit) (*domain.ContactJourney, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("begin enroll", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contact_journeys
			(id, organization_id, journey_id, contact_id, status,
			 current_stage_id, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, cj.ID, cj.OrganizationID, cj.JourneyID, cj.ContactID, cj.Status,
		cj.CurrentStageID, cj.StartedAt)
	if pqe, ok := err.(*pq.Error); ok && pqe.Code == "23505" {
		// Open enrollment already exists; the partial unique index on
		// (journey_id, contact_id) rejected the insert.
		existing := &domain.ContactJourney{}
		scanErr := r.db.QueryRowContext(ctx, `
			SELECT id, organization_id, journey_id, contact_id, status,
			       current_stage_id, started_at, completed_at, dropped_at,
			       COALESCE(drop_reason,''), updated_at
			FROM contact_journeys
			WHERE journey_id = $1 AND contact_id = $2 AND status IN ('active','paused')
		`, cj.JourneyID, cj.ContactID).Scan(
			&existing.ID, &existing.OrganizationID, &existing.JourneyID,
			&existing.ContactID, &existing.Status, &existing.CurrentStageID,
			&existing.StartedAt, &existing.CompletedAt, &existing.DroppedAt,
			&existing.DropReason, &existing.UpdatedAt,
		)
		if scanErr != nil {
			return nil, false, storeErr("load existing enrollment", scanErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, storeErr("enroll contact", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stage_visits (id, contact_journey_id, stage_id, entered_at)
		VALUES ($1, $2, $3, $4)
	`, visit.ID, visit.ContactJourneyID, visit.StageID, visit.EnteredAt)
	if err != nil {
		return nil, false, storeErr("insert initial visit", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, storeErr("commit enroll", err)
	}
	out := *cj
	return &out, true, nil
}

func (r *ProgressionRepo) GetContactJourney(ctx context.Context, orgID, id string) (*domain.ContactJourney, error) {
	cj := &domain.ContactJourney{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, journey_id, contact_id, status,
		       current_stage_id, started_at, completed_at, dropped_at,
		       COALESCE(drop_reason,''), updated_at
		FROM contact_journeys
		WHERE id = $1 AND organization_id = $2
	`, id, orgID).Scan(
		&cj.ID, &cj.OrganizationID, &cj.JourneyID, &cj.ContactID, &cj.Status,
		&cj.CurrentStageID, &cj.StartedAt, &cj.CompletedAt, &cj.DroppedAt,
		&cj.DropReason, &cj.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, progression.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get contact journey", err)
	}
	return cj, nil
}

func (r *ProgressionRepo) ListVisits(ctx context.Context, contactJourneyID string) ([]domain.StageVisit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contact_journey_id, stage_id, entered_at, exited_at, duration_seconds
		FROM stage_visits
		WHERE contact_journey_id = $1
		ORDER BY entered_at
	`, contactJourneyID)
	if err != nil {
		return nil, storeErr("list visits", err)
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

func (r *ProgressionRepo) ListEvents(ctx context.Context, contactJourneyID string) ([]domain.TransitionEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contact_journey_id, COALESCE(transition_id,''), from_stage_id,
		       to_stage_id, COALESCE(trigger_source,''), occurred_at
		FROM transition_events
		WHERE contact_journey_id = $1
		ORDER BY occurred_at
	`, contactJourneyID)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	defer rows.Close()

	var out []domain.TransitionEvent
	for rows.Next() {
		var e domain.TransitionEvent
		if err := rows.Scan(&e.ID, &e.ContactJourneyID, &e.TransitionID,
			&e.FromStageID, &e.ToStageID, &e.TriggerSource, &e.OccurredAt); err != nil {
			return nil, storeErr("scan event", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ProgressionRepo) ListForContact(ctx context.Context, orgID, contactID string) ([]domain.ContactJourney, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, journey_id, contact_id, status,
		       current_stage_id, started_at, completed_at, dropped_at,
		       COALESCE(drop_reason,''), updated_at
		FROM contact_journeys
		WHERE organization_id = $1 AND contact_id = $2
		ORDER BY started_at DESC
	`, orgID, contactID)
	if err != nil {
		return nil, storeErr("list for contact", err)
	}
	defer rows.Close()
	return scanContactJourneys(rows)
}

func (r *ProgressionRepo) ListContactsInStage(ctx context.Context, stageID string) ([]domain.ContactJourney, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cj.id, cj.organization_id, cj.journey_id, cj.contact_id, cj.status,
		       cj.current_stage_id, cj.started_at, cj.completed_at, cj.dropped_at,
		       COALESCE(cj.drop_reason,''), cj.updated_at
		FROM contact_journeys cj
		JOIN stage_visits v ON v.contact_journey_id = cj.id
		WHERE v.stage_id = $1 AND v.exited_at IS NULL
		ORDER BY cj.started_at
	`, stageID)
	if err != nil {
		return nil, storeErr("list contacts in stage", err)
	}
	defer rows.Close()
	return scanContactJourneys(rows)
}

func scanContactJourneys(rows *sql.Rows) ([]domain.ContactJourney, error) {
	var out []domain.ContactJourney
	for rows.Next() {
		var cj domain.ContactJourney
		if err := rows.Scan(
			&cj.ID, &cj.OrganizationID, &cj.JourneyID, &cj.ContactID, &cj.Status,
			&cj.CurrentStageID, &cj.StartedAt, &cj.CompletedAt, &cj.DroppedAt,
			&cj.DropReason, &cj.UpdatedAt,
		); err != nil {
			return nil, storeErr("scan contact journey", err)
		}
		out = append(out, cj)
	}
	return out, rows.Err()
}

func (r *ProgressionRepo) GetOpenVisit(ctx context.Context, contactJourneyID string) (*domain.StageVisit, error) {
	v := &domain.StageVisit{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, contact_journey_id, stage_id, entered_at, exited_at, duration_seconds
		FROM stage_visits
		WHERE contact_journey_id = $1 AND exited_at IS NULL
	`, contactJourneyID).Scan(&v.ID, &v.ContactJourneyID, &v.StageID,
		&v.EnteredAt, &v.ExitedAt, &v.DurationSeconds)
	if err == sql.ErrNoRows {
		return nil, progression.ErrNoOpenVisit
	}
	if err != nil {
		return nil, storeErr("get open visit", err)
	}
	return v, nil
}

func (r *ProgressionRepo) Advance(ctx context.Context, p progression.AdvanceParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin advance", err)
	}
	defer tx.Rollback()

	// CAS on the pointer row first. Zero rows means the record moved or
	// changed status since the caller read it.
	var q string
	if p.Complete {
		q = `UPDATE contact_journeys
		     SET current_stage_id = $1, status = 'completed', completed_at = $2, updated_at = $2
		     WHERE id = $3 AND current_stage_id = $4 AND status = 'active'`
	} else {
		q = `UPDATE contact_journeys
		     SET current_stage_id = $1, updated_at = $2
		     WHERE id = $3 AND current_stage_id = $4 AND status = 'active'`
	}
	res, err := tx.ExecContext(ctx, q, p.ToStageID, p.Now, p.ContactJourneyID, p.FromStageID)
	if err != nil {
		return storeErr("advance contact journey", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return progression.ErrConcurrentModification
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE stage_visits
		SET exited_at = $1, duration_seconds = EXTRACT(EPOCH FROM ($1 - entered_at))
		WHERE contact_journey_id = $2 AND exited_at IS NULL
	`, p.Now, p.ContactJourneyID)
	if err != nil {
		return storeErr("close open visit", err)
	}
	n, _ = res.RowsAffected()
	if n == 0 {
		return progression.ErrNoOpenVisit
	}

	if p.Complete {
		// Close the exit-stage visit in the same instant so completed
		// contacts don't count as currently in a stage.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_visits
				(id, contact_journey_id, stage_id, entered_at, exited_at, duration_seconds)
			VALUES ($1, $2, $3, $4, $4, 0)
		`, p.NewVisitID, p.ContactJourneyID, p.ToStageID, p.Now)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_visits (id, contact_journey_id, stage_id, entered_at)
			VALUES ($1, $2, $3, $4)
		`, p.NewVisitID, p.ContactJourneyID, p.ToStageID, p.Now)
	}
	if err != nil {
		return storeErr("insert new visit", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transition_events
			(id, contact_journey_id, transition_id, from_stage_id, to_stage_id,
			 trigger_source, occurred_at)
		VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $7)
	`, p.EventID, p.ContactJourneyID, p.TransitionID, p.FromStageID,
		p.ToStageID, p.TriggerSource, p.Now)
	if err != nil {
		return storeErr("insert transition event", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit advance", err)
	}
	return nil
}

func (r *ProgressionRepo) UpdateStatus(ctx context.Context, p progression.StatusParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin status update", err)
	}
	defer tx.Rollback()

	allowed := make([]string, len(p.AllowedFrom))
	for i, s := range p.AllowedFrom {
		allowed[i] = string(s)
	}

	var res sql.Result
	if p.To == domain.ProgressionDropped {
		res, err = tx.ExecContext(ctx, `
			UPDATE contact_journeys
			SET status = $1, dropped_at = $2, drop_reason = NULLIF($3,''), updated_at = $2
			WHERE id = $4 AND status = ANY($5)
		`, p.To, p.Now, p.DropReason, p.ContactJourneyID, pq.Array(allowed))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE contact_journeys
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = ANY($4)
		`, p.To, p.Now, p.ContactJourneyID, pq.Array(allowed))
	}
	if err != nil {
		return storeErr("update status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return progression.ErrConcurrentModification
	}

	if p.CloseOpenVisit {
		_, err = tx.ExecContext(ctx, `
			UPDATE stage_visits
			SET exited_at = $1, duration_seconds = EXTRACT(EPOCH FROM ($1 - entered_at))
			WHERE contact_journey_id = $2 AND exited_at IS NULL
		`, p.Now, p.ContactJourneyID)
		if err != nil {
			return storeErr("close open visit", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit status update", err)
	}
	return nil
}
