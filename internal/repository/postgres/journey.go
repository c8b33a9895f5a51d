package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/journey"
)

// JourneyRepo implements journey.Repository against PostgreSQL.
type JourneyRepo struct{ db *sql.DB }

// NewJourneyRepo creates a Postgres-backed journey repository.
func NewJourneyRepo(db *sql.DB) *JourneyRepo { return &JourneyRepo{db: db} }

func (r *JourneyRepo) GetJourney(ctx context.Context, orgID, id string) (*domain.Journey, error) {
	j := &domain.Journey{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, COALESCE(created_by_id,''), name,
		       COALESCE(description,''), active, created_at, updated_at
		FROM journeys
		WHERE id = $1 AND organization_id = $2
	`, id, orgID).Scan(
		&j.ID, &j.OrganizationID, &j.CreatedByID, &j.Name,
		&j.Description, &j.Active, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, journey.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get journey", err)
	}

	if j.Stages, err = r.listStages(ctx, id); err != nil {
		return nil, err
	}
	if j.Transitions, err = r.listTransitions(ctx, id); err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JourneyRepo) listStages(ctx context.Context, journeyID string) ([]domain.Stage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, journey_id, name, COALESCE(description,''), stage_order,
		       expected_duration_hours, conversion_goal,
		       is_entry_point, is_exit_point, created_at, updated_at
		FROM journey_stages
		WHERE journey_id = $1
		ORDER BY stage_order, name
	`, journeyID)
	if err != nil {
		return nil, storeErr("list stages", err)
	}
	defer rows.Close()

	var out []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(
			&s.ID, &s.JourneyID, &s.Name, &s.Description, &s.Order,
			&s.ExpectedDurationHours, &s.ConversionGoal,
			&s.IsEntryPoint, &s.IsExitPoint, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, storeErr("scan stage", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *JourneyRepo) listTransitions(ctx context.Context, journeyID string) ([]domain.Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, journey_id, from_stage_id, to_stage_id, trigger_type,
		       trigger_details, conditions, created_at
		FROM journey_transitions
		WHERE journey_id = $1
		ORDER BY created_at
	`, journeyID)
	if err != nil {
		return nil, storeErr("list transitions", err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(
			&t.ID, &t.JourneyID, &t.FromStageID, &t.ToStageID, &t.TriggerType,
			&t.TriggerDetails, &t.Conditions, &t.CreatedAt,
		); err != nil {
			return nil, storeErr("scan transition", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *JourneyRepo) ListJourneys(ctx context.Context, orgID string, f journey.ListFilter) ([]domain.Journey, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE organization_id = $1"
	args := []interface{}{orgID}
	idx := 2
	if f.ActiveOnly {
		where += " AND active = true"
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM journeys "+where, args...).Scan(&total); err != nil {
		return nil, 0, storeErr("count journeys", err)
	}

	q := fmt.Sprintf(`
		SELECT id, organization_id, COALESCE(created_by_id,''), name,
		       COALESCE(description,''), active, created_at, updated_at
		FROM journeys %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, storeErr("list journeys", err)
	}
	defer rows.Close()

	var out []domain.Journey
	for rows.Next() {
		var j domain.Journey
		if err := rows.Scan(
			&j.ID, &j.OrganizationID, &j.CreatedByID, &j.Name,
			&j.Description, &j.Active, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, 0, storeErr("scan journey", err)
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

func (r *JourneyRepo) CreateJourney(ctx context.Context, j *domain.Journey) (string, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeErr("begin create journey", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO journeys
			(id, organization_id, created_by_id, name, description, active, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, NOW(), NOW())
	`, j.ID, j.OrganizationID, j.CreatedByID, j.Name, j.Description, j.Active)
	if err != nil {
		return "", storeErr("create journey", err)
	}

	for i := range j.Stages {
		s := &j.Stages[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journey_stages
				(id, journey_id, name, description, stage_order,
				 expected_duration_hours, conversion_goal,
				 is_entry_point, is_exit_point, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		`, s.ID, j.ID, s.Name, s.Description, s.Order,
			s.ExpectedDurationHours, s.ConversionGoal, s.IsEntryPoint, s.IsExitPoint)
		if err != nil {
			return "", storeErr("create stage", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", storeErr("commit create journey", err)
	}
	return j.ID, nil
}

func (r *JourneyRepo) UpdateJourney(ctx context.Context, orgID, id string, u journey.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE journeys SET %s, updated_at = NOW() WHERE id = $%d AND organization_id = $%d",
		strings.Join(sets, ", "), idx, idx+1)
	args = append(args, id, orgID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storeErr("update journey", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrNotFound
	}
	return nil
}

func (r *JourneyRepo) DeleteJourney(ctx context.Context, orgID, id string) error {
	// Child tables cascade via foreign keys.
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM journeys WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	if err != nil {
		return storeErr("delete journey", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrNotFound
	}
	return nil
}

func (r *JourneyRepo) SetJourneyActive(ctx context.Context, orgID, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE journeys SET active = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
	`, active, id, orgID)
	if err != nil {
		return storeErr("set journey active", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrNotFound
	}
	return nil
}

func (r *JourneyRepo) GetStage(ctx context.Context, id string) (*domain.Stage, error) {
	s := &domain.Stage{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, name, COALESCE(description,''), stage_order,
		       expected_duration_hours, conversion_goal,
		       is_entry_point, is_exit_point, created_at, updated_at
		FROM journey_stages
		WHERE id = $1
	`, id).Scan(
		&s.ID, &s.JourneyID, &s.Name, &s.Description, &s.Order,
		&s.ExpectedDurationHours, &s.ConversionGoal,
		&s.IsEntryPoint, &s.IsExitPoint, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, journey.ErrStageNotFound
	}
	if err != nil {
		return nil, storeErr("get stage", err)
	}
	return s, nil
}

func (r *JourneyRepo) CreateStage(ctx context.Context, s *domain.Stage) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journey_stages
			(id, journey_id, name, description, stage_order,
			 expected_duration_hours, conversion_goal,
			 is_entry_point, is_exit_point, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, s.ID, s.JourneyID, s.Name, s.Description, s.Order,
		s.ExpectedDurationHours, s.ConversionGoal, s.IsEntryPoint, s.IsExitPoint)
	if err != nil {
		return "", storeErr("create stage", err)
	}
	return s.ID, nil
}

func (r *JourneyRepo) UpdateStage(ctx context.Context, id string, u journey.StageUpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Order != nil {
		add("stage_order", *u.Order)
	}
	if u.SetExpectedDuration {
		add("expected_duration_hours", u.ExpectedDurationHours)
	}
	if u.SetConversionGoal {
		add("conversion_goal", u.ConversionGoal)
	}
	if u.IsEntryPoint != nil {
		add("is_entry_point", *u.IsEntryPoint)
	}
	if u.IsExitPoint != nil {
		add("is_exit_point", *u.IsExitPoint)
	}
	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE journey_stages SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storeErr("update stage", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrStageNotFound
	}
	return nil
}

func (r *JourneyRepo) DeleteStage(ctx context.Context, id string) error {
	// Transitions referencing the stage cascade via foreign keys.
	res, err := r.db.ExecContext(ctx, `DELETE FROM journey_stages WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete stage", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrStageNotFound
	}
	return nil
}

func (r *JourneyRepo) CountOpenVisits(ctx context.Context, stageID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stage_visits WHERE stage_id = $1 AND exited_at IS NULL
	`, stageID).Scan(&n)
	if err != nil {
		return 0, storeErr("count open visits", err)
	}
	return n, nil
}

func (r *JourneyRepo) GetTransition(ctx context.Context, id string) (*domain.Transition, error) {
	t := &domain.Transition{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, from_stage_id, to_stage_id, trigger_type,
		       trigger_details, conditions, created_at
		FROM journey_transitions
		WHERE id = $1
	`, id).Scan(
		&t.ID, &t.JourneyID, &t.FromStageID, &t.ToStageID, &t.TriggerType,
		&t.TriggerDetails, &t.Conditions, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, journey.ErrTransitionNotFound
	}
	if err != nil {
		return nil, storeErr("get transition", err)
	}
	return t, nil
}

func (r *JourneyRepo) CreateTransition(ctx context.Context, t *domain.Transition) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journey_transitions
			(id, journey_id, from_stage_id, to_stage_id, trigger_type,
			 trigger_details, conditions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, t.ID, t.JourneyID, t.FromStageID, t.ToStageID, t.TriggerType,
		nullJSON(t.TriggerDetails), nullJSON(t.Conditions))
	if err != nil {
		return "", storeErr("create transition", err)
	}
	return t.ID, nil
}

func (r *JourneyRepo) UpdateTransition(ctx context.Context, id string, u journey.TransitionUpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.TriggerType != nil {
		add("trigger_type", *u.TriggerType)
	}
	if u.TriggerDetails != nil {
		add("trigger_details", nullJSON(u.TriggerDetails))
	}
	if u.Conditions != nil {
		add("conditions", nullJSON(u.Conditions))
	}
	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE journey_transitions SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storeErr("update transition", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrTransitionNotFound
	}
	return nil
}

func (r *JourneyRepo) DeleteTransition(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM journey_transitions WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete transition", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return journey.ErrTransitionNotFound
	}
	return nil
}

// nullJSON maps an empty payload to SQL NULL so jsonb columns don't reject
// the empty string.
func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
