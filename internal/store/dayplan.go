package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"timebox/internal/model"
)

func (s *Store) GetDayPlan(ctx context.Context, key model.PlanKey) (model.DayPlan, bool, error) {
	var (
		prio, tasks []byte
		notes       string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT top_priorities, brain_dump, time_slot_tasks
		 FROM day_plans WHERE id = $1 AND user_id = $2`,
		key.String(), key.UserID,
	).Scan(&prio, &notes, &tasks)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EmptyDayPlan(), false, nil
	}
	if err != nil {
		return model.DayPlan{}, false, err
	}
	p, err := decodePlan(prio, notes, tasks)
	return p, err == nil, err
}

// MergeDayPlan creates the record on first write; later writes only touch the
// columns present in patch.
func (s *Store) MergeDayPlan(ctx context.Context, key model.PlanKey, patch model.PlanPatch) error {
	c, err := encodePatch(patch)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO day_plans (id, user_id, plan_date, top_priorities, brain_dump, time_slot_tasks)
		 VALUES ($1, $2, $3,
		         COALESCE($4::jsonb, '["","",""]'::jsonb),
		         COALESCE($5::text, ''),
		         COALESCE($6::jsonb, '{}'::jsonb))
		 ON CONFLICT (id) DO UPDATE SET
		   top_priorities  = COALESCE($4::jsonb, day_plans.top_priorities),
		   brain_dump      = COALESCE($5::text, day_plans.brain_dump),
		   time_slot_tasks = COALESCE($6::jsonb, day_plans.time_slot_tasks),
		   updated_at      = NOW()`,
		key.String(), key.UserID, key.Date, c.priorities, c.notes, c.tasks,
	)
	return err
}
