package store

import (
	"context"
	"time"

	"timebox/internal/metrics"
	"timebox/internal/model"
)

type instrumented struct {
	Backend
	m *metrics.Store
}

// WithMetrics wraps b so that plan reads and merges are counted and timed.
func WithMetrics(b Backend, m *metrics.Store) Backend {
	if m == nil {
		return b
	}
	return &instrumented{Backend: b, m: m}
}

func (i *instrumented) GetDayPlan(ctx context.Context, key model.PlanKey) (model.DayPlan, bool, error) {
	start := time.Now()
	p, found, err := i.Backend.GetDayPlan(ctx, key)
	switch {
	case err != nil:
		i.m.Observe("get", "error", time.Since(start))
	case !found:
		i.m.Observe("get", "absent", time.Since(start))
	default:
		i.m.Observe("get", "ok", time.Since(start))
	}
	return p, found, err
}

func (i *instrumented) MergeDayPlan(ctx context.Context, key model.PlanKey, patch model.PlanPatch) error {
	start := time.Now()
	err := i.Backend.MergeDayPlan(ctx, key, patch)
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.m.Observe("merge", result, time.Since(start))
	return err
}
