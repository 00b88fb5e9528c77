package handler

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"timebox/internal/model"
	"timebox/internal/rpc"
)

const (
	maxPriorityLen = 200
	maxTaskLen     = 200
	maxNotesLen    = 20000
)

// GetDayPlan returns the caller's plan for req.Date. A missing record is not
// an error: Found is false and Plan is empty.
func (h *Handler) GetDayPlan(ctx context.Context, req *rpc.GetDayPlanRequest) (*rpc.GetDayPlanResponse, error) {
	key, err := h.key(ctx, req.Date)
	if err != nil {
		return nil, err
	}

	p, found, err := h.store.GetDayPlan(ctx, key)
	if err != nil {
		return nil, internal(h.log.With(zap.String("key", key.String())), "get day plan", err)
	}
	if !found {
		p = model.EmptyDayPlan()
	}
	return &rpc.GetDayPlanResponse{Found: found, Plan: p}, nil
}

// SaveDayPlan merges req.Patch into the caller's plan for req.Date, creating
// the record if needed. Fields absent from the patch are left untouched.
func (h *Handler) SaveDayPlan(ctx context.Context, req *rpc.SaveDayPlanRequest) (*rpc.Empty, error) {
	key, err := h.key(ctx, req.Date)
	if err != nil {
		return nil, err
	}
	if err := ValidatePatch(req.Patch); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Patch.IsEmpty() {
		return &rpc.Empty{}, nil
	}

	if err := h.store.MergeDayPlan(ctx, key, req.Patch); err != nil {
		return nil, internal(h.log.With(zap.String("key", key.String())), "merge day plan", err)
	}
	h.log.Debug("day plan saved", zap.String("key", key.String()))
	return &rpc.Empty{}, nil
}

// key scopes every plan request to the authenticated caller.
func (h *Handler) key(ctx context.Context, date string) (model.PlanKey, error) {
	userID, err := uid(ctx)
	if err != nil {
		return model.PlanKey{}, err
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return model.PlanKey{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return model.NewPlanKey(userID, d), nil
}

// ValidatePatch bounds the size of a patch and the hours it may name.
func ValidatePatch(p model.PlanPatch) error {
	if p.TopPriorities != nil {
		for i, s := range p.TopPriorities {
			if utf8.RuneCountInString(s) > maxPriorityLen {
				return fmt.Errorf("priority %d longer than %d characters", i+1, maxPriorityLen)
			}
		}
	}
	if p.BrainDump != nil && utf8.RuneCountInString(*p.BrainDump) > maxNotesLen {
		return fmt.Errorf("brain dump longer than %d characters", maxNotesLen)
	}
	if p.TimeSlotTasks != nil {
		for hour, t := range *p.TimeSlotTasks {
			if hour < 0 || hour > 23 {
				return fmt.Errorf("hour %d out of range", hour)
			}
			if utf8.RuneCountInString(t.TopOfHour) > maxTaskLen || utf8.RuneCountInString(t.HalfHour) > maxTaskLen {
				return fmt.Errorf("task at %d longer than %d characters", hour, maxTaskLen)
			}
		}
	}
	return nil
}
