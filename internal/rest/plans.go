package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"timebox/internal/model"
	"timebox/internal/rpc"
)

type planResponse struct {
	Date  string        `json:"date"`
	Found bool          `json:"found"`
	Plan  model.DayPlan `json:"plan"`
}

func (a *api) getPlan(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	resp, err := a.planner.GetDayPlan(r.Context(), &rpc.GetDayPlanRequest{Date: date})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Date: date, Found: resp.Found, Plan: resp.Plan})
}

// planPatchRequest is model.PlanPatch with priorities as a slice, so a
// list of the wrong length is refused instead of padded or cut.
type planPatchRequest struct {
	TopPriorities *[]string        `json:"topPriorities" validate:"omitnil,len=3"`
	BrainDump     *string          `json:"brainDump"`
	TimeSlotTasks *model.TimeSlots `json:"timeSlotTasks"`
}

func (r planPatchRequest) patch() model.PlanPatch {
	p := model.PlanPatch{BrainDump: r.BrainDump, TimeSlotTasks: r.TimeSlotTasks}
	if r.TopPriorities != nil {
		var prio [model.PriorityCount]string
		copy(prio[:], *r.TopPriorities)
		p.TopPriorities = &prio
	}
	return p
}

// patchPlan merges the supplied fields; absent fields stay as they are.
func (a *api) patchPlan(w http.ResponseWriter, r *http.Request) {
	var req planPatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	patch := req.patch()
	date := chi.URLParam(r, "date")
	if _, err := a.planner.SaveDayPlan(r.Context(), &rpc.SaveDayPlanRequest{Date: date, Patch: patch}); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
