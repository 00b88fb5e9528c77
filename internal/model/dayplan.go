package model

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// DateLayout is the civil-day format used in keys and on the wire.
const DateLayout = "2006-01-02"

// PriorityCount is the fixed number of top priorities in a plan.
const PriorityCount = 3

var (
	ErrBadDate = errors.New("date must be yyyy-mm-dd")
	ErrBadSlot = errors.New("slot must be 00 or 30")
)

// Slot names one half of an hour in the task grid.
type Slot string

const (
	TopOfHour Slot = "00"
	HalfHour  Slot = "30"
)

func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case TopOfHour, HalfHour:
		return Slot(s), nil
	}
	return "", ErrBadSlot
}

// SlotTasks holds the two task strings for one hour.
type SlotTasks struct {
	TopOfHour string `json:"00,omitempty"`
	HalfHour  string `json:"30,omitempty"`
}

func (t SlotTasks) Get(s Slot) string {
	if s == HalfHour {
		return t.HalfHour
	}
	return t.TopOfHour
}

func (t SlotTasks) With(s Slot, v string) SlotTasks {
	if s == HalfHour {
		t.HalfHour = v
	} else {
		t.TopOfHour = v
	}
	return t
}

// TimeSlots maps an hour of the day to its tasks.
type TimeSlots map[int]SlotTasks

// DayPlan is one user's plan for one calendar day.
type DayPlan struct {
	TopPriorities [PriorityCount]string `json:"topPriorities"`
	BrainDump     string                `json:"brainDump"`
	TimeSlotTasks TimeSlots             `json:"timeSlotTasks"`
}

// EmptyDayPlan is what a missing record reads as.
func EmptyDayPlan() DayPlan {
	return DayPlan{TimeSlotTasks: TimeSlots{}}
}

func (p DayPlan) Clone() DayPlan {
	out := p
	out.TimeSlotTasks = make(TimeSlots, len(p.TimeSlotTasks))
	maps.Copy(out.TimeSlotTasks, p.TimeSlotTasks)
	return out
}

// WithTask returns a copy of p with one half-hour cell replaced.
func (p DayPlan) WithTask(hour int, s Slot, v string) DayPlan {
	out := p.Clone()
	out.TimeSlotTasks[hour] = out.TimeSlotTasks[hour].With(s, v)
	return out
}

// Patch returns every field of p as a merge patch.
func (p DayPlan) Patch() PlanPatch {
	c := p.Clone()
	prio := c.TopPriorities
	notes := c.BrainDump
	tasks := c.TimeSlotTasks
	return PlanPatch{TopPriorities: &prio, BrainDump: &notes, TimeSlotTasks: &tasks}
}

// Apply merges patch into a copy of p. Absent fields are left as they are.
func (p DayPlan) Apply(patch PlanPatch) DayPlan {
	out := p.Clone()
	if patch.TopPriorities != nil {
		out.TopPriorities = *patch.TopPriorities
	}
	if patch.BrainDump != nil {
		out.BrainDump = *patch.BrainDump
	}
	if patch.TimeSlotTasks != nil {
		out.TimeSlotTasks = make(TimeSlots, len(*patch.TimeSlotTasks))
		maps.Copy(out.TimeSlotTasks, *patch.TimeSlotTasks)
	}
	return out
}

// PlanPatch is a partial DayPlan; nil fields are not written.
type PlanPatch struct {
	TopPriorities *[PriorityCount]string `json:"topPriorities,omitempty"`
	BrainDump     *string                `json:"brainDump,omitempty"`
	TimeSlotTasks *TimeSlots             `json:"timeSlotTasks,omitempty"`
}

func (p PlanPatch) IsEmpty() bool {
	return p.TopPriorities == nil && p.BrainDump == nil && p.TimeSlotTasks == nil
}

// PlanKey identifies a DayPlan record.
type PlanKey struct {
	UserID string
	Date   time.Time
}

func NewPlanKey(userID string, date time.Time) PlanKey {
	return PlanKey{UserID: userID, Date: Day(date)}
}

// String is the document id: {userID}_{yyyy-MM-dd}.
func (k PlanKey) String() string {
	return k.UserID + "_" + FormatDate(k.Date)
}

func (k PlanKey) IsZero() bool {
	return k.UserID == "" || k.Date.IsZero()
}

func (k PlanKey) Equal(o PlanKey) bool {
	return k.UserID == o.UserID && k.Date.Equal(o.Date)
}

// Day strips the clock from t, keeping its calendar date.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return t, nil
}
