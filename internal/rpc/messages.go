package rpc

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"timebox/internal/model"
)

// RegisterRequest: email=1 password=2 name=3.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

func (m *RegisterRequest) MarshalWire() []byte {
	var out []byte
	out = appendString(out, 1, m.Email)
	out = appendString(out, 2, m.Password)
	out = appendString(out, 3, m.Name)
	return out
}

func (m *RegisterRequest) UnmarshalWire(b []byte) error {
	*m = RegisterRequest{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Email = string(f.bytes)
		case 2:
			m.Password = string(f.bytes)
		case 3:
			m.Name = string(f.bytes)
		}
		return nil
	})
}

// LoginRequest: email=1 password=2.
type LoginRequest struct {
	Email    string
	Password string
}

func (m *LoginRequest) MarshalWire() []byte {
	var out []byte
	out = appendString(out, 1, m.Email)
	out = appendString(out, 2, m.Password)
	return out
}

func (m *LoginRequest) UnmarshalWire(b []byte) error {
	*m = LoginRequest{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Email = string(f.bytes)
		case 2:
			m.Password = string(f.bytes)
		}
		return nil
	})
}

// RefreshRequest: refresh_token=1.
type RefreshRequest struct {
	RefreshToken string
}

func (m *RefreshRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.RefreshToken)
}

func (m *RefreshRequest) UnmarshalWire(b []byte) error {
	*m = RefreshRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.RefreshToken = string(f.bytes)
		}
		return nil
	})
}

// Session is returned by Register, Login and Refresh:
// token=1 user_id=2 name=3 refresh_token=4.
type Session struct {
	Token        string
	UserID       string
	Name         string
	RefreshToken string
}

func (m *Session) MarshalWire() []byte {
	var out []byte
	out = appendString(out, 1, m.Token)
	out = appendString(out, 2, m.UserID)
	out = appendString(out, 3, m.Name)
	out = appendString(out, 4, m.RefreshToken)
	return out
}

func (m *Session) UnmarshalWire(b []byte) error {
	*m = Session{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Token = string(f.bytes)
		case 2:
			m.UserID = string(f.bytes)
		case 3:
			m.Name = string(f.bytes)
		case 4:
			m.RefreshToken = string(f.bytes)
		}
		return nil
	})
}

// Empty is used where a call carries no fields.
type Empty struct{}

func (*Empty) MarshalWire() []byte        { return nil }
func (*Empty) UnmarshalWire([]byte) error { return nil }

// GetDayPlanRequest: date=1 (yyyy-mm-dd).
type GetDayPlanRequest struct {
	Date string
}

func (m *GetDayPlanRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.Date)
}

func (m *GetDayPlanRequest) UnmarshalWire(b []byte) error {
	*m = GetDayPlanRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			m.Date = string(f.bytes)
		}
		return nil
	})
}

// GetDayPlanResponse: found=1 plan=2. Plan is the empty plan when !Found.
type GetDayPlanResponse struct {
	Found bool
	Plan  model.DayPlan
}

func (m *GetDayPlanResponse) MarshalWire() []byte {
	var out []byte
	out = appendBool(out, 1, m.Found)
	out = appendMessage(out, 2, marshalPlan(m.Plan))
	return out
}

func (m *GetDayPlanResponse) UnmarshalWire(b []byte) error {
	*m = GetDayPlanResponse{Plan: model.EmptyDayPlan()}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Found = f.varint != 0
		case 2:
			p, err := unmarshalPlan(f.bytes)
			if err != nil {
				return err
			}
			m.Plan = p
		}
		return nil
	})
}

// SaveDayPlanRequest: date=1 patch=2.
type SaveDayPlanRequest struct {
	Date  string
	Patch model.PlanPatch
}

func (m *SaveDayPlanRequest) MarshalWire() []byte {
	var out []byte
	out = appendString(out, 1, m.Date)
	out = appendMessage(out, 2, marshalPatch(m.Patch))
	return out
}

func (m *SaveDayPlanRequest) UnmarshalWire(b []byte) error {
	*m = SaveDayPlanRequest{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Date = string(f.bytes)
		case 2:
			p, err := unmarshalPatch(f.bytes)
			if err != nil {
				return err
			}
			m.Patch = p
		}
		return nil
	})
}

// DayPlan: top_priorities=1 (repeated, always 3) brain_dump=2
// time_slot_tasks=3 (repeated TimeSlot).
func marshalPlan(p model.DayPlan) []byte {
	var out []byte
	for _, s := range p.TopPriorities {
		out = appendPresent(out, 1, s)
	}
	out = appendString(out, 2, p.BrainDump)
	return appendSlots(out, 3, p.TimeSlotTasks)
}

func unmarshalPlan(b []byte) (model.DayPlan, error) {
	p := model.EmptyDayPlan()
	i := 0
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			if i < model.PriorityCount {
				p.TopPriorities[i] = string(f.bytes)
			}
			i++
		case 2:
			p.BrainDump = string(f.bytes)
		case 3:
			return decodeSlot(f.bytes, p.TimeSlotTasks)
		}
		return nil
	})
	return p, err
}

// PlanPatch: top_priorities=1 (Priorities{values=1}) brain_dump=2 (presence)
// time_slot_tasks=3 (TimeSlots{slots=1}). Absent fields stay nil.
func marshalPatch(p model.PlanPatch) []byte {
	var out []byte
	if p.TopPriorities != nil {
		var inner []byte
		for _, s := range p.TopPriorities {
			inner = appendPresent(inner, 1, s)
		}
		out = appendMessage(out, 1, inner)
	}
	if p.BrainDump != nil {
		out = appendPresent(out, 2, *p.BrainDump)
	}
	if p.TimeSlotTasks != nil {
		out = appendMessage(out, 3, appendSlots(nil, 1, *p.TimeSlotTasks))
	}
	return out
}

func unmarshalPatch(b []byte) (model.PlanPatch, error) {
	var p model.PlanPatch
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			var prio [model.PriorityCount]string
			i := 0
			if err := walk(f.bytes, func(v field) error {
				if v.num == 1 && i < model.PriorityCount {
					prio[i] = string(v.bytes)
				}
				i++
				return nil
			}); err != nil {
				return err
			}
			p.TopPriorities = &prio
		case 2:
			s := string(f.bytes)
			p.BrainDump = &s
		case 3:
			slots := model.TimeSlots{}
			if err := walk(f.bytes, func(v field) error {
				if v.num == 1 {
					return decodeSlot(v.bytes, slots)
				}
				return nil
			}); err != nil {
				return err
			}
			p.TimeSlotTasks = &slots
		}
		return nil
	})
	return p, err
}

// TimeSlot: hour=1 top_of_hour=2 half_hour=3. Hours are written in order so
// the encoding is stable.
func appendSlots(out []byte, num protowire.Number, slots model.TimeSlots) []byte {
	hours := make([]int, 0, len(slots))
	for h := range slots {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		t := slots[h]
		var inner []byte
		inner = appendVarint(inner, 1, uint64(int64(h)))
		inner = appendString(inner, 2, t.TopOfHour)
		inner = appendString(inner, 3, t.HalfHour)
		out = appendMessage(out, num, inner)
	}
	return out
}

func decodeSlot(b []byte, into model.TimeSlots) error {
	var (
		hour int
		t    model.SlotTasks
	)
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			hour = int(int64(f.varint))
		case 2:
			t.TopOfHour = string(f.bytes)
		case 3:
			t.HalfHour = string(f.bytes)
		}
		return nil
	})
	if err != nil {
		return err
	}
	into[hour] = t
	return nil
}
