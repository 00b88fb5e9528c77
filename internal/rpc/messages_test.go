package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"timebox/internal/model"
)

func TestPatchPresenceSurvivesWire(t *testing.T) {
	empty := ""
	tests := []struct {
		name  string
		patch model.PlanPatch
	}{
		{"nothing", model.PlanPatch{}},
		{"empty notes only", model.PlanPatch{BrainDump: &empty}},
		{"empty task map only", model.PlanPatch{TimeSlotTasks: &model.TimeSlots{}}},
		{"everything", model.DayPlan{
			TopPriorities: [3]string{"A", "", "C"},
			BrainDump:     "x",
			TimeSlotTasks: model.TimeSlots{0: {HalfHour: "late"}, 9: {TopOfHour: "call"}},
		}.Patch()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &SaveDayPlanRequest{Date: "2024-05-01", Patch: tt.patch}
			var out SaveDayPlanRequest
			require.NoError(t, out.UnmarshalWire(in.MarshalWire()))

			assert.Equal(t, "2024-05-01", out.Date)
			assert.Equal(t, tt.patch.TopPriorities == nil, out.Patch.TopPriorities == nil)
			assert.Equal(t, tt.patch.BrainDump == nil, out.Patch.BrainDump == nil)
			assert.Equal(t, tt.patch.TimeSlotTasks == nil, out.Patch.TimeSlotTasks == nil)
			assert.Equal(t, model.EmptyDayPlan().Apply(tt.patch), model.EmptyDayPlan().Apply(out.Patch))
		})
	}
}

func TestPlanKeepsEmptyPriorityPositions(t *testing.T) {
	plan := model.EmptyDayPlan()
	plan.TopPriorities = [3]string{"", "", "third"}

	in := &GetDayPlanResponse{Found: true, Plan: plan}
	var out GetDayPlanResponse
	require.NoError(t, out.UnmarshalWire(in.MarshalWire()))

	assert.True(t, out.Found)
	assert.Equal(t, plan, out.Plan)
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	b := (&LoginRequest{Email: "a@b.com", Password: "pw"}).MarshalWire()
	b = protowire.AppendTag(b, 9, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 42)
	b = protowire.AppendTag(b, 10, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	var out LoginRequest
	require.NoError(t, out.UnmarshalWire(b))
	assert.Equal(t, LoginRequest{Email: "a@b.com", Password: "pw"}, out)
}

func TestTruncatedMessage(t *testing.T) {
	b := (&Session{Token: "tok", UserID: "u1"}).MarshalWire()
	var out Session
	assert.ErrorIs(t, out.UnmarshalWire(b[:len(b)-1]), errParse)
}

func TestCodecRejectsForeignTypes(t *testing.T) {
	_, err := Codec{}.Marshal("nope")
	assert.Error(t, err)
	assert.Error(t, Codec{}.Unmarshal(nil, new(int)))
	assert.Equal(t, "proto", Codec{}.Name())
}
