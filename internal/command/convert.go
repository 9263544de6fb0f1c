package command

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/stellar-auth/auth"
)

// Field names of the transit schedule and status structs.
const (
	fieldWindowStart = "window_start"
	fieldWindowEnd   = "window_end"
	fieldTargetYaw   = "target_yaw"
)

// WindowToStruct encodes a mission window as a transit schedule.
func WindowToStruct(w auth.MissionWindow) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldWindowStart: structpb.NewNumberValue(float64(w.Start)),
		fieldWindowEnd:   structpb.NewNumberValue(float64(w.End)),
		fieldTargetYaw:   structpb.NewNumberValue(float64(w.TargetYaw)),
	}}
}

// WindowFromStruct decodes a transit schedule. It checks shape only; range
// checks belong to the engine.
func WindowFromStruct(s *structpb.Struct) (auth.MissionWindow, error) {
	if s == nil {
		return auth.MissionWindow{}, fmt.Errorf("%w: transit schedule is required", ErrInvalidRequest)
	}
	start, err := integralField(s, fieldWindowStart)
	if err != nil {
		return auth.MissionWindow{}, err
	}
	end, err := integralField(s, fieldWindowEnd)
	if err != nil {
		return auth.MissionWindow{}, err
	}
	yaw, err := numberField(s, fieldTargetYaw)
	if err != nil {
		return auth.MissionWindow{}, err
	}
	return auth.MissionWindow{Start: start, End: end, TargetYaw: float32(yaw)}, nil
}

func numberField(s *structpb.Struct, name string) (float64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidRequest, name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, name)
	}
	return n.NumberValue, nil
}

func integralField(s *structpb.Struct, name string) (int64, error) {
	f, err := numberField(s, name)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %s must be an integer number of seconds", ErrInvalidRequest, name)
	}
	return int64(f), nil
}

// StatusToStruct encodes an engine status report.
func StatusToStruct(st auth.Status) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"state":                  structpb.NewStringValue(st.State.String()),
		"state_code":             structpb.NewNumberValue(float64(st.State)),
		"persistence":            structpb.NewNumberValue(float64(st.Persistence)),
		"window_configured":      structpb.NewBoolValue(st.WindowConfigured),
		"window_version":         structpb.NewNumberValue(float64(st.WindowVersion)),
		"replay_guard_armed":     structpb.NewBoolValue(st.ReplayGuardArmed),
		"last_auth_window_start": structpb.NewNumberValue(float64(st.LastAuthWindowStart)),
		"heartbeat":              structpb.NewNumberValue(float64(st.Heartbeat)),
		"scrubs":                 structpb.NewNumberValue(float64(st.Scrubs)),
		"tmr_failures":           structpb.NewNumberValue(float64(st.TMRFailures)),
		"health":                 structpb.NewNumberValue(float64(st.Health)),
		"fault_latched":          structpb.NewBoolValue(st.FaultLatched),
	}
	if st.WindowConfigured {
		fields[fieldWindowStart] = structpb.NewNumberValue(float64(st.Window.Start))
		fields[fieldWindowEnd] = structpb.NewNumberValue(float64(st.Window.End))
		fields[fieldTargetYaw] = structpb.NewNumberValue(float64(st.Window.TargetYaw))
	}
	return &structpb.Struct{Fields: fields}
}
