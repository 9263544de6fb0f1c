package auth

import (
	"fmt"
	"math"
)

// MissionWindow is the scheduled transit: an inclusive interval of absolute
// seconds and the yaw the spacecraft must hold inside it.
type MissionWindow struct {
	Start     int64   `json:"window_start"`
	End       int64   `json:"window_end"`
	TargetYaw float32 `json:"target_yaw"`
}

// Contains reports whether now lies in [Start, End].
func (w MissionWindow) Contains(now int64) bool {
	return now >= w.Start && now <= w.End
}

// Normalize validates w and returns a copy with the target yaw wrapped into
// [0, 360).
func (w MissionWindow) Normalize() (MissionWindow, error) {
	if w.Start < 0 {
		return MissionWindow{}, fmt.Errorf("%w: window_start %d is negative", ErrInvalidWindow, w.Start)
	}
	if w.Start > w.End {
		return MissionWindow{}, fmt.Errorf("%w: window_start %d is after window_end %d", ErrInvalidWindow, w.Start, w.End)
	}
	yaw := float64(w.TargetYaw)
	if math.IsNaN(yaw) || math.IsInf(yaw, 0) {
		return MissionWindow{}, fmt.Errorf("%w: target_yaw must be finite", ErrInvalidWindow)
	}
	yaw = math.Mod(yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	w.TargetYaw = float32(yaw)
	if w.TargetYaw >= 360 {
		w.TargetYaw = 0
	}
	return w, nil
}

// windowSnapshot is an installed, immutable mission window.
type windowSnapshot struct {
	MissionWindow
	Version uint64
}

func (s *windowSnapshot) contains(now int64) bool {
	return s != nil && s.Contains(now)
}

// YawDelta returns the shortest angular distance between two headings in
// degrees, in [0, 180].
func YawDelta(current, target float32) float32 {
	d := math.Mod(math.Abs(float64(current)-float64(target)), 360)
	if d > 180 {
		d = 360 - d
	}
	return float32(d)
}
