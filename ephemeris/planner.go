// Package ephemeris predicts shadow ingress from a two-line element set and
// turns it into a mission window for the authentication engine.
package ephemeris

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/stellar-auth/auth"
)

// ErrNoIngress is returned when no shadow ingress occurs within the search
// horizon.
var ErrNoIngress = errors.New("no shadow ingress within horizon")

// Planner propagates one spacecraft with SGP4.
type Planner struct {
	tle     TLE
	sat     satellite.Satellite
	step    time.Duration
	horizon time.Duration
}

// Option customises a Planner.
type Option func(*Planner)

// WithSearchStep sets the coarse scan interval. Shadow passes shorter than
// the step may be missed.
func WithSearchStep(d time.Duration) Option {
	return func(p *Planner) {
		if d >= time.Second {
			p.step = d.Truncate(time.Second)
		}
	}
}

// WithHorizon bounds how far ahead NextShadowIngress searches.
func WithHorizon(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.horizon = d
		}
	}
}

// NewPlanner validates the element set and prepares it for propagation.
func NewPlanner(t TLE, opts ...Option) (*Planner, error) {
	parsed, err := ParseTLE(t.Line1, t.Line2)
	if err != nil {
		return nil, err
	}
	parsed.Name = t.Name
	t = parsed
	p := &Planner{
		tle:     t,
		sat:     satellite.TLEToSat(t.Line1, t.Line2, satellite.GravityWGS72),
		step:    30 * time.Second,
		horizon: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// TLE returns the element set being propagated.
func (p *Planner) TLE() TLE { return p.tle }

// Position returns the inertial position in kilometres at t, with one-second
// resolution.
func (p *Planner) Position(t time.Time) (Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	v := Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	if r := v.Norm(); math.IsNaN(r) || r < EarthRadiusKm {
		return Vec3{}, fmt.Errorf("propagate %s at %s: orbit decayed or diverged", p.tle.CatalogNumber(), t.Format(time.RFC3339))
	}
	return v, nil
}

// InShadow reports whether the spacecraft is in the Earth's shadow at t.
func (p *Planner) InShadow(t time.Time) (bool, error) {
	pos, err := p.Position(t)
	if err != nil {
		return false, err
	}
	return inCylindricalShadow(pos, SunDirection(julianDate(t))), nil
}

// NextShadowIngress returns the first second after from at which the
// spacecraft is in shadow having been sunlit the second before.
func (p *Planner) NextShadowIngress(from time.Time) (time.Time, error) {
	from = from.UTC().Truncate(time.Second)
	prev, err := p.InShadow(from)
	if err != nil {
		return time.Time{}, err
	}
	end := from.Add(p.horizon)
	for lo := from; lo.Before(end); lo = lo.Add(p.step) {
		hi := lo.Add(p.step)
		cur, err := p.InShadow(hi)
		if err != nil {
			return time.Time{}, err
		}
		if !prev && cur {
			return p.refineIngress(lo, hi)
		}
		prev = cur
	}
	return time.Time{}, fmt.Errorf("%w: %s after %s", ErrNoIngress, p.horizon, from.Format(time.RFC3339))
}

// refineIngress bisects [lo, hi] where lo is sunlit and hi is in shadow.
func (p *Planner) refineIngress(lo, hi time.Time) (time.Time, error) {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if !mid.After(lo) {
			mid = lo.Add(time.Second)
		}
		shadow, err := p.InShadow(mid)
		if err != nil {
			return time.Time{}, err
		}
		if shadow {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// WindowOptions shapes a planned mission window.
type WindowOptions struct {
	// Lead opens the window before the predicted ingress.
	Lead time.Duration
	// Span keeps the window open after the ingress.
	Span      time.Duration
	TargetYaw float32
}

// DefaultWindowOptions opens a minute early and stays open for two minutes.
func DefaultWindowOptions() WindowOptions {
	return WindowOptions{Lead: time.Minute, Span: 2 * time.Minute}
}

// PlanWindow finds the next ingress after from and returns the window
// [ingress-Lead, ingress+Span].
func (p *Planner) PlanWindow(from time.Time, opts WindowOptions) (auth.MissionWindow, error) {
	if opts.Lead < 0 || opts.Span < 0 {
		return auth.MissionWindow{}, fmt.Errorf("%w: negative lead or span", auth.ErrInvalidWindow)
	}
	ingress, err := p.NextShadowIngress(from)
	if err != nil {
		return auth.MissionWindow{}, err
	}
	w := auth.MissionWindow{
		Start:     ingress.Add(-opts.Lead).Unix(),
		End:       ingress.Add(opts.Span).Unix(),
		TargetYaw: opts.TargetYaw,
	}
	return w.Normalize()
}

func julianDate(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	return satellite.JDay(year, int(month), day, hour, min, sec)
}
