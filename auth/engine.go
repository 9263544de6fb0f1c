// Package auth implements the authentication state machine. An Engine is
// ticked once per scheduling cycle and unlocks only when the mission window,
// the attitude, a shadow ingress and a sustained darkness coincide while the
// light sensor is healthy. FSM state and the persistence counter are held in
// TMR registers and scrubbed on every tick.
//
// An Engine is not safe for concurrent use. Ticks and commands are expected to
// run to completion one at a time; see internal/command for the queue that
// serializes them.
package auth

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/stellar-auth/health"
	"github.com/signalsfoundry/stellar-auth/internal/events"
	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/tmr"
)

const tracerName = "github.com/signalsfoundry/stellar-auth/auth"

// Inputs are the samples read once per tick.
type Inputs struct {
	// Now is absolute time in seconds.
	Now   int64
	Yaw   float32
	Light float32
}

// Frame is the telemetry produced by one tick.
type Frame struct {
	Heartbeat   uint64
	Now         int64
	State       State
	VotedState  State
	Persistence uint32
	Health      float32
	Yaw         float32
	Light       float32
	Scrubs      uint64
}

// Telemetry receives one frame per tick.
type Telemetry interface {
	Record(ctx context.Context, f Frame)
}

// Watchdog receives one liveness stroke per tick.
type Watchdog interface {
	Stroke(ctx context.Context)
}

// Status is a point-in-time view of the engine for operators.
type Status struct {
	State               State
	Persistence         uint32
	WindowConfigured    bool
	Window              MissionWindow
	WindowVersion       uint64
	ReplayGuardArmed    bool
	LastAuthWindowStart int64
	Heartbeat           uint64
	Scrubs              uint64
	TMRFailures         uint64
	Health              float32
	FaultLatched        bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSink sets the event sink.
func WithSink(s events.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithTelemetry sets the telemetry channel.
func WithTelemetry(t Telemetry) Option {
	return func(e *Engine) { e.telemetry = t }
}

// WithWatchdog sets the watchdog output.
func WithWatchdog(w Watchdog) Option {
	return func(e *Engine) { e.watchdog = w }
}

// WithTracer overrides the tracer used for tick and command spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// Engine is the authentication FSM.
type Engine struct {
	cfg       Config
	log       logging.Logger
	sink      events.Sink
	telemetry Telemetry
	watchdog  Watchdog
	tracer    trace.Tracer

	state       *tmr.Register[State]
	persistence *tmr.Register[uint32]
	monitor     *health.Monitor

	window atomic.Pointer[windowSnapshot]

	guardArmed          bool
	lastAuthWindowStart int64

	primed       bool
	prevLight    float32
	heartbeat    uint64
	health       float32
	faultLatched bool
}

// New constructs an Engine in the Locked state with no mission window.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         cfg,
		log:         logging.Noop(),
		sink:        events.Discard,
		tracer:      otel.Tracer(tracerName),
		state:       tmr.New(Locked, Faulted, tmr.WithName("fsm_state")),
		persistence: tmr.New[uint32](0, 0, tmr.WithName("persistence_counter")),
		monitor:     health.NewMonitor(cfg.Health),
		health:      100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine tunables.
func (e *Engine) Config() Config { return e.cfg }

// Tick runs one evaluation cycle.
func (e *Engine) Tick(ctx context.Context, in Inputs) Frame {
	e.heartbeat++
	ctx, span := e.tracer.Start(ctx, "auth.Tick", trace.WithAttributes(
		attribute.Int64("auth.heartbeat", int64(e.heartbeat)),
		attribute.Int64("auth.now", in.Now),
	))
	defer span.End()

	if !e.primed {
		e.prevLight = in.Light
		e.monitor.Prime(in.Light)
		e.primed = true
	}

	stateVote, countVote := e.scrub(ctx)
	voted := stateVote.Value
	counter := countVote.Value
	win := e.window.Load()

	stuck := e.monitor.Observe(in.Light, voted.active())

	var next State
	switch {
	case stateVote.MajorityLost || countVote.MajorityLost:
		next, counter = e.fault(ctx, "tmr majority lost"), 0
	case voted.active() && stuck:
		next, counter = e.fault(ctx, "light sensor stuck"), 0
	default:
		next, counter = e.step(ctx, voted, counter, in, win)
		if next == Authenticated && voted != Authenticated {
			next, counter = e.step(ctx, Authenticated, counter, in, win)
		}
	}

	e.state.Write(next)
	e.persistence.Write(counter)
	e.prevLight = in.Light

	frame := Frame{
		Heartbeat:   e.heartbeat,
		Now:         in.Now,
		State:       next,
		VotedState:  voted,
		Persistence: counter,
		Health:      e.health,
		Yaw:         in.Yaw,
		Light:       in.Light,
		Scrubs:      e.state.ScrubCount() + e.persistence.ScrubCount(),
	}
	span.SetAttributes(
		attribute.String("auth.voted_state", voted.String()),
		attribute.String("auth.state", next.String()),
		attribute.Int64("auth.persistence", int64(counter)),
	)

	if e.watchdog != nil {
		e.watchdog.Stroke(ctx)
	}
	if e.telemetry != nil {
		e.telemetry.Record(ctx, frame)
	}
	return frame
}

// step executes the transition for one voted state.
func (e *Engine) step(ctx context.Context, s State, counter uint32, in Inputs, win *windowSnapshot) (State, uint32) {
	switch s {
	case Locked:
		if win.contains(in.Now) && !(e.guardArmed && win.Start == e.lastAuthWindowStart) {
			e.log.Debug(ctx, "mission window open; armed",
				logging.Int64("window_start", win.Start),
				logging.Int64("now", in.Now),
			)
			return Armed, 0
		}
		return Locked, 0

	case Armed:
		if !win.contains(in.Now) {
			return Locked, 0
		}
		delta := YawDelta(in.Yaw, win.TargetYaw)
		slope := in.Light - e.prevLight
		if delta <= e.cfg.StabilityThreshold && slope <= e.cfg.IngressThreshold {
			e.publish(ctx, events.KindIngressDetected, events.ActivityHi, "shadow ingress detected",
				logging.Float32("slope", slope),
				logging.Float32("yaw_delta", delta),
			)
			return Verifying, 0
		}
		return Armed, counter

	case Verifying:
		if !win.contains(in.Now) {
			return Locked, 0
		}
		if in.Light < e.cfg.DarknessThreshold {
			counter++
			if counter >= e.cfg.PersistenceThreshold {
				return Authenticated, e.cfg.PersistenceThreshold
			}
			return Verifying, counter
		}
		e.publish(ctx, events.KindPersistenceReset, events.WarningLo, "darkness lost; persistence reset",
			logging.Float32("light", in.Light),
			logging.Uint64("persistence", uint64(counter)),
		)
		return Armed, 0

	case Authenticated:
		fields := []logging.Field{logging.Bool("bypass", false)}
		if win != nil {
			e.guardArmed = true
			e.lastAuthWindowStart = win.Start
			fields = append(fields, logging.Int64("window_start", win.Start))
		}
		e.publish(ctx, events.KindAuthSuccess, events.ActivityHi, "authentication succeeded", fields...)
		return Locked, 0

	case Faulted:
		return e.fault(ctx, "faulted"), 0

	default:
		return e.fault(ctx, fmt.Sprintf("unrecognized voted state %d", uint32(s))), 0
	}
}

// fault latches the Faulted state, alerting once per entry.
func (e *Engine) fault(ctx context.Context, reason string) State {
	if !e.faultLatched {
		e.faultLatched = true
		e.publish(ctx, events.KindStabilityAlert, events.WarningHi, "stability alert; authentication faulted",
			logging.String("reason", reason),
		)
	}
	return Faulted
}

// scrub votes both registers, publishes repair events and updates the health
// figure.
func (e *Engine) scrub(ctx context.Context) (tmr.Vote[State], tmr.Vote[uint32]) {
	stateVote := e.state.VoteAndRepair()
	countVote := e.persistence.VoteAndRepair()

	repaired := len(stateVote.Repaired) + len(countVote.Repaired)
	e.reportVote(ctx, e.state.Name(), stateVote.Repaired, stateVote.MajorityLost)
	e.reportVote(ctx, e.persistence.Name(), countVote.Repaired, countVote.MajorityLost)

	switch {
	case stateVote.MajorityLost || countVote.MajorityLost:
		e.health = 0
	default:
		e.health = 100 - 33.3*float32(repaired)
		if e.health < 0 {
			e.health = 0
		}
	}
	return stateVote, countVote
}

func (e *Engine) reportVote(ctx context.Context, register string, repaired []tmr.Replica, lost bool) {
	if lost {
		e.publish(ctx, events.KindTMRFailure, events.Fatal, "tmr majority lost; register reset to safe value",
			logging.String("register", register),
		)
		return
	}
	for _, r := range repaired {
		e.publish(ctx, events.KindSEUScrubbed, events.WarningLo, "single event upset scrubbed",
			logging.String("register", register),
			logging.String("replica", r.String()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, sev events.Severity, msg string, fields ...logging.Field) {
	e.sink.Publish(ctx, events.Event{Kind: kind, Severity: sev, Message: msg, Fields: fields})
}

// Reset forces Locked, zeroes the persistence counter and clears the sensor
// and fault latches. The replay guard is kept.
func (e *Engine) Reset(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "auth.Reset")
	defer span.End()

	e.state.Write(Locked)
	e.persistence.Write(0)
	e.monitor.Reset()
	e.faultLatched = false
	e.publish(ctx, events.KindReset, events.ActivityHi, "authentication reset")
}

// Bypass forces Authenticated when key matches the configured bypass key. The
// next tick resolves it to Locked and arms the replay guard.
func (e *Engine) Bypass(ctx context.Context, key uint32) error {
	ctx, span := e.tracer.Start(ctx, "auth.Bypass")
	defer span.End()

	if key != e.cfg.BypassKey {
		e.publish(ctx, events.KindAuthFailed, events.WarningHi, "bypass rejected: key mismatch",
			logging.Uint64("key", uint64(key)),
		)
		span.RecordError(ErrInvalidBypassKey)
		return fmt.Errorf("%w: 0x%08x", ErrInvalidBypassKey, key)
	}

	stateVote, countVote := e.scrub(ctx)
	if stateVote.MajorityLost || countVote.MajorityLost {
		e.state.Write(e.fault(ctx, "tmr majority lost"))
		e.persistence.Write(0)
		e.publish(ctx, events.KindAuthFailed, events.WarningHi, "bypass rejected: fault latched")
		span.RecordError(ErrFaultLatched)
		return ErrFaultLatched
	}
	if stateVote.Value == Faulted {
		e.publish(ctx, events.KindAuthFailed, events.WarningHi, "bypass rejected: fault latched")
		span.RecordError(ErrFaultLatched)
		return ErrFaultLatched
	}

	e.state.Write(Authenticated)
	e.publish(ctx, events.KindAuthSuccess, events.ActivityHi, "authentication succeeded",
		logging.Bool("bypass", true),
	)
	return nil
}

// UpdateWindow validates and installs a new mission window. It takes effect on
// the next tick.
func (e *Engine) UpdateWindow(ctx context.Context, w MissionWindow) error {
	norm, err := w.Normalize()
	if err != nil {
		e.log.Warn(ctx, "mission window rejected", logging.Err(err))
		return err
	}
	var version uint64 = 1
	if cur := e.window.Load(); cur != nil {
		version = cur.Version + 1
	}
	e.window.Store(&windowSnapshot{MissionWindow: norm, Version: version})
	e.publish(ctx, events.KindWindowUpdated, events.ActivityLo, "mission window updated",
		logging.Int64("window_start", norm.Start),
		logging.Int64("window_end", norm.End),
		logging.Float32("target_yaw", norm.TargetYaw),
		logging.Uint64("version", version),
	)
	return nil
}

// Window returns the installed mission window, if any.
func (e *Engine) Window() (MissionWindow, bool) {
	if w := e.window.Load(); w != nil {
		return w.MissionWindow, true
	}
	return MissionWindow{}, false
}

// Status reports the voted engine state without scrubbing. A register with no
// majority reads as Faulted; the next tick latches the fault. Health is the
// figure computed by the last scrub.
func (e *Engine) Status(context.Context) Status {
	state, stateOK := e.state.Voted()
	counter, countOK := e.persistence.Voted()
	if !stateOK || !countOK {
		state = Faulted
	}
	st := Status{
		State:               state,
		Persistence:         counter,
		ReplayGuardArmed:    e.guardArmed,
		LastAuthWindowStart: e.lastAuthWindowStart,
		Heartbeat:           e.heartbeat,
		Scrubs:              e.state.ScrubCount() + e.persistence.ScrubCount(),
		TMRFailures:         e.state.FailureCount() + e.persistence.FailureCount(),
		Health:              e.health,
		FaultLatched:        e.faultLatched,
	}
	if w := e.window.Load(); w != nil {
		st.WindowConfigured = true
		st.Window = w.MissionWindow
		st.WindowVersion = w.Version
	}
	return st
}

// UpsetState corrupts one replica of the FSM state register.
func (e *Engine) UpsetState(r tmr.Replica, s State) { e.state.Upset(r, s) }

// UpsetPersistence corrupts one replica of the persistence counter register.
func (e *Engine) UpsetPersistence(r tmr.Replica, v uint32) { e.persistence.Upset(r, v) }

// Replicas returns the raw FSM state replicas for diagnostics.
func (e *Engine) Replicas() [3]State { return e.state.Peek() }
