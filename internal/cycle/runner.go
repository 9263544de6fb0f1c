// Package cycle runs the scheduling cycle: on every tick it applies queued
// ground commands, samples the sensor latches and ticks the engine.
package cycle

import (
	"context"
	"time"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/internal/sensors"
	"github.com/signalsfoundry/stellar-auth/timectrl"
)

// Drainer applies pending commands. *command.Queue satisfies it.
type Drainer interface {
	Drain() int
}

// Runner owns the engine for the life of the tick loop.
type Runner struct {
	engine *auth.Engine
	inputs sensors.Inputs
	queue  Drainer
	log    logging.Logger

	onFrame func(auth.Frame)
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithFrameHook registers fn to observe every frame after the tick.
func WithFrameHook(fn func(auth.Frame)) Option {
	return func(r *Runner) { r.onFrame = fn }
}

// NewRunner wires a Runner. queue may be nil when no commands are expected.
func NewRunner(engine *auth.Engine, inputs sensors.Inputs, queue Drainer, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		inputs: inputs,
		queue:  queue,
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step runs one cycle for the tick at now.
func (r *Runner) Step(ctx context.Context, now time.Time) auth.Frame {
	if r.queue != nil {
		if n := r.queue.Drain(); n > 0 {
			r.log.Debug(ctx, "applied queued commands", logging.Int("count", n))
		}
	}
	f := r.engine.Tick(ctx, auth.Inputs{
		Now:   now.Unix(),
		Yaw:   r.inputs.Yaw.Load(),
		Light: r.inputs.Light.Load(),
	})
	if r.onFrame != nil {
		r.onFrame(f)
	}
	return f
}

// Run attaches the runner to tc and drives it until ctx is done or duration
// of controller time has elapsed (forever when duration <= 0).
func (r *Runner) Run(ctx context.Context, tc *timectrl.TimeController, duration time.Duration) {
	tc.AddListener(func(now time.Time) { r.Step(ctx, now) })
	r.log.Info(ctx, "tick loop started",
		logging.String("mode", tc.Mode.String()),
		logging.String("tick", tc.Tick.String()),
	)
	<-tc.Start(ctx, duration)
	// Commands that arrived after the last tick still get applied.
	if r.queue != nil {
		r.queue.Drain()
	}
	r.log.Info(ctx, "tick loop stopped", logging.Uint64("ticks", tc.Ticks()))
}
