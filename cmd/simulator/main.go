// Command simulator flies scripted missions against the authentication
// engine in accelerated time and prints one line per tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/ephemeris"
	"github.com/signalsfoundry/stellar-auth/internal/cycle"
	"github.com/signalsfoundry/stellar-auth/internal/events"
	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/internal/sensors"
	"github.com/signalsfoundry/stellar-auth/timectrl"
	"github.com/signalsfoundry/stellar-auth/tmr"
)

const (
	sunlit = 100
	dark   = 5
)

type options struct {
	Scenario string
	Tick     time.Duration
	Duration time.Duration
	UpsetAt  int64
	TLEPath  string
}

// scenario scripts the sensors and any fault injection for one run.
type scenario struct {
	window   auth.MissionWindow
	start    time.Time
	duration time.Duration
	yaw      func(now time.Time) float32
	light    func(now time.Time) float32
	inject   func(e *auth.Engine, now time.Time)
}

func main() {
	var opts options
	flag.StringVar(&opts.Scenario, "scenario", "mission", "mission, replay, upset, stuck or orbit")
	flag.DurationVar(&opts.Tick, "tick", time.Second, "tick interval")
	flag.DurationVar(&opts.Duration, "duration", 0, "override the scenario duration")
	flag.Int64Var(&opts.UpsetAt, "upset-at", 102, "tick time at which the upset scenario corrupts replica B")
	flag.StringVar(&opts.TLEPath, "tle", "", "TLE file for the orbit scenario")
	flag.Parse()

	if err := run(context.Background(), os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, opts options) error {
	sc, err := buildScenario(opts)
	if err != nil {
		return err
	}
	if opts.Duration > 0 {
		sc.duration = opts.Duration
	}

	log := logging.New(logging.Config{Level: "info", Output: out})
	eng, err := auth.New(auth.DefaultConfig(), auth.WithLogger(log), auth.WithSink(events.LogSink{Log: log}))
	if err != nil {
		return err
	}
	if err := eng.UpdateWindow(ctx, sc.window); err != nil {
		return err
	}

	inputs := sensors.NewInputs()
	tc := timectrl.NewTimeController(sc.start, opts.Tick, timectrl.Accelerated)
	// Samples and injections land before the runner ticks.
	tc.AddListener(func(now time.Time) {
		inputs.Yaw.Set(sc.yaw(now))
		inputs.Light.Set(sc.light(now))
		if sc.inject != nil {
			sc.inject(eng, now)
		}
	})

	runner := cycle.NewRunner(eng, inputs, nil, cycle.WithFrameHook(func(f auth.Frame) {
		fmt.Fprintf(out, "[t=%d] hb=%-4d voted=%-13s state=%-13s persist=%d health=%5.1f yaw=%6.2f light=%6.2f\n",
			f.Now, f.Heartbeat, f.VotedState, f.State, f.Persistence, f.Health, f.Yaw, f.Light)
	}))

	fmt.Fprintf(out, "Starting %s: window=[%d, %d] yaw=%.1f duration=%s tick=%s\n",
		opts.Scenario, sc.window.Start, sc.window.End, sc.window.TargetYaw, sc.duration, opts.Tick)
	runner.Run(ctx, tc, sc.duration)

	st := eng.Status(ctx)
	fmt.Fprintf(out, "Simulation complete: state=%s guard=%v scrubs=%d tmr_failures=%d\n",
		st.State, st.ReplayGuardArmed, st.Scrubs, st.TMRFailures)
	return nil
}

func buildScenario(opts options) (scenario, error) {
	window := auth.MissionWindow{Start: 100, End: 120, TargetYaw: 45}
	onTarget := func(time.Time) float32 { return window.TargetYaw }
	// Ingress at t=101, then sustained darkness.
	eclipse := func(now time.Time) float32 {
		if now.Unix() > 101 {
			return dark
		}
		if now.Unix() == 101 {
			return 50
		}
		return sunlit
	}
	base := scenario{
		window:   window,
		start:    time.Unix(89, 0),
		duration: 20 * time.Second,
		yaw:      onTarget,
		light:    eclipse,
	}

	switch opts.Scenario {
	case "mission":
		return base, nil

	case "replay":
		// A second eclipse inside the same window must not unlock again.
		base.duration = 20 * time.Second
		base.light = func(now time.Time) float32 {
			switch s := now.Unix(); {
			case s == 101, s == 110:
				return 50
			case s > 101 && s < 106, s > 110:
				return dark
			default:
				return sunlit
			}
		}
		return base, nil

	case "upset":
		base.inject = func(e *auth.Engine, now time.Time) {
			if now.Unix() == opts.UpsetAt {
				e.UpsetState(tmr.ReplicaB, auth.State(0xDEADBEEF))
			}
		}
		return base, nil

	case "stuck":
		// The light sensor freezes once armed; the engine must fault.
		base.start = time.Unix(99, 0)
		base.duration = 110 * time.Second
		base.window = auth.MissionWindow{Start: 100, End: 300, TargetYaw: 45}
		base.light = func(time.Time) float32 { return 60 }
		return base, nil

	case "orbit":
		return orbitScenario(opts)

	default:
		return scenario{}, fmt.Errorf("unknown scenario %q", opts.Scenario)
	}
}

// orbitScenario drives the light sensor from the predicted shadow of a real
// element set.
func orbitScenario(opts options) (scenario, error) {
	if opts.TLEPath == "" {
		return scenario{}, fmt.Errorf("orbit scenario needs -tle")
	}
	f, err := os.Open(opts.TLEPath)
	if err != nil {
		return scenario{}, err
	}
	defer f.Close()
	tle, err := ephemeris.ReadTLE(f)
	if err != nil {
		return scenario{}, err
	}
	planner, err := ephemeris.NewPlanner(tle)
	if err != nil {
		return scenario{}, err
	}

	wopts := ephemeris.WindowOptions{Lead: 30 * time.Second, Span: 30 * time.Second, TargetYaw: 90}
	window, err := planner.PlanWindow(tle.Epoch(), wopts)
	if err != nil {
		return scenario{}, err
	}
	return scenario{
		window:   window,
		start:    time.Unix(window.Start-5, 0).UTC(),
		duration: time.Duration(window.End-window.Start+10) * time.Second,
		yaw:      func(time.Time) float32 { return window.TargetYaw },
		light: func(now time.Time) float32 {
			if in, err := planner.InShadow(now); err == nil && in {
				return dark
			}
			return sunlit
		},
	}, nil
}
