package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/internal/events"
)

// AuthCollector exposes the per-tick telemetry frame and the event stream
// as Prometheus metrics. It implements auth.Telemetry and events.Sink.
type AuthCollector struct {
	gatherer prometheus.Gatherer

	Heartbeat   prometheus.Gauge
	FSMState    prometheus.Gauge
	VotedState  prometheus.Gauge
	Persistence prometheus.Gauge
	Health      prometheus.Gauge
	Yaw         prometheus.Gauge
	Scrubs      prometheus.Counter
	Events      *prometheus.CounterVec

	mu         sync.Mutex
	lastScrubs uint64
}

// NewAuthCollector registers the authentication metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewAuthCollector(reg prometheus.Registerer) (*AuthCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &AuthCollector{gatherer: gatherer}
	gauges := []struct {
		name, help string
		dst        *prometheus.Gauge
	}{
		{"stellarauth_heartbeat", "Tick counter of the authentication loop.", &c.Heartbeat},
		{"stellarauth_fsm_state", "FSM state written at the end of the last tick (0 locked, 1 armed, 2 verifying, 3 authenticated, 4 faulted).", &c.FSMState},
		{"stellarauth_voted_state", "FSM state obtained by the majority vote at the start of the last tick.", &c.VotedState},
		{"stellarauth_persistence_counter", "Consecutive dark ticks observed while verifying.", &c.Persistence},
		{"stellarauth_health_status", "Register health in percent; 100 when no replica needed repair.", &c.Health},
		{"stellarauth_yaw_degrees", "Yaw sample used by the last tick.", &c.Yaw},
	}
	for _, g := range gauges {
		gauge, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name)
		if err != nil {
			return nil, err
		}
		*g.dst = gauge
	}

	scrubs, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stellarauth_tmr_scrubs_total",
		Help: "Replicas rewritten by TMR scrubbing.",
	}), "stellarauth_tmr_scrubs_total")
	if err != nil {
		return nil, err
	}
	c.Scrubs = scrubs

	evs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stellarauth_events_total",
		Help: "Events emitted by the authentication core, labeled by kind and severity.",
	}, []string{"kind", "severity"}), "stellarauth_events_total")
	if err != nil {
		return nil, err
	}
	c.Events = evs

	return c, nil
}

// Record updates the gauges from one telemetry frame.
func (c *AuthCollector) Record(_ context.Context, f auth.Frame) {
	if c == nil {
		return
	}
	c.Heartbeat.Set(float64(f.Heartbeat))
	c.FSMState.Set(float64(f.State))
	c.VotedState.Set(float64(f.VotedState))
	c.Persistence.Set(float64(f.Persistence))
	c.Health.Set(float64(f.Health))
	c.Yaw.Set(float64(f.Yaw))

	// Frames carry the cumulative scrub count.
	c.mu.Lock()
	if f.Scrubs > c.lastScrubs {
		c.Scrubs.Add(float64(f.Scrubs - c.lastScrubs))
	}
	c.lastScrubs = f.Scrubs
	c.mu.Unlock()
}

// Publish counts one event.
func (c *AuthCollector) Publish(_ context.Context, ev events.Event) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(string(ev.Kind), ev.Severity.String()).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AuthCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
