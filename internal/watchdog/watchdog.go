// Package watchdog tracks the per-tick liveness stroke.
package watchdog

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Monitor records watchdog strokes and reports staleness. It is safe for
// concurrent use: strokes come from the tick loop, checks from HTTP handlers.
type Monitor struct {
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
	last    time.Time
	count   uint64
}

// NewMonitor constructs a Monitor that considers the loop stale after timeout
// without a stroke.
func NewMonitor(timeout time.Duration) *Monitor {
	return &Monitor{timeout: timeout, now: time.Now}
}

// Stroke records one heartbeat.
func (m *Monitor) Stroke(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.now()
	m.count++
}

// Count returns the number of strokes received.
func (m *Monitor) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Healthy reports whether a stroke arrived within the timeout.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return false
	}
	return m.now().Sub(m.last) <= m.timeout
}

type healthResponse struct {
	Healthy    bool      `json:"healthy"`
	Strokes    uint64    `json:"strokes"`
	LastStroke time.Time `json:"last_stroke"`
}

// Handler serves the liveness state; it answers 503 when stale.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		resp := healthResponse{Strokes: m.count, LastStroke: m.last}
		m.mu.Unlock()
		resp.Healthy = m.Healthy()

		w.Header().Set("Content-Type", "application/json")
		if !resp.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}
