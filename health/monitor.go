// Package health detects a light sensor frozen at a constant reading.
package health

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid health config")

// Config tunes the stuck-sensor detector.
type Config struct {
	// Epsilon is the largest tick-over-tick change still treated as unchanged.
	Epsilon float32
	// Threshold is the number of unchanged samples tolerated; one more faults.
	Threshold uint32
	// NoiseFloor suppresses the check for samples below it, where a dark and
	// quiescent sensor legitimately reads constant.
	NoiseFloor float32
}

// DefaultConfig returns the flight defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:    0.001,
		Threshold:  100,
		NoiseFloor: 1.0,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if !(c.Epsilon > 0) || math.IsInf(float64(c.Epsilon), 0) {
		return fmt.Errorf("%w: epsilon must be positive and finite", ErrInvalidConfig)
	}
	if c.Threshold == 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidConfig)
	}
	if math.IsNaN(float64(c.NoiseFloor)) {
		return fmt.Errorf("%w: noise floor must be a number", ErrInvalidConfig)
	}
	return nil
}

// Monitor tracks consecutive unchanged light samples.
type Monitor struct {
	cfg   Config
	last  float32
	count uint32
	stuck bool
}

// NewMonitor constructs a Monitor.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{cfg: cfg}
}

// Prime seeds the previous sample without counting.
func (m *Monitor) Prime(sample float32) {
	m.last = sample
}

// Observe feeds one sample. active must be true only while the FSM is armed
// or verifying. It reports true once more than Threshold consecutive
// unchanged samples have been seen.
func (m *Monitor) Observe(sample float32, active bool) bool {
	defer func() { m.last = sample }()

	if !active || sample < m.cfg.NoiseFloor {
		m.count = 0
		return m.stuck
	}

	diff := sample - m.last
	if diff < 0 {
		diff = -diff
	}
	if diff < m.cfg.Epsilon {
		m.count++
	} else {
		m.count = 0
	}

	if m.count > m.cfg.Threshold {
		m.stuck = true
	}
	return m.stuck
}

// Stuck reports whether a stuck condition has been latched since the last Reset.
func (m *Monitor) Stuck() bool { return m.stuck }

// Count returns the current consecutive unchanged count.
func (m *Monitor) Count() uint32 { return m.count }

// Last returns the most recently observed sample.
func (m *Monitor) Last() float32 { return m.last }

// Reset clears the counter and the latched stuck flag.
func (m *Monitor) Reset() {
	m.count = 0
	m.stuck = false
}
