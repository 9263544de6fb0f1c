package health

import (
	"errors"
	"testing"
)

func TestStuckSensorRequiresThresholdPlusOneSamples(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMonitor(cfg)
	m.Prime(50)

	for i := uint32(1); i <= cfg.Threshold; i++ {
		if m.Observe(50, true) {
			t.Fatalf("stuck after %d samples, want not before %d", i, cfg.Threshold+1)
		}
	}
	if got := m.Count(); got != cfg.Threshold {
		t.Fatalf("Count = %d, want %d", got, cfg.Threshold)
	}
	if !m.Observe(50, true) {
		t.Fatalf("not stuck after %d samples", cfg.Threshold+1)
	}
	if !m.Stuck() {
		t.Fatalf("Stuck() = false after trigger")
	}
}

func TestChangeResetsCounter(t *testing.T) {
	m := NewMonitor(Config{Epsilon: 0.01, Threshold: 3, NoiseFloor: 1})
	m.Prime(50)
	m.Observe(50, true)
	m.Observe(50, true)
	m.Observe(51, true)
	if got := m.Count(); got != 0 {
		t.Fatalf("Count after change = %d, want 0", got)
	}
	if got := m.Last(); got != 51 {
		t.Fatalf("Last = %v, want 51", got)
	}
}

func TestInactiveDoesNotCount(t *testing.T) {
	m := NewMonitor(Config{Epsilon: 0.01, Threshold: 2, NoiseFloor: 1})
	m.Prime(50)
	for i := 0; i < 10; i++ {
		if m.Observe(50, false) {
			t.Fatalf("inactive observation triggered stuck")
		}
	}
	if got := m.Count(); got != 0 {
		t.Fatalf("Count = %d, want 0 while inactive", got)
	}
}

func TestBelowNoiseFloorIsSuppressed(t *testing.T) {
	m := NewMonitor(Config{Epsilon: 0.01, Threshold: 2, NoiseFloor: 5})
	m.Prime(0.5)
	for i := 0; i < 10; i++ {
		if m.Observe(0.5, true) {
			t.Fatalf("dark quiescent sensor flagged stuck")
		}
	}
}

func TestLastAlwaysUpdated(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.Observe(12, false)
	if got := m.Last(); got != 12 {
		t.Fatalf("Last = %v, want 12", got)
	}
	m.Observe(0.1, true)
	if got := m.Last(); got != 0.1 {
		t.Fatalf("Last = %v, want 0.1", got)
	}
}

func TestResetClearsLatch(t *testing.T) {
	m := NewMonitor(Config{Epsilon: 0.01, Threshold: 1, NoiseFloor: 1})
	m.Prime(50)
	m.Observe(50, true)
	if !m.Observe(50, true) {
		t.Fatalf("expected stuck")
	}
	m.Reset()
	if m.Stuck() || m.Count() != 0 {
		t.Fatalf("Reset left stuck=%v count=%d", m.Stuck(), m.Count())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	bad := []Config{
		{Epsilon: 0, Threshold: 1},
		{Epsilon: 0.1, Threshold: 0},
	}
	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: Validate() = %v, want ErrInvalidConfig", i, err)
		}
	}
}
