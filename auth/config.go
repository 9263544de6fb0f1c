package auth

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/stellar-auth/health"
)

// DefaultBypassKey is the fixed operator override value.
const DefaultBypassKey uint32 = 0x98765432

// Config holds the gating tunables of the engine.
type Config struct {
	// StabilityThreshold is the largest yaw error, in degrees, that counts as
	// on target.
	StabilityThreshold float32
	// IngressThreshold is the tick-over-tick light slope at or below which a
	// shadow ingress is declared. Negative.
	IngressThreshold float32
	// DarknessThreshold is the light level below which darkness persists.
	DarknessThreshold float32
	// PersistenceThreshold is the number of consecutive dark ticks required
	// while verifying.
	PersistenceThreshold uint32
	// BypassKey unlocks the emergency bypass.
	BypassKey uint32

	Health health.Config
}

// DefaultConfig returns the flight defaults.
func DefaultConfig() Config {
	return Config{
		StabilityThreshold:   5,
		IngressThreshold:     -40,
		DarknessThreshold:    20,
		PersistenceThreshold: 3,
		BypassKey:            DefaultBypassKey,
		Health:               health.DefaultConfig(),
	}
}

// Validate performs basic validation of the config.
func (c Config) Validate() error {
	if !finite(c.StabilityThreshold) || c.StabilityThreshold < 0 || c.StabilityThreshold > 180 {
		return fmt.Errorf("%w: stability threshold must be within [0, 180] degrees", ErrInvalidConfig)
	}
	if !finite(c.IngressThreshold) || c.IngressThreshold >= 0 {
		return fmt.Errorf("%w: ingress threshold must be negative", ErrInvalidConfig)
	}
	if !finite(c.DarknessThreshold) {
		return fmt.Errorf("%w: darkness threshold must be finite", ErrInvalidConfig)
	}
	if c.PersistenceThreshold == 0 {
		return fmt.Errorf("%w: persistence threshold must be positive", ErrInvalidConfig)
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
