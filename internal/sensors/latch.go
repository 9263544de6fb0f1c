// Package sensors holds the most recent attitude and light samples pushed by
// the I/O layer. Readers always see the latest value; nothing is queued.
package sensors

import (
	"math"
	"sync/atomic"
	"time"
)

// Latch is a most-recent-value cell for a float32 sample.
type Latch struct {
	bits    atomic.Uint32
	updated atomic.Int64
}

// NewLatch constructs a latch holding initial.
func NewLatch(initial float32) *Latch {
	l := &Latch{}
	l.bits.Store(math.Float32bits(initial))
	return l
}

// Set replaces the sample.
func (l *Latch) Set(v float32) {
	l.bits.Store(math.Float32bits(v))
	l.updated.Store(time.Now().UnixNano())
}

// Load returns the latest sample.
func (l *Latch) Load() float32 {
	return math.Float32frombits(l.bits.Load())
}

// UpdatedAt returns when Set was last called, or the zero time.
func (l *Latch) UpdatedAt() time.Time {
	ns := l.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Inputs groups the sensor latches sampled each tick.
type Inputs struct {
	Yaw   *Latch
	Light *Latch
}

// NewInputs constructs latches with a zero yaw and a fully lit light sensor.
func NewInputs() Inputs {
	return Inputs{
		Yaw:   NewLatch(0),
		Light: NewLatch(100),
	}
}
