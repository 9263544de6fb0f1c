// Package tmr implements triple-modular-redundant storage for small control
// values. A Register keeps three replicas of one value, votes them on every
// read and scrubs any replica that disagrees with the majority.
package tmr

import "fmt"

// Replica identifies one of the three storage cells of a Register.
type Replica int

const (
	ReplicaA Replica = iota
	ReplicaB
	ReplicaC
)

// String returns the cell letter.
func (r Replica) String() string {
	switch r {
	case ReplicaA:
		return "A"
	case ReplicaB:
		return "B"
	case ReplicaC:
		return "C"
	default:
		return fmt.Sprintf("Replica(%d)", int(r))
	}
}

// Vote is the outcome of a single VoteAndRepair call.
type Vote[T comparable] struct {
	// Value is the authoritative value after voting. It is the safe value when
	// MajorityLost is set.
	Value T
	// Repaired lists scrubbed replicas in A, B, C order.
	Repaired []Replica
	// MajorityLost reports a double or triple fault.
	MajorityLost bool
}

// Clean reports whether the triple agreed without any repair.
func (v Vote[T]) Clean() bool {
	return !v.MajorityLost && len(v.Repaired) == 0
}

// Observer is notified of every repair and majority loss. Calls happen
// synchronously inside VoteAndRepair.
type Observer interface {
	ReplicaScrubbed(r Replica)
	MajorityLost()
}

// Option configures a Register.
type Option func(*options)

type options struct {
	name     string
	observer Observer
}

// WithName labels the register for logs and events.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithObserver attaches an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Register holds three replicas of a value of type T. Control code reaches the
// replicas only through Write and VoteAndRepair, so it always acts on a voted
// value.
type Register[T comparable] struct {
	name     string
	observer Observer
	cells    [3]T
	safe     T
	scrubs   uint64
	failures uint64
}

// New constructs a Register with all replicas set to initial. safe is written
// to every replica when no majority can be formed.
func New[T comparable](initial, safe T, opts ...Option) *Register[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	r := &Register[T]{name: o.name, observer: o.observer, safe: safe}
	r.Write(initial)
	return r
}

// Name returns the register label.
func (r *Register[T]) Name() string { return r.name }

// Write sets all three replicas to v.
func (r *Register[T]) Write(v T) {
	r.cells[ReplicaA] = v
	r.cells[ReplicaB] = v
	r.cells[ReplicaC] = v
}

func majority[T comparable](a, b, c T) (T, bool) {
	switch {
	case a == b, a == c:
		return a, true
	case b == c:
		return b, true
	default:
		var zero T
		return zero, false
	}
}

// Voted returns the majority value without touching the replicas. ok is false
// when no two replicas agree; the safe value is returned then.
func (r *Register[T]) Voted() (v T, ok bool) {
	if v, ok = majority(r.cells[ReplicaA], r.cells[ReplicaB], r.cells[ReplicaC]); !ok {
		return r.safe, false
	}
	return v, true
}

// VoteAndRepair returns the 2-of-3 majority and corrects the minority replica.
// When all three replicas disagree the register is reset to its safe value.
func (r *Register[T]) VoteAndRepair() Vote[T] {
	voted, ok := majority(r.cells[ReplicaA], r.cells[ReplicaB], r.cells[ReplicaC])
	if !ok {
		r.failures++
		r.Write(r.safe)
		if r.observer != nil {
			r.observer.MajorityLost()
		}
		return Vote[T]{Value: r.safe, MajorityLost: true}
	}

	var repaired []Replica
	for i := range r.cells {
		if r.cells[i] == voted {
			continue
		}
		r.cells[i] = voted
		r.scrubs++
		repaired = append(repaired, Replica(i))
		if r.observer != nil {
			r.observer.ReplicaScrubbed(Replica(i))
		}
	}
	return Vote[T]{Value: voted, Repaired: repaired}
}

// ScrubCount is the cumulative number of corrected replicas.
func (r *Register[T]) ScrubCount() uint64 { return r.scrubs }

// FailureCount is the cumulative number of majority losses.
func (r *Register[T]) FailureCount() uint64 { return r.failures }

// Upset overwrites a single replica, modelling a single-event upset. It exists
// for fault injection and is never used on the control path.
func (r *Register[T]) Upset(replica Replica, v T) {
	if replica < ReplicaA || replica > ReplicaC {
		return
	}
	r.cells[replica] = v
}

// Peek returns the raw replica contents for diagnostics.
func (r *Register[T]) Peek() [3]T { return r.cells }
