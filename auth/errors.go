package auth

import "errors"

var (
	// ErrInvalidWindow rejects a malformed mission window update.
	ErrInvalidWindow = errors.New("invalid mission window")
	// ErrInvalidBypassKey rejects an emergency bypass with the wrong key.
	ErrInvalidBypassKey = errors.New("invalid bypass key")
	// ErrFaultLatched refuses a bypass while the FSM is faulted; only a reset
	// clears the latch.
	ErrFaultLatched = errors.New("fault latched; reset required")
	// ErrInvalidConfig rejects engine tunables that cannot work.
	ErrInvalidConfig = errors.New("invalid auth config")
)
