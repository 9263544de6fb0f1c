package sensors

import (
	"sync"
	"testing"
)

func TestLatchMostRecentValue(t *testing.T) {
	l := NewLatch(1.5)
	if got := l.Load(); got != 1.5 {
		t.Fatalf("Load = %v, want 1.5", got)
	}
	if !l.UpdatedAt().IsZero() {
		t.Fatalf("UpdatedAt before Set = %v, want zero", l.UpdatedAt())
	}
	l.Set(42)
	l.Set(-3.25)
	if got := l.Load(); got != -3.25 {
		t.Fatalf("Load = %v, want -3.25", got)
	}
	if l.UpdatedAt().IsZero() {
		t.Fatalf("UpdatedAt after Set is zero")
	}
}

func TestLatchConcurrentWriters(t *testing.T) {
	l := NewLatch(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v float32) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Set(v)
				_ = l.Load()
			}
		}(float32(i))
	}
	wg.Wait()
	if got := l.Load(); got < 0 || got > 7 {
		t.Fatalf("Load = %v, want one of the written values", got)
	}
}

func TestNewInputsDefaults(t *testing.T) {
	in := NewInputs()
	if in.Yaw.Load() != 0 || in.Light.Load() != 100 {
		t.Fatalf("defaults yaw=%v light=%v", in.Yaw.Load(), in.Light.Load())
	}
}
