package search

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSearchable(t *testing.T) {
	if Searchable("ab") {
		t.Error("two characters should not be searchable")
	}
	if !Searchable("egg") {
		t.Error("three characters should be searchable")
	}
	if Searchable("早") {
		t.Error("one multibyte rune should not be searchable")
	}
	if !Searchable("早めし") {
		t.Error("three multibyte runes should be searchable")
	}
}

func TestDebouncerCoalescesTriggers(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		d.Trigger(func() { fired.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)
	d.Trigger(func() { fired.Add(1) })
	d.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("fired %d times after stop, want 0", got)
	}
}

func TestThrottleOnePerInterval(t *testing.T) {
	th := NewThrottle(time.Minute)
	if !th.Allow() {
		t.Fatal("first trigger denied")
	}
	if th.Allow() {
		t.Error("immediate second trigger allowed")
	}
}
