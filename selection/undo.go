package selection

import (
	"sync"
	"time"
)

// UndoWindow is how long an optimistic removal stays reversible.
const UndoWindow = 3 * time.Second

type undoState int

const (
	undoPending undoState = iota
	undoFinalized
	undoRestored
)

// Undoable is one optimistically-removed item waiting on its undo window:
// pending until either the timer finalizes the removal or Restore puts the
// item back. Exactly one of the two callbacks ever runs.
type Undoable struct {
	mu       sync.Mutex
	state    undoState
	timer    *time.Timer
	finalize func()
	restore  func()
}

// NewUndoable arms the removal timer. finalize runs when the window elapses
// (or the notice is dismissed without undo); restore runs on Restore.
func NewUndoable(window time.Duration, finalize, restore func()) *Undoable {
	u := &Undoable{finalize: finalize, restore: restore}
	u.timer = time.AfterFunc(window, u.expire)
	return u
}

func (u *Undoable) expire() {
	u.mu.Lock()
	if u.state != undoPending {
		u.mu.Unlock()
		return
	}
	u.state = undoFinalized
	u.mu.Unlock()
	u.finalize()
}

// Dismiss finalizes immediately, used when the undo notice is dismissed by
// any means other than the undo action itself.
func (u *Undoable) Dismiss() {
	u.mu.Lock()
	if u.state != undoPending {
		u.mu.Unlock()
		return
	}
	u.state = undoFinalized
	u.timer.Stop()
	u.mu.Unlock()
	u.finalize()
}

// Restore cancels the removal. Reports false when the window already
// elapsed and the removal was finalized.
func (u *Undoable) Restore() bool {
	u.mu.Lock()
	if u.state != undoPending {
		u.mu.Unlock()
		return false
	}
	u.state = undoRestored
	u.timer.Stop()
	u.mu.Unlock()
	u.restore()
	return true
}
