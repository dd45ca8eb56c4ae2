package cycle

import (
	"errors"

	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
	"github.com/pathwright/motioncore/seg"
)

// ErrFlushNotStopped is returned by Flush when motion has not yet reached
// motion_stopped: a flush discards queued blocks, which is only safe once
// nothing is mid-motion (spec.md §4.11).
var ErrFlushNotStopped = errors.New("cycle: flush requires motion_stopped")

// Flush implements the "%" queue-flush cycle: it discards every block
// queued behind the (already stopped) run position and clears the feedhold
// state machine back to off, ready for the next program line. It is legal
// only while a Feedhold has reached motion_stopped, or when no hold is
// active and the queue is simply idle.
type Flush struct {
	Queue    *planner.Queue
	Feedhold *Feedhold

	// Executor, when wired, supplies the runtime position the planner's
	// own position is re-seated to after the queue is discarded, so the
	// next queued move plans from where the machine actually stopped
	// rather than from the flushed moves' original targets.
	Executor *seg.Executor
}

// NewFlush wires a Flush against the queue and feedhold state machine it
// coordinates with.
func NewFlush(q *planner.Queue, hold *Feedhold) *Flush {
	return &Flush{Queue: q, Feedhold: hold}
}

// Run discards the queue and clears the feedhold state machine. Returns
// ErrFlushNotStopped if a hold is in progress but has not yet reached
// motion_stopped.
func (f *Flush) Run() error {
	if f.Feedhold != nil && f.Feedhold.Active() && f.Feedhold.State != motion.FeedholdMotionStopped {
		return ErrFlushNotStopped
	}
	f.Queue.Flush()
	if f.Executor != nil {
		f.Queue.SetPosition(f.Executor.Runtime.Position)
	}
	if f.Feedhold != nil {
		f.Feedhold.State = motion.FeedholdOff
		f.Feedhold.residual = nil
	}
	return nil
}
