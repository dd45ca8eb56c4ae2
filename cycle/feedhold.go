// Package cycle implements the special-cycle state machines of spec.md
// §4.11: feedhold/resume, queue flush, and the probe/jog/homing cycles that
// borrow the planner queue and segment executor outside of ordinary program
// execution. Each type here is driven by one stage of the dispatch loop,
// calling back into package planner and package seg rather than duplicating
// their ramp math, matching the way g2core's cycle_*.cpp files sit above
// plan_zoid.cpp/plan_exec.cpp instead of reimplementing them.
package cycle

import (
	"math"

	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
	"github.com/pathwright/motioncore/seg"
)

// HoldKind distinguishes the two dispositions a feedhold can end in: resume
// where it left off, or discard the remainder of the held move. g2core
// exposes both behind the same "!"; which one applies is decided by what the
// host sends after the hold completes (a cycle start resumes, a queue flush
// discards), not by the initiating character. Kept in this package's API
// only because the reshape math differs enough at resume time to be worth
// documenting against.
type HoldKind int

const (
	// HoldResumable means the deceleration is expected to be resumed later
	// via a cycle start once motion_stopped is reached.
	HoldResumable HoldKind = iota
	// HoldDiscard means the remainder of the held move (and queue) will be
	// flushed once motion_stopped is reached; no resume is expected.
	HoldDiscard
)

// Feedhold drives motion.FeedholdState from off through to motion_stopped,
// reshaping the segment executor's currently running block into a
// deceleration-to-zero tail at exec priority, chaining across block
// boundaries if one block's remaining length cannot absorb the full
// braking distance at the configured jerk (spec.md §4.11). It owns no
// goroutine of its own: Sync is called once per dispatch loop pass from the
// "feedhold sequencer" stage (spec.md §4.2).
type Feedhold struct {
	Queue    *planner.Queue
	Executor *seg.Executor

	State motion.FeedholdState
	Kind  HoldKind

	// reshaped is the block most recently rewritten into a deceleration
	// tail, so Sync only reshapes each running block once even though it is
	// called every pass while the hold is in progress.
	reshaped *motion.Block

	// residual carries the unfinished remainder of a resumable held move:
	// the original G-code state plus the machine-frame target the reshaped
	// block was cut short of. Requeued at the front of the planner queue
	// on Resume so it plays before the blocks queued behind it.
	residual       *motion.GCodeState
	residualTarget motion.Vector
}

// NewFeedhold wires a Feedhold against the queue/executor pair it will
// reshape blocks on top of.
func NewFeedhold(q *planner.Queue, ex *seg.Executor) *Feedhold {
	return &Feedhold{Queue: q, Executor: ex}
}

// Request begins a feedhold. Idempotent: a second "!" received while a hold
// is already in progress (or complete and awaiting a flush/resume) changes
// nothing, matching g2core's treatment of a feedhold as a level, not an
// edge.
func (f *Feedhold) Request(kind HoldKind) {
	if f.State != motion.FeedholdOff {
		return
	}
	f.Kind = kind
	f.State = motion.FeedholdSyncHold
	f.reshaped = nil
	f.residual = nil
}

// Active reports whether a hold is in progress or complete and not yet
// resumed/flushed.
func (f *Feedhold) Active() bool { return f.State != motion.FeedholdOff }

// Sync advances the feedhold state machine by one dispatch-loop pass. It is
// a no-op (StatusNoop) when no hold is in progress, so the dispatcher can
// call it unconditionally every pass without checking Active first.
//
// Return discipline matters under the dispatcher's abort-on-eagain rule:
// Sync reports StatusEAgain only when it advanced a state this pass (so the
// loop re-enters promptly), and StatusNoop while merely waiting on the
// executor or the DDA to make the next transition possible — returning
// eagain there would starve the very stages the hold depends on.
func (f *Feedhold) Sync() motion.Status {
	switch f.State {
	case motion.FeedholdOff:
		return motion.StatusNoop

	case motion.FeedholdSyncHold, motion.FeedholdDecelContinue:
		return f.syncRunning()

	case motion.FeedholdDecelToZero:
		rt := f.Executor.Runtime
		if rt.Running == nil || rt.Running != f.reshaped {
			f.State = motion.FeedholdDecelComplete
			return motion.StatusEAgain
		}
		return motion.StatusNoop // tail still playing; the executor owns progress

	case motion.FeedholdDecelComplete:
		f.State = motion.FeedholdMotionStopping
		return motion.StatusEAgain

	case motion.FeedholdMotionStopping:
		if f.Executor.Engine.Idle() {
			f.State = motion.FeedholdMotionStopped
			return motion.StatusOK
		}
		return motion.StatusNoop // waiting on the DDA to drain

	default: // motion_stopped
		return motion.StatusNoop
	}
}

// syncRunning reshapes the currently running block (if any new one has
// appeared since the last pass) into a deceleration tail, chaining the hold
// across block boundaries until the computed exit velocity reaches zero.
func (f *Feedhold) syncRunning() motion.Status {
	rt := f.Executor.Runtime
	bf := rt.Running

	if bf == nil {
		// Nothing was running when the hold was requested (or the chain's
		// last reshaped block already finished below zero velocity without
		// a successor): done.
		f.State = motion.FeedholdDecelComplete
		return motion.StatusEAgain
	}

	if bf.Kind != motion.BlockAline {
		// Dwells and commands run to completion unmodified; the hold takes
		// hold of the first Aline block drawn afterward.
		return motion.StatusNoop
	}

	if bf != f.reshaped {
		f.reshape(bf)
		return motion.StatusEAgain
	}
	return motion.StatusNoop // reshaped tail still playing out
}

// reshape overwrites bf's ramp so its remaining length is played as a
// single deceleration tail starting from the executor's current
// instantaneous velocity, per spec.md §4.11's "only length and exit-side
// velocities may be mutated on a running block" rule: CruiseVelocity here
// stands in for "the velocity the tail enters at", not a re-cruise.
func (f *Feedhold) reshape(bf *motion.Block) {
	rt := f.Executor.Runtime
	v0 := motion.MM(rt.Velocity)

	remaining := vectorDistance(rt.Position, bf.Target)
	brakeLen := planner.BrakingLength(bf, v0)

	bf.CruiseVelocity = motion.VelocityFromMM(v0)
	bf.HeadLength, bf.BodyLength = 0, 0
	bf.HeadTime, bf.BodyTime = 0, 0

	var exitV, tailLength float64
	if brakeLen <= remaining {
		tailLength = brakeLen
		exitV = 0
		rt.Waypoints[motion.SectionTail] = pointAlong(rt.Position, bf.Unit, brakeLen)
		f.State = motion.FeedholdDecelToZero
		if f.Kind == HoldResumable && brakeLen < remaining-1e-9 {
			// Stopping short of the move's target: remember the residual
			// so Resume can requeue it ahead of the rest of the queue.
			gm := bf.GCode
			f.residual = &gm
			f.residualTarget = bf.Target
		}
	} else {
		exitV = planner.DecelVelocity(bf, v0, remaining)
		tailLength = remaining
		rt.Waypoints[motion.SectionTail] = bf.Target
		f.State = motion.FeedholdDecelContinue
	}
	bf.TailLength = motion.LenFromMM(tailLength)
	bf.ExitVelocity = motion.VelocityFromMM(exitV)

	if sum := v0 + exitV; sum > 0 {
		bf.TailTime = 2 * tailLength / sum
	} else {
		bf.TailTime = 0
	}

	rt.Section = motion.SectionTail
	rt.SectionState = motion.SectionNew
	f.reshaped = bf
}

// Resume clears a completed hold so motion can continue: legal only once
// motion_stopped has been reached, mirroring g2core's cm_cycle_start(). For
// a resumable hold that stopped short of its move's target, the residual is
// requeued at the front of the planner queue so it plays out before
// anything queued behind the held move; a discard-type hold simply drops
// it (the remainder belongs to the flush that follows).
func (f *Feedhold) Resume() {
	if f.State != motion.FeedholdMotionStopped {
		return
	}
	if f.Kind == HoldResumable && f.residual != nil {
		// Queue-full here means the host stuffed the queue during the
		// hold; the residual is dropped rather than wedging resume.
		_ = f.Queue.RequeueFront(*f.residual, f.Executor.Runtime.Position, f.residualTarget)
	}
	f.residual = nil
	f.State = motion.FeedholdOff
	f.reshaped = nil
}

// vectorDistance returns the Euclidean distance between two machine
// positions across all active axes.
func vectorDistance(a, b motion.Vector) float64 {
	sum := 0.0
	for axis := 0; axis < motion.Axes; axis++ {
		d := b[axis] - a[axis]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// pointAlong returns the position reached moving dist along unit from
// origin.
func pointAlong(origin, unit motion.Vector, dist float64) motion.Vector {
	var p motion.Vector
	for axis := 0; axis < motion.Axes; axis++ {
		p[axis] = origin[axis] + unit[axis]*dist
	}
	return p
}
