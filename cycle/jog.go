package cycle

import (
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
)

// identityRotation is the unrotated work frame ALine expects when a cycle
// queues its own moves outside of the G-code parser's Rotation/ZOffset
// configuration.
var identityRotation = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// jogStepSeconds bounds how far ahead of the current position a single
// jog increment reaches before Sync checks in again; keeps the queue
// topped up with short moves rather than one long one, so lifting the jog
// input takes effect within one increment instead of running to the end of
// a long commanded move.
const jogStepSeconds = 0.1

// Jog implements manual jogging (spec.md §4.11): while active, it keeps the
// planner queue topped up with short incremental moves along a commanded
// direction and feed rate, so releasing the jog input only has to stop
// Sync from queuing further steps — the queue drains on its own rather
// than needing a feedhold.
type Jog struct {
	Queue *planner.Queue

	active    bool
	direction motion.Vector
	feed      motion.Velocity
	pos       motion.Vector
}

// NewJog wires a Jog against the queue it feeds incremental moves into.
func NewJog(q *planner.Queue) *Jog { return &Jog{Queue: q} }

// Start begins jogging from the given current machine position along
// direction at feed. Each increment moves every axis by direction[axis]
// times the step length, so direction is expected to be a unit vector.
func (j *Jog) Start(pos motion.Vector, direction motion.Vector, feed motion.Velocity) {
	j.pos = pos
	j.direction = direction
	j.feed = feed
	j.active = true
}

// Stop ends jogging; the queue is left to drain whatever increments are
// already committed.
func (j *Jog) Stop() { j.active = false }

// Active reports whether jogging is in progress.
func (j *Jog) Active() bool { return j.active }

// Sync queues one more jog increment if the queue has headroom. It is a
// no-op once Stop has been called, and reports StatusNoop (waiting, not
// progress) while the queue is backed up so an abort-on-eagain dispatch
// pass is not starved by a jog that cannot commit anything anyway.
func (j *Jog) Sync() (motion.Status, error) {
	if !j.active {
		return motion.StatusNoop, nil
	}
	if j.Queue.Full() {
		return motion.StatusNoop, nil
	}

	step := motion.MM(j.feed) * jogStepSeconds
	for axis := 0; axis < motion.Axes; axis++ {
		j.pos[axis] += j.direction[axis] * step
	}

	gm := motion.GCodeState{
		Position:   j.pos,
		FeedRate:   j.feed,
		MotionMode: 1,
	}
	if err := j.Queue.ALine(gm, identityRotation, 0); err != nil {
		if err == planner.ErrMinLengthMove {
			return motion.StatusNoop, nil
		}
		return motion.StatusNoop, err
	}
	return motion.StatusOK, nil
}
