package cycle

import (
	"testing"

	"github.com/pathwright/motioncore/motion"
)

func TestFlushRejectsWhileHoldInProgress(t *testing.T) {
	q := newTestQueue()
	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)
	flush := NewFlush(q, hold)

	hold.Request(HoldDiscard)
	if err := flush.Run(); err != ErrFlushNotStopped {
		t.Fatalf("Run() while hold is mid-sequence = %v, want ErrFlushNotStopped", err)
	}
}

func TestFlushSucceedsOnceMotionStopped(t *testing.T) {
	q := newTestQueue()
	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)
	flush := NewFlush(q, hold)

	gm := motion.GCodeState{MotionMode: 1, FeedRate: motion.VelocityFromMMPerMin(600)}
	gm.Position = motion.Vector{5, 0, 0, 0, 0, 0}
	if err := q.ALine(gm, identityRotation, 0); err != nil {
		t.Fatalf("ALine: %v", err)
	}
	q.BackPlan()
	q.ForwardPlan()

	hold.State = motion.FeedholdMotionStopped
	if err := flush.Run(); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if hold.State != motion.FeedholdOff {
		t.Fatalf("Feedhold.State after flush = %v, want off", hold.State)
	}
	if q.RunBlock() != nil {
		t.Fatalf("RunBlock() after flush = non-nil, want the queue empty")
	}
	if q.Available() != 8 {
		t.Fatalf("Available() after flush = %d, want the full ring (8) free", q.Available())
	}
}

func TestFlushResyncsPlannerPositionToRuntime(t *testing.T) {
	q := newTestQueue()
	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)
	flush := NewFlush(q, hold)
	flush.Executor = exec

	gm := motion.GCodeState{MotionMode: 1, FeedRate: motion.VelocityFromMMPerMin(600)}
	gm.Position = motion.Vector{40, 0, 0, 0, 0, 0}
	if err := q.ALine(gm, identityRotation, 0); err != nil {
		t.Fatalf("ALine: %v", err)
	}
	// The machine stopped partway along the move.
	exec.Runtime.Position = motion.Vector{12.5, 0, 0, 0, 0, 0}
	hold.State = motion.FeedholdMotionStopped

	if err := flush.Run(); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := q.Position(); got != exec.Runtime.Position {
		t.Fatalf("planner position after flush = %v, want runtime position %v", got, exec.Runtime.Position)
	}
}

func TestFlushWithNoActiveHoldSucceeds(t *testing.T) {
	q := newTestQueue()
	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)
	flush := NewFlush(q, hold)

	if err := flush.Run(); err != nil {
		t.Fatalf("Run() on an idle queue = %v, want nil", err)
	}
}
