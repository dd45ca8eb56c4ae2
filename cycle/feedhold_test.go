package cycle

import (
	"testing"

	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/conn/gpio/gpiotest"
	"github.com/pathwright/motioncore/dda"
	"github.com/pathwright/motioncore/devices/encoder"
	"github.com/pathwright/motioncore/devices/kinematics"
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
	"github.com/pathwright/motioncore/seg"
)

func newTestQueue() *planner.Queue {
	q := planner.NewQueue(8)
	for axis := 0; axis < motion.Axes; axis++ {
		q.Axes[axis] = planner.AxisLimits{
			VelocityMax:      200,
			TraverseMax:      300,
			JerkMax:          50000000,
			MaxJunctionAccel: 100000,
		}
	}
	return q
}

func newTestExecutor(q *planner.Queue) *seg.Executor {
	motors := motion.Axes
	stepPins := make([]gpio.PinOut, motors)
	dirPins := make([]gpio.PinOut, motors)
	for i := 0; i < motors; i++ {
		stepPins[i] = &gpiotest.Pin{N: "step"}
		dirPins[i] = &gpiotest.Pin{N: "dir"}
	}
	engine := dda.NewEngine(motors, stepPins, dirPins, nil)
	xform := kinematics.Cartesian{StepsPerUnit: motion.Vector{100, 100, 100, 100, 100, 100}}
	enc := encoder.Static{}
	return seg.NewExecutor(q, engine, xform, enc, seg.Config{DDAFrequencyHz: 200000})
}

// driveExec runs the executor forward one segment, standing in for a timer
// ISR driving dda.Engine.Tick by pulling the just-submitted segment into
// the run state directly (see dda.Engine.Loader's doc comment).
func driveExec(t *testing.T, exec *seg.Executor) (seg.Status, error) {
	t.Helper()
	status, err := exec.Run()
	exec.Engine.Loader()
	exec.Engine.DrainTicks()
	return status, err
}

func runToCompletion(t *testing.T, exec *seg.Executor, maxIter int) {
	t.Helper()
	for i := 0; i < maxIter; i++ {
		status, err := driveExec(t, exec)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if status == seg.StatusOK {
			return
		}
	}
	t.Fatalf("executor did not finish within %d iterations", maxIter)
}

func TestFeedholdRequestIsIdempotent(t *testing.T) {
	q := newTestQueue()
	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)

	hold.Request(HoldResumable)
	if hold.State != motion.FeedholdSyncHold {
		t.Fatalf("State after Request = %v, want sync", hold.State)
	}
	hold.Kind = HoldResumable
	hold.Request(HoldDiscard)
	if hold.Kind != HoldResumable {
		t.Fatalf("a second Request while active changed Kind to %v, want it to stay %v", hold.Kind, HoldResumable)
	}
}

func TestFeedholdReshapesRunningBlockToZero(t *testing.T) {
	q := newTestQueue()
	gm := motion.GCodeState{MotionMode: 1, FeedRate: motion.VelocityFromMMPerMin(6000)}
	gm.Position = motion.Vector{50, 0, 0, 0, 0, 0}
	if err := q.ALine(gm, identityRotation, 0); err != nil {
		t.Fatalf("ALine: %v", err)
	}
	q.BackPlan()
	if !q.ForwardPlan() {
		t.Fatalf("ForwardPlan did not plan the queued block")
	}

	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)

	// Run the executor a few segments into the move before requesting a
	// hold, so Velocity is nonzero and there is remaining length to
	// decelerate over.
	for i := 0; i < 5; i++ {
		if _, err := driveExec(t, exec); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	hold.Request(HoldDiscard)
	if status := hold.Sync(); status != motion.StatusEAgain {
		t.Fatalf("Sync() first call = %v, want EAgain", status)
	}
	if hold.State != motion.FeedholdDecelToZero && hold.State != motion.FeedholdDecelContinue {
		t.Fatalf("State after first Sync = %v, want a decel state", hold.State)
	}
	if exec.Runtime.Section != motion.SectionTail {
		t.Fatalf("Runtime.Section after reshape = %v, want tail", exec.Runtime.Section)
	}

	// Drive the executor/feedhold pair until motion_stopped, bounded.
	for i := 0; i < 100000 && hold.State != motion.FeedholdMotionStopped; i++ {
		if _, err := driveExec(t, exec); err != nil {
			t.Fatalf("Run: %v", err)
		}
		hold.Sync()
	}
	if hold.State != motion.FeedholdMotionStopped {
		t.Fatalf("feedhold never reached motion_stopped")
	}
}

func TestFeedholdResumeRequeuesResidual(t *testing.T) {
	q := newTestQueue()
	gm := motion.GCodeState{MotionMode: 1, FeedRate: motion.VelocityFromMMPerMin(6000)}
	gm.Position = motion.Vector{50, 0, 0, 0, 0, 0}
	if err := q.ALine(gm, identityRotation, 0); err != nil {
		t.Fatalf("ALine: %v", err)
	}
	q.BackPlan()
	if !q.ForwardPlan() {
		t.Fatalf("ForwardPlan did not plan the queued block")
	}

	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)

	for i := 0; i < 5; i++ {
		if _, err := driveExec(t, exec); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	hold.Request(HoldResumable)
	hold.Sync()
	if hold.State != motion.FeedholdDecelToZero {
		t.Fatalf("State after reshape = %v, want decel_to_zero for a long move", hold.State)
	}

	for i := 0; i < 100000 && hold.State != motion.FeedholdMotionStopped; i++ {
		if _, err := driveExec(t, exec); err != nil {
			t.Fatalf("Run: %v", err)
		}
		hold.Sync()
	}
	if hold.State != motion.FeedholdMotionStopped {
		t.Fatalf("feedhold never reached motion_stopped")
	}
	stopped := exec.Runtime.Position[0]
	if stopped <= 0 || stopped >= 50 {
		t.Fatalf("stopped position = %v, want strictly inside the move", stopped)
	}

	hold.Resume()
	if hold.Active() {
		t.Fatalf("hold still active after Resume")
	}
	bf := q.RunBlock()
	if bf == nil {
		t.Fatalf("no residual block requeued on resume")
	}
	if bf.Target[0] != 50 {
		t.Fatalf("residual target = %v, want the original 50", bf.Target[0])
	}
	wantLen := 50 - stopped
	if got := motion.LenMM(bf.Length); got < wantLen-0.01 || got > wantLen+0.01 {
		t.Fatalf("residual length = %vmm, want ~%vmm", got, wantLen)
	}
}

func TestFeedholdSyncIsNoopWhenOff(t *testing.T) {
	q := newTestQueue()
	exec := newTestExecutor(q)
	hold := NewFeedhold(q, exec)
	if status := hold.Sync(); status != motion.StatusNoop {
		t.Fatalf("Sync() with no hold active = %v, want StatusNoop", status)
	}
}
