package seg

import (
	"math"
	"testing"
	"time"

	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/conn/gpio/gpiotest"
	"github.com/pathwright/motioncore/dda"
	"github.com/pathwright/motioncore/devices/encoder"
	"github.com/pathwright/motioncore/devices/kinematics"
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
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

func newTestExecutor(q *planner.Queue) *Executor {
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

	return NewExecutor(q, engine, xform, enc, Config{DDAFrequencyHz: 200000})
}

func identity() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func TestExecutorRunsAlineBlockToCompletion(t *testing.T) {
	q := newTestQueue()

	gm := motion.GCodeState{MotionMode: 1, FeedRate: motion.VelocityFromMMPerMin(6000)}
	gm.Position = motion.Vector{10, 0, 0, 0, 0, 0}
	if err := q.ALine(gm, identity(), 0); err != nil {
		t.Fatalf("ALine: %v", err)
	}
	q.BackPlan()
	if !q.ForwardPlan() {
		t.Fatalf("ForwardPlan did not plan the queued block")
	}

	exec := newTestExecutor(q)

	var status Status
	var err error
	iterations := 0
	for {
		status, err = exec.Run()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if status == StatusNoop {
			t.Fatalf("executor went idle before the block completed")
		}
		if status == StatusOK {
			break
		}
		// No timer ISR drives Engine.Tick in this test, so pull the
		// just-submitted segment into the run state directly, standing in
		// for the tick engine having counted the previous one down to
		// zero (dda.Engine.Loader's doc comment invites exactly this).
		exec.Engine.Loader()
		iterations++
		if iterations > 100000 {
			t.Fatalf("executor did not finish within a bounded number of segments")
		}
	}

	if math.Abs(exec.Runtime.Position[0]-10) > 1e-6 {
		t.Fatalf("final position[0] = %v, want 10", exec.Runtime.Position[0])
	}
	if q.RunBlock() != nil {
		t.Fatalf("run buffer should have been freed")
	}
}

func TestExecutorDwellBlock(t *testing.T) {
	q := newTestQueue()
	if err := q.Dwell(0.005); err != nil {
		t.Fatalf("Dwell: %v", err)
	}
	q.BackPlan()
	q.ForwardPlan()

	exec := newTestExecutor(q)

	start := time.Now()
	iterations := 0
	for {
		status, err := exec.Run()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if status == StatusOK {
			break
		}
		time.Sleep(time.Millisecond)
		iterations++
		if iterations > 1000 {
			t.Fatalf("dwell did not complete")
		}
	}
	if time.Since(start) < 4*time.Millisecond {
		t.Fatalf("dwell finished in %v, want it to hold for ~5ms of wall clock", time.Since(start))
	}
}

func TestExecutorCommandBlock(t *testing.T) {
	q := newTestQueue()
	ran := false
	if err := q.QueueCommand("test", func() error { ran = true; return nil }); err != nil {
		t.Fatalf("QueueCommand: %v", err)
	}
	q.BackPlan()
	q.ForwardPlan()

	exec := newTestExecutor(q)
	status, err := exec.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("status = %v, want StatusOK", status)
	}
	if !ran {
		t.Fatalf("command callback did not run")
	}
}
