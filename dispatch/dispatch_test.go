package dispatch

import (
	"testing"

	"github.com/pathwright/motioncore/config"
	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/conn/gpio/gpiotest"
	"github.com/pathwright/motioncore/cycle"
	"github.com/pathwright/motioncore/dda"
	"github.com/pathwright/motioncore/devices/encoder"
	"github.com/pathwright/motioncore/devices/kinematics"
	"github.com/pathwright/motioncore/gcode"
	"github.com/pathwright/motioncore/lineio"
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
	"github.com/pathwright/motioncore/report"
	"github.com/pathwright/motioncore/seg"
)

const testQueueSize = 8

func newTestDispatcher(t *testing.T) (*Dispatcher, *lineio.Channel, *planner.Queue) {
	t.Helper()

	q := planner.NewQueue(testQueueSize)
	for axis := 0; axis < motion.Axes; axis++ {
		q.Axes[axis] = planner.AxisLimits{
			VelocityMax:      200,
			TraverseMax:      300,
			JerkMax:          50000000,
			MaxJunctionAccel: 100,
		}
	}

	motors := motion.Axes
	stepPins := make([]gpio.PinOut, motors)
	dirPins := make([]gpio.PinOut, motors)
	for i := 0; i < motors; i++ {
		stepPins[i] = &gpiotest.Pin{N: "step"}
		dirPins[i] = &gpiotest.Pin{N: "dir"}
	}
	engine := dda.NewEngine(motors, stepPins, dirPins, nil)
	xform := kinematics.Cartesian{StepsPerUnit: motion.Vector{100, 100, 100, 100, 100, 100}}
	executor := seg.NewExecutor(q, engine, xform, encoder.Static{}, seg.Config{DDAFrequencyHz: 200000})

	parser := gcode.NewParser(q)
	hold := cycle.NewFeedhold(q, executor)
	flush := cycle.NewFlush(q, hold)
	flush.Executor = executor
	jog := cycle.NewJog(q)
	deferred := cycle.NewDeferredCommands(q)
	cfg := config.New()
	rep := report.New(q, 1)
	q.SetQueueReportHook(rep.NoteQueueDelta)

	mux := lineio.NewMux()
	ch := lineio.NewChannel("test", lineio.FlagNone)
	mux.Attach(ch)

	d := New(mux, q, executor, engine, parser, hold, flush, nil, jog, nil,
		deferred, rep, cfg, nil, testQueueSize)
	return d, ch, q
}

func write(t *testing.T, ch *lineio.Channel, s string) {
	t.Helper()
	if _, err := ch.Write([]byte(s)); err != nil {
		t.Fatalf("channel write %q: %v", s, err)
	}
}

func passes(t *testing.T, d *Dispatcher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := d.Pass(); err != nil {
			t.Fatalf("Pass[%d]: %v", i, err)
		}
	}
}

func TestDataLineQueuesBlock(t *testing.T) {
	d, ch, q := newTestDispatcher(t)
	write(t, ch, "G1 X5 F300\n")
	passes(t, d, 1)
	if got := q.Available(); got != testQueueSize-1 {
		t.Fatalf("Available() = %d, want %d after one queued move", got, testQueueSize-1)
	}
}

func TestFeedholdByteIsIdempotent(t *testing.T) {
	d, ch, _ := newTestDispatcher(t)

	write(t, ch, "!")
	passes(t, d, 5)
	if !d.Feedhold.Active() {
		t.Fatalf("feedhold not active after '!'")
	}
	stateAfterFirst := d.Feedhold.State

	write(t, ch, "!")
	passes(t, d, 5)
	if d.Feedhold.State != stateAfterFirst {
		t.Fatalf("second '!' changed hold state: %v -> %v", stateAfterFirst, d.Feedhold.State)
	}
}

func TestPlannerBackpressureBlocksDataIntake(t *testing.T) {
	d, ch, q := newTestDispatcher(t)

	// Occupy enough slots that fewer than Headroom remain free.
	gm := motion.GCodeState{MotionMode: 1, FeedRate: motion.VelocityFromMMPerMin(300)}
	rot := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i := 1; i <= testQueueSize-planner.Headroom+1; i++ {
		gm.Position = motion.Vector{float64(i * 10), 0, 0, 0, 0, 0}
		if err := q.ALine(gm, rot, 0); err != nil {
			t.Fatalf("ALine[%d]: %v", i, err)
		}
	}
	if !q.Full() {
		t.Fatalf("queue not reporting backpressure with %d free", q.Available())
	}

	write(t, ch, "G1 X99 F300\n")
	occupiedBefore := q.Available()
	passes(t, d, 1)
	if q.Available() != occupiedBefore {
		t.Fatalf("data line was dispatched despite planner backpressure")
	}

	// A control byte written behind the parked data line still preempts
	// it. Two passes: the first may be consumed entirely by the executor
	// starting the now-prepped block (an eagain aborts the pass).
	write(t, ch, "!")
	passes(t, d, 2)
	if !d.Feedhold.Active() {
		t.Fatalf("control byte not handled while data intake is gated")
	}
}

func TestJSONConfigWrite(t *testing.T) {
	d, ch, _ := newTestDispatcher(t)
	write(t, ch, "{\"xvm\":150}\n")
	passes(t, d, 1)
	if got := d.Config.GetRawMM("xvm"); got != 150 {
		t.Fatalf("xvm after JSON set = %v, want 150", got)
	}
}

func TestJSONEmbeddedGCode(t *testing.T) {
	d, ch, q := newTestDispatcher(t)
	write(t, ch, "{gc:\"G1 X5 F300\"}\n")
	passes(t, d, 1)
	if got := q.Available(); got != testQueueSize-1 {
		t.Fatalf("Available() = %d, want %d after {gc:...} move", got, testQueueSize-1)
	}
}

func TestTextModeConfigWriteAndRead(t *testing.T) {
	d, ch, _ := newTestDispatcher(t)
	write(t, ch, "$yvm=250\n")
	passes(t, d, 1)
	if got := d.Config.GetRawMM("yvm"); got != 250 {
		t.Fatalf("yvm after $yvm=250 = %v, want 250", got)
	}

	// A bare read and a '?' status request both pass through cleanly.
	write(t, ch, "$yvm\n")
	write(t, ch, "?\n")
	passes(t, d, 2)
	if d.stat != motion.StatReady {
		t.Fatalf("stat after reads = %v, want ready", d.stat)
	}
}

func TestFlushLegalOnlyOnceMotionStopped(t *testing.T) {
	d, ch, q := newTestDispatcher(t)

	write(t, ch, "!")
	passes(t, d, 1)
	if !d.Feedhold.Active() {
		t.Fatalf("hold not requested")
	}

	// With nothing running, the hold walks to motion_stopped over a few
	// passes; then '%' becomes a recognized control byte and flushes.
	passes(t, d, 5)
	if d.Feedhold.State != motion.FeedholdMotionStopped {
		t.Fatalf("hold state = %v, want motion_stopped", d.Feedhold.State)
	}

	write(t, ch, "%")
	passes(t, d, 1)
	if d.Feedhold.Active() {
		t.Fatalf("feedhold still active after flush")
	}
	if q.Available() != testQueueSize {
		t.Fatalf("queue not emptied by flush: %d free of %d", q.Available(), testQueueSize)
	}
}

func TestHoldRefusesDataAndConfigWrites(t *testing.T) {
	d, ch, q := newTestDispatcher(t)

	write(t, ch, "!")
	passes(t, d, 6)
	if d.Feedhold.State != motion.FeedholdMotionStopped {
		t.Fatalf("hold state = %v, want motion_stopped", d.Feedhold.State)
	}

	// A G-code data line is not read while holding; it parks.
	write(t, ch, "G1 X5 F300\n")
	passes(t, d, 2)
	if q.Available() != testQueueSize {
		t.Fatalf("data line dispatched during hold: %d free", q.Available())
	}

	// A JSON config write is refused during the hold...
	before := d.Config.GetRawMM("xvm")
	write(t, ch, "{\"xvm\":150}\n")
	passes(t, d, 1)
	if got := d.Config.GetRawMM("xvm"); got != before {
		t.Fatalf("config write applied during hold: xvm = %v", got)
	}
	// ...but a null-valued query still passes cleanly.
	write(t, ch, "{\"xvm\":n}\n")
	passes(t, d, 1)

	// End-of-hold releases the parked line.
	write(t, ch, "~")
	passes(t, d, 2)
	if d.Feedhold.Active() {
		t.Fatalf("hold still active after '~'")
	}
	if q.Available() != testQueueSize-1 {
		t.Fatalf("parked data line not dispatched after resume: %d free", q.Available())
	}
}

func TestKillJobFlushesAndStops(t *testing.T) {
	d, ch, q := newTestDispatcher(t)
	write(t, ch, "G1 X5 F300\n")
	passes(t, d, 1)

	write(t, ch, "\x04")
	passes(t, d, 1)
	if d.stat != motion.StatProgramStop {
		t.Fatalf("stat after ^D = %v, want program-stop", d.stat)
	}
	if q.Available() != testQueueSize {
		t.Fatalf("queue not flushed by ^D: %d free", q.Available())
	}
}

func TestChecksumFailureDoesNotQueue(t *testing.T) {
	d, ch, q := newTestDispatcher(t)
	// Corrupted checksum: correct XOR for "N42 G1 X5 F100" is not 1.
	write(t, ch, "N42 G1 X5 F100*1\n")
	passes(t, d, 1)
	if got := q.Available(); got != testQueueSize {
		t.Fatalf("corrupt-checksum block was queued: %d free", got)
	}
}

func TestPassRecoversPanicToPanicState(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.Probe = nil
	// Force a nil-pointer panic inside a stage by removing a collaborator
	// the stage dereferences unconditionally.
	d.Feedhold = nil
	if err := d.Pass(); err != nil {
		t.Fatalf("Pass returned error instead of recovering: %v", err)
	}
	if d.stat != motion.StatPanic {
		t.Fatalf("stat after in-stage panic = %v, want panic", d.stat)
	}
}
