package seg

import (
	"math"
	"time"

	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/dda"
	"github.com/pathwright/motioncore/devices/encoder"
	"github.com/pathwright/motioncore/devices/kinematics"
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
)

// NomSegmentUsec is the target segment duration the executor sizes a ramp
// section's segment count against: ceil(section_time / NomSegmentUsec).
// plan_exec.cpp references NOM_SEGMENT_USEC/MIN_SEGMENT_TIME throughout but
// neither constant's definition was present in the retrieved source (they
// live in a settings.h this pack did not include); 1.5ms is the value
// g2core ships in its default profiles, reused here rather than invented.
const NomSegmentUsec = 1500

// MinSegmentTime is the floor on a single segment's duration: a section
// shorter than this runs as one segment rather than being subdivided.
const MinSegmentTime = 0.0001

// Status is the cooperative-scheduling result of one Executor.Run call,
// named after g2core's STAT_OK/STAT_EAGAIN/STAT_NOOP return codes from
// mp_exec_aline's case table. Reuses motion.Status, the same contract the
// gcode arc generator, the cycle state machines, and the dispatch package's
// staged loop all return.
type Status = motion.Status

const (
	// StatusNoop means there was no running block and none became
	// available; the caller should not call Run again until the queue
	// changes.
	StatusNoop = motion.StatusNoop
	// StatusEAgain means progress is still pending on the current block
	// (or the DDA prep buffer was not yet free) and Run should be called
	// again at the next exec priority opportunity.
	StatusEAgain = motion.StatusEAgain
	// StatusOK means the running block completed on this call.
	StatusOK = motion.StatusOK
)

// Config holds the executor's machine-wide tunables: the DDA tick rate and
// the following-error correction gain (spec.md §4.8.1).
type Config struct {
	// DDAFrequencyHz is the fixed tick rate Engine.Tick is driven at
	// (spec.md §4.9's FREQUENCY_DDA).
	DDAFrequencyHz float64

	// FollowingErrorGain scales the per-segment encoder/commanded step
	// mismatch into a correction folded into the next segment's step
	// delta. Zero disables correction entirely (encoder becomes pure
	// telemetry).
	FollowingErrorGain float64

	// FollowingErrorMaxSteps clamps the correction applied in a single
	// segment, so a stale or glitched encoder reading cannot inject a
	// large unwanted step burst.
	FollowingErrorMaxSteps int32
}

// Executor is the segment executor of spec.md §4.8 ("mr" plus the dispatch
// loop that drives it in g2core): it takes the running block from the
// planner queue, walks its head/body/tail sections one Bezier-FD segment at
// a time, and hands each segment's per-motor step delta to the DDA engine's
// prep buffer. Exactly one Executor exists per machine; Run is expected to
// be called from the exec priority context only.
type Executor struct {
	Queue     *planner.Queue
	Engine    *dda.Engine
	Transform kinematics.Transform
	Encoder   encoder.Source
	Runtime   *motion.RuntimeState
	Config    Config

	fd               *BezierFD
	lastSegmentTicks uint32

	// dwellDeadline is the wall-clock instant the in-flight dwell block
	// expires at; zero when no dwell is running (spec.md §4.10's
	// systick-backed downcount, expressed against the hosted clock).
	dwellDeadline time.Time
}

// NewExecutor wires the four collaborators spec.md §1 lists around the
// segment executor (queue, DDA engine, kinematics transform, encoder
// telemetry) into a ready-to-run Executor with a fresh RuntimeState.
func NewExecutor(q *planner.Queue, engine *dda.Engine, xform kinematics.Transform, enc encoder.Source, cfg Config) *Executor {
	return &Executor{
		Queue:     q,
		Engine:    engine,
		Transform: xform,
		Encoder:   enc,
		Runtime:   &motion.RuntimeState{},
		Config:    cfg,
	}
}

// Run advances the machine by exactly one unit of work: taking a new block
// if idle, normalizing a freshly-taken block, or preparing the next segment
// of the block already running. It is meant to be called in a tight loop by
// the exec priority context; StatusEAgain means "call again immediately",
// mirroring plan_exec.cpp's case table at the end of mp_exec_aline().
func (e *Executor) Run() (Status, error) {
	rt := e.Runtime

	if rt.BlockSubState == motion.BlockSubStateInactive {
		bf := e.Queue.RunBlock()
		if bf == nil || bf.State != motion.BlockStatePrepped {
			// Nothing runnable: either the queue is empty or the forward
			// planner has not resolved the run block's ramp yet.
			return StatusNoop, nil
		}
		bf.State = motion.BlockStateRunning
		rt.Running = bf
		rt.BlockSubState = motion.BlockSubStateInitial
	}

	bf := rt.Running

	if rt.BlockSubState == motion.BlockSubStateInitial {
		e.normalizeBlock(bf)
		rt.BlockSubState = motion.BlockSubStateActive
	}

	switch bf.Kind {
	case motion.BlockDwell:
		return e.runDwell(bf)
	case motion.BlockCommand:
		return e.runCommand(bf)
	default:
		return e.runAline(bf)
	}
}

// normalizeBlock resets the runtime state's per-block working set for a
// freshly taken block: unit vector, entry velocity, waypoints and the
// first section. Grounded on plan_exec.cpp's _exec_aline_normalize_block().
func (e *Executor) normalizeBlock(bf *motion.Block) {
	rt := e.Runtime
	rt.Unit = bf.Unit
	rt.EntryVelocity = bf.EntryVelocity
	rt.PositionComp = motion.Vector{}

	pos := rt.Position
	head := motion.LenMM(bf.HeadLength)
	body := motion.LenMM(bf.BodyLength)
	for axis := 0; axis < motion.Axes; axis++ {
		rt.Waypoints[0][axis] = pos[axis] + rt.Unit[axis]*head
		rt.Waypoints[1][axis] = rt.Waypoints[0][axis] + rt.Unit[axis]*body
		rt.Waypoints[2][axis] = bf.Target[axis]
	}

	rt.Section = motion.SectionHead
	rt.SectionState = motion.SectionNew
	e.fd = nil
}

// runDwell times out a pure time delay; no step pulses are generated. The
// deadline is latched from the block's payload the first time this block is
// seen; while the clock runs the executor reports StatusNoop (waiting, not
// progress) so the rest of the dispatch pass keeps running under the
// abort-on-eagain rule.
func (e *Executor) runDwell(bf *motion.Block) (Status, error) {
	if e.dwellDeadline.IsZero() {
		e.dwellDeadline = time.Now().Add(time.Duration(bf.Dwell.Seconds * float64(time.Second)))
		return StatusEAgain, nil
	}
	if time.Now().Before(e.dwellDeadline) {
		return StatusNoop, nil
	}
	e.dwellDeadline = time.Time{}
	return e.finishBlock(), nil
}

// runCommand executes a synchronous, non-motion action immediately (it has
// no sub-segments) and frees the block on the same call.
func (e *Executor) runCommand(bf *motion.Block) (Status, error) {
	if bf.Command.Func != nil {
		if err := bf.Command.Func(); err != nil {
			return StatusEAgain, err
		}
	}
	return e.finishBlock(), nil
}

// runAline prepares exactly one segment of the current section (head, body,
// or tail) of an Aline block, handing the per-motor step delta to the DDA
// engine's prep buffer once it is free. Grounded on plan_exec.cpp's
// _exec_aline_head/_exec_aline_body/_exec_aline_tail/_exec_aline_segment.
func (e *Executor) runAline(bf *motion.Block) (Status, error) {
	prep := e.Engine.Prep()
	if !prep.OwnedByExec() {
		// The DDA has not yet consumed the previous segment: nothing to do
		// until the loader hands the buffer back, so report noop rather
		// than eagain and let the rest of the dispatch pass proceed.
		return StatusNoop, nil
	}

	if e.Runtime.SectionState == motion.SectionNew {
		if !e.enterSection(bf) {
			// Zero-length section (common for a cruise-only or ramp-only
			// move); skip straight to the next one.
			return e.advanceSection(bf)
		}
	}

	v0, v1 := e.segmentVelocity()
	segTime := e.Runtime.SegmentTime
	dist := (v0 + v1) / 2 * segTime

	last := e.Runtime.SegmentCount == e.Runtime.TotalSegments-1
	e.applySegment(bf, dist, last)

	e.Runtime.Velocity = motion.VelocityFromMM(v1)
	if e.fd != nil {
		e.fd.Advance()
	}

	e.Runtime.SegmentCount++
	prep.Submit()

	if e.Runtime.SegmentCount >= e.Runtime.TotalSegments {
		return e.advanceSection(bf)
	}
	return StatusEAgain, nil
}

// enterSection sizes the section the runtime is about to start (segment
// count and per-segment duration) and seeds the Bezier FD for head/tail or
// the constant cruise velocity for body. Returns false if the section has
// zero duration and should be skipped entirely.
func (e *Executor) enterSection(bf *motion.Block) bool {
	rt := e.Runtime

	var sectionTime, v0, v1 float64
	switch rt.Section {
	case motion.SectionHead:
		sectionTime = bf.HeadTime
		v0 = motion.MM(bf.EntryVelocity)
		v1 = motion.MM(bf.CruiseVelocity)
	case motion.SectionBody:
		sectionTime = bf.BodyTime
		v0 = motion.MM(bf.CruiseVelocity)
		v1 = v0
	case motion.SectionTail:
		sectionTime = bf.TailTime
		v0 = motion.MM(bf.CruiseVelocity)
		v1 = motion.MM(bf.ExitVelocity)
	}

	if sectionTime <= 0 {
		return false
	}

	segments := math.Ceil(sectionTime / (NomSegmentUsec / 1e6))
	if segments < 1 {
		segments = 1
	}

	rt.TotalSegments = int32(segments)
	rt.SegmentCount = 0
	rt.SegmentTime = sectionTime / segments
	if rt.SegmentTime < MinSegmentTime {
		rt.SegmentTime = MinSegmentTime
	}

	if rt.Section == motion.SectionBody || segments == 1 {
		e.fd = nil
		rt.Velocity = motion.VelocityFromMM(v0)
	} else {
		e.fd = NewBezierFD(v0, v1, segments)
		rt.Velocity = motion.VelocityFromMM(e.fd.Velocity)
	}

	rt.SectionState = motion.SectionRunning
	return true
}

// segmentVelocity returns the (start, end) velocity pair for the segment
// about to be applied.
func (e *Executor) segmentVelocity() (v0, v1 float64) {
	if e.fd == nil {
		v := motion.MM(e.Runtime.Velocity)
		return v, v
	}
	return e.fd.Velocity, e.fd.Target
}

// applySegment advances the machine position by dist along the block's unit
// vector (Kahan-compensated per axis, spec.md §4.8 step 5), snapping to the
// section's waypoint on the section's final segment to prevent long-run
// float drift, converts the new position to motor steps via the kinematics
// transform, applies any following-error correction, and fills the DDA prep
// buffer with the resulting per-motor increments.
func (e *Executor) applySegment(bf *motion.Block, dist float64, lastInSection bool) {
	rt := e.Runtime

	newPos := rt.Position
	if lastInSection {
		newPos = rt.Waypoints[rt.Section]
	} else {
		for axis := 0; axis < motion.Axes; axis++ {
			newPos[axis] = kahanAdd(rt.Position[axis], &rt.PositionComp[axis], rt.Unit[axis]*dist)
		}
	}

	steps := e.Transform.Inverse(newPos, rt.Position)
	rt.Position = newPos

	ticks := uint32(math.Round(rt.SegmentTime * e.Config.DDAFrequencyHz))
	if ticks < 1 {
		ticks = 1
	}
	previousTicks := e.lastSegmentTicks
	timeChanged := ticks != previousTicks
	e.lastSegmentTicks = ticks

	prep := e.Engine.Prep()
	prep.Ticks = ticks
	prep.SegmentTimeChanged = timeChanged

	for axis := 0; axis < motion.Axes && axis < dda.MaxMotors; axis++ {
		deltaf := steps[axis] - rt.PreviousSteps[axis]
		delta := int32(math.Round(deltaf))
		delta = e.correctFollowingError(axis, rt.PreviousSteps[axis], delta)
		rt.PreviousSteps[axis] += float64(delta)

		m := &prep.Motors[axis]
		m.Direction = gpio.Level(delta < 0)
		if delta < 0 {
			delta = -delta
		}
		m.SubstepIncrement = delta
		m.AccumulatorCorrectionFlag = timeChanged
		if timeChanged && previousTicks > 0 {
			m.AccumulatorCorrection = float64(ticks) / float64(previousTicks)
		}
	}
}

// correctFollowingError folds a bounded nudge from the encoder's reported
// position into this segment's commanded step delta (spec.md §4.8.1). The
// encoder is read-only telemetry: this never writes a setpoint back to the
// bus, it only adjusts how many steps the DDA is asked to take next.
func (e *Executor) correctFollowingError(motor int, commandedBefore float64, delta int32) int32 {
	if e.Encoder == nil || e.Config.FollowingErrorGain == 0 {
		return delta
	}
	actual, ok := e.Encoder.Position(motor)
	if !ok {
		return delta
	}
	err := actual - int32(math.Round(commandedBefore))
	nudge := int32(float64(err) * e.Config.FollowingErrorGain)
	if cap := e.Config.FollowingErrorMaxSteps; cap > 0 {
		if nudge > cap {
			nudge = cap
		}
		if nudge < -cap {
			nudge = -cap
		}
	}
	return delta + nudge
}

// advanceSection moves to the next ramp section, or finishes the block if
// the tail just completed.
func (e *Executor) advanceSection(bf *motion.Block) (Status, error) {
	rt := e.Runtime
	switch rt.Section {
	case motion.SectionHead:
		rt.Section = motion.SectionBody
	case motion.SectionBody:
		rt.Section = motion.SectionTail
	case motion.SectionTail:
		return e.finishBlock(), nil
	}
	rt.SectionState = motion.SectionNew
	return StatusEAgain, nil
}

// finishBlock releases the run buffer back to the planner's pool, records
// the exit velocity the next block will enter at, and resets the runtime
// state to idle so the next Run call takes a fresh block.
func (e *Executor) finishBlock() Status {
	bf := e.Runtime.Running
	if bf.Kind == motion.BlockAline {
		e.Queue.SetEntryVelocity(motion.MM(bf.ExitVelocity))
	}
	e.Queue.FreeRunBuffer()

	e.Runtime.Running = nil
	e.Runtime.BlockSubState = motion.BlockSubStateInactive
	e.Runtime.Section = motion.SectionHead
	e.Runtime.SectionState = motion.SectionNew
	e.fd = nil
	return StatusOK
}

// kahanAdd adds value to *sum with Kahan compensation tracked in *comp,
// returning the new sum. Grounded on spec.md §4.8 step 5 and §8's
// position-conservation test, which require the segment accumulator not to
// drift over a long run of small additions.
func kahanAdd(sum float64, comp *float64, value float64) float64 {
	y := value - *comp
	t := sum + y
	*comp = (t - sum) - y
	return t
}
