// Package dda implements the fixed-frequency step-pulse engine of spec.md
// §4.9: a per-motor Bresenham (digital differential analyzer) accumulator
// driven by Engine.Tick, plus the segment Loader that hands a freshly
// prepared segment from the "owned_by_exec" side of the double-buffered
// prep record to the "owned_by_loader" side the DDA reads from.
//
// Go has no hardware interrupt priorities, so the handoff discipline
// spec.md §5/§9 describes (a release on the writer, an acquire on the
// reader) is implemented with sync/atomic rather than a real ISR priority
// level: Engine.Tick runs on the timer goroutine cmd/motionctld starts,
// the exec-priority caller (seg.Executor) fills and Submits the prep
// buffer from the dispatch goroutine, and the atomic owner flip is the
// only synchronization between them — exactly the "lightest barrier the
// platform's ISA supports" spec.md §9 asks for.
package dda

import (
	"sync/atomic"

	"github.com/pathwright/motioncore/conn/gpio"
)

// MaxMotors bounds the fixed-size per-motor arrays below. spec.md §6 caps
// the wire's axis count at 9; a CoreXY/delta machine drives at most that
// many physical motors through devices/kinematics.
const MaxMotors = 9

// Owner values for PrepBuffer's atomic flip.
const (
	ownedByExec   int32 = 0
	ownedByLoader int32 = 1
)

// MotorPrep is one motor's contribution to a prepared segment: the
// Bresenham increment the DDA accumulates each tick, direction, and the
// accumulator-correction terms the loader applies when direction or
// time-base changes between segments (spec.md §4.9's "segment loader"
// bullet list). Grounded on stepper.cpp's stPrepMotor fields
// (substep_increment, accumulator_correction, accumulator_correction_flag).
type MotorPrep struct {
	SubstepIncrement int32
	Direction        gpio.Level // true == reverse, matching g2core's DIRECTION_CW/CCW sense

	// AccumulatorCorrection is the ratio applied to the *running* substep
	// accumulator when this segment's time base differs from the previous
	// one for this motor (keeps DDA phase coherent across a ramp's
	// section boundaries). AccumulatorCorrectionFlag gates whether the
	// loader applies it this load.
	AccumulatorCorrection     float64
	AccumulatorCorrectionFlag bool
}

// PrepBuffer is the single double-buffered record handed from the segment
// executor to the DDA loader (spec.md §3 "DDA Prep"). Only the current
// owner (tracked by the atomic owner field) may mutate Motors/Ticks.
type PrepBuffer struct {
	owner int32 // atomic; ownedByExec | ownedByLoader

	Motors             [MaxMotors]MotorPrep
	Ticks              uint32 // DDA ticks this segment should run for
	SegmentTimeChanged bool   // true if segment_time differs from the previous segment globally
}

// NewPrepBuffer returns a buffer initially owned by the exec side, matching
// stepper.cpp's st_pre.buffer_state = PREP_BUFFER_OWNED_BY_EXEC at init.
func NewPrepBuffer() *PrepBuffer {
	return &PrepBuffer{owner: ownedByExec}
}

// OwnedByExec reports whether the exec-priority caller may currently write
// into p (an acquire read of the owner flag).
func (p *PrepBuffer) OwnedByExec() bool {
	return atomic.LoadInt32(&p.owner) == ownedByExec
}

// Submit hands p from the exec side to the loader side: a release store,
// per spec.md §9's memory-order discipline, ensuring every field write
// above this call is visible to the next Tick/Loader pass that observes
// OwnedByLoader.
func (p *PrepBuffer) Submit() {
	atomic.StoreInt32(&p.owner, ownedByLoader)
}

// ownedByLoaderSide is the loader-side acquire check; releaseToExec hands
// the buffer back to exec once the loader has consumed it.
func (p *PrepBuffer) ownedByLoaderSide() bool {
	return atomic.LoadInt32(&p.owner) == ownedByLoader
}

func (p *PrepBuffer) releaseToExec() {
	atomic.StoreInt32(&p.owner, ownedByExec)
}

// motorRunState ("st_run.mot[motor]" in g2core) is mutated only inside
// Engine.Tick/Loader — never by the exec or planner contexts.
type motorRunState struct {
	accumulator int32
	increment   int32
	direction   gpio.Level
	energized   bool
	stepCount   int64 // cumulative steps issued, the "encoder-intent" counter spec.md §4.9 step 3 mentions
}

// RunState ("st_run") is the DDA's own working set: per-motor accumulators
// plus the global tick downcount. Exported only for the reporter's queue/
// status snapshots; nothing outside this package mutates it. TickDowncount
// is the one field read from outside the timer goroutine (Idle), so it is
// accessed atomically everywhere.
type RunState struct {
	Motors         [MaxMotors]motorRunState
	TickDowncount  uint32
	TicksXSubsteps int32
}

// Engine drives Motors physical step/direction pins at a fixed tick rate
// (spec.md §4.9's FREQUENCY_DDA, typically 200kHz). Tick is meant to be
// called by a platform timer ISR (or, in this hosted Go core, a
// high-priority ticker goroutine); Engine never starts that timer itself,
// matching spec.md's placement of systick/timer control as an out-of-scope
// hardware collaborator (spec.md §1).
type Engine struct {
	StepPins []gpio.PinOut
	DirPins  []gpio.PinOut
	EnPins   []gpio.PinOut // optional; nil entries are treated as always-enabled

	Motors int

	prep *PrepBuffer
	run  RunState

	// StartTimer/StopTimer are the hardware timer controls spec.md keeps as
	// an external collaborator; Engine calls them at segment boundaries.
	// Both may be nil for a free-running timer that Tick is simply not
	// invoked for when idle.
	StartTimer func()
	StopTimer  func()

	// RequestExec is the dda-priority "chain-call the segment loader at the
	// current priority" hook (spec.md §4.9 step 4): invoked once a
	// segment's ticks are exhausted, after the loader pulls in the next
	// prepared segment. It is also how the loader asks the exec context to
	// prepare the *next* segment once this one is submitted (spec.md §4.9,
	// Segment loader: "schedule an exec interrupt").
	RequestExec func()
}

// NewEngine constructs an Engine for the given motor count and pin sets,
// with its own fresh PrepBuffer owned by the exec side.
func NewEngine(motors int, stepPins, dirPins, enPins []gpio.PinOut) *Engine {
	return &Engine{
		StepPins: stepPins,
		DirPins:  dirPins,
		EnPins:   enPins,
		Motors:   motors,
		prep:     NewPrepBuffer(),
	}
}

// Prep returns the engine's PrepBuffer, for the segment executor to fill in
// and Submit() once it has computed the next segment's per-motor
// increments (spec.md §4.8 step 5's "pass to DDA prep").
func (e *Engine) Prep() *PrepBuffer { return e.prep }

// Tick runs one DDA timer period: clears pulses from the previous tick,
// accumulates each motor's Bresenham increment and fires a step pulse on
// overflow, and on the last tick of a segment invokes Loader. Grounded
// verbatim on stepper.cpp's ISR (the four numbered steps of spec.md §4.9).
func (e *Engine) Tick() {
	// 1. Clear all step pins (ends last tick's pulse).
	for i := 0; i < e.Motors; i++ {
		if e.StepPins[i] != nil {
			e.StepPins[i].Out(gpio.Low)
		}
	}

	// 2. If tick downcount is zero, stop the timer; return.
	if atomic.LoadUint32(&e.run.TickDowncount) == 0 {
		if e.StopTimer != nil {
			e.StopTimer()
		}
		return
	}

	// 3. Per-motor Bresenham accumulate-and-pulse.
	for i := 0; i < e.Motors; i++ {
		m := &e.run.Motors[i]
		m.accumulator += m.increment
		if m.accumulator > 0 {
			if e.StepPins[i] != nil {
				e.StepPins[i].Out(gpio.High)
			}
			m.accumulator -= e.run.TicksXSubsteps
			m.stepCount++
		}
	}

	// 4. Decrement tick downcount; if zero, chain-call the loader.
	if atomic.AddUint32(&e.run.TickDowncount, ^uint32(0)) == 0 {
		e.Loader()
	}
}

// Loader pulls the next prepared segment into RunState if the prep buffer
// has been submitted by the exec side, applying direction-reversal
// accumulator reflection and time-base correction, then re-arms the timer
// and hands the buffer back to exec. Grounded on stepper.cpp's
// _load_move(). Runs "at DDA priority" in the original; here it is called
// in-line from Tick, or may be invoked directly by tests.
func (e *Engine) Loader() {
	if !e.prep.ownedByLoaderSide() {
		return // nothing to do
	}

	e.run.TicksXSubsteps = int32(e.prep.Ticks)
	for i := 0; i < e.Motors; i++ {
		p := &e.prep.Motors[i]
		m := &e.run.Motors[i]

		m.increment = p.SubstepIncrement
		if p.SubstepIncrement == 0 {
			continue
		}

		if p.AccumulatorCorrectionFlag {
			p.AccumulatorCorrectionFlag = false
			m.accumulator = int32(float64(m.accumulator) * p.AccumulatorCorrection)
		}

		if p.Direction != m.direction {
			m.direction = p.Direction
			if e.DirPins != nil && i < len(e.DirPins) && e.DirPins[i] != nil {
				e.DirPins[i].Out(p.Direction)
			}
			// Reflect the accumulator about its midpoint on a direction
			// change, preserving sub-step phase across the reversal
			// (spec.md §4.9).
			m.accumulator = -(e.run.TicksXSubsteps + m.accumulator)
		}

		if !m.energized && e.EnPins != nil && i < len(e.EnPins) && e.EnPins[i] != nil {
			e.EnPins[i].Out(gpio.Low) // active-low enable, matching stepper.cpp's convention
			m.energized = true
		}
	}

	atomic.StoreUint32(&e.run.TickDowncount, e.prep.Ticks)
	if e.StartTimer != nil && e.prep.Ticks > 0 {
		e.StartTimer()
	}

	e.prep.releaseToExec()
	if e.RequestExec != nil {
		e.RequestExec()
	}
}

// RunState returns a snapshot of the engine's runtime state for reporting.
func (e *Engine) RunState() RunState { return e.run }

// Idle reports whether the DDA has no segment in flight and nothing
// pending in the prep buffer. The feedhold state machine polls this from
// the dispatch goroutine while the timer goroutine runs Tick, hence the
// atomic read (spec.md §4.11, §9).
func (e *Engine) Idle() bool {
	return atomic.LoadUint32(&e.run.TickDowncount) == 0 && !e.prep.ownedByLoaderSide()
}

// DrainTicks zeroes the tick downcount without stepping through it,
// standing in for a timer ISR that has run Tick enough times to exhaust the
// current segment. Exported only for tests that drive Loader directly
// instead of wiring a real ticker goroutine.
func (e *Engine) DrainTicks() { atomic.StoreUint32(&e.run.TickDowncount, 0) }
