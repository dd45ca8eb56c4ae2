package motion

// MotionState is the cycle-level machine state reported to status reports
// and gated by feedhold/flush. Named after g2core's cmMotionState
// (MOTION_RUN, MOTION_STOP, MOTION_HOLD).
type MotionState int

const (
	MotionStop MotionState = iota
	MotionRun
	MotionHold
	MotionEnd
)

func (m MotionState) String() string {
	switch m {
	case MotionStop:
		return "stop"
	case MotionRun:
		return "run"
	case MotionHold:
		return "hold"
	case MotionEnd:
		return "end"
	default:
		return "unknown"
	}
}

// CycleState is the higher-level program state machine: idle vs. running a
// program vs. the various special cycles (feedhold, homing, jog, probe).
// Named after g2core's cmCycleState.
type CycleState int

const (
	CycleOff CycleState = iota
	CycleMachining
	CycleHoming
	CycleProbe
	CycleJog
)

func (c CycleState) String() string {
	switch c {
	case CycleOff:
		return "off"
	case CycleMachining:
		return "machining"
	case CycleHoming:
		return "homing"
	case CycleProbe:
		return "probe"
	case CycleJog:
		return "jog"
	default:
		return "unknown"
	}
}

// FeedholdState is the feedhold sub-state machine driven by the exec
// priority context while a hold is in progress. Mirrors the sequence in
// g2core's cm_operation_sync_callback/plan_exec.cpp: a hold doesn't stop
// instantly, it decelerates the current block, then the remainder of the
// queue is flushable.
type FeedholdState int

const (
	FeedholdOff FeedholdState = iota
	FeedholdSyncHold
	FeedholdDecelContinue
	FeedholdDecelToZero
	FeedholdDecelComplete
	FeedholdMotionStopping
	FeedholdMotionStopped
)

func (f FeedholdState) String() string {
	switch f {
	case FeedholdOff:
		return "off"
	case FeedholdSyncHold:
		return "sync"
	case FeedholdDecelContinue:
		return "decel_continue"
	case FeedholdDecelToZero:
		return "decel_to_zero"
	case FeedholdDecelComplete:
		return "decel_complete"
	case FeedholdMotionStopping:
		return "motion_stopping"
	case FeedholdMotionStopped:
		return "motion_stopped"
	default:
		return "unknown"
	}
}

// Section names the velocity-profile section the segment executor is
// currently playing: acceleration, cruise, or deceleration. Named after
// g2core's mrSectionType (mr->section).
type Section int

const (
	SectionHead Section = iota
	SectionBody
	SectionTail
)

func (s Section) String() string {
	switch s {
	case SectionHead:
		return "head"
	case SectionBody:
		return "body"
	case SectionTail:
		return "tail"
	default:
		return "unknown"
	}
}

// SectionSubState distinguishes "just entered this section, still need to
// size it" from "mid-section, just advance the FD ladder" (mr->section_state).
type SectionSubState int

const (
	SectionNew SectionSubState = iota
	SectionRunning
)

// BlockSubState distinguishes "no block taken yet", "block just swapped in,
// needs normalizing", and "mid-block, just keep consuming segments"
// (mr->block_state in plan_exec.cpp, not to be confused with
// motion.BlockState which is the planner-side lifecycle of the same
// block).
type BlockSubState int

const (
	BlockSubStateInactive BlockSubState = iota
	BlockSubStateInitial
	BlockSubStateActive
)

// RuntimeState ("mr" in g2core) is the segment executor's working state: the
// single in-flight Block plus the Bezier forward-difference accumulators
// that advance it one segment at a time. There is exactly one RuntimeState
// per machine; it is owned by the exec priority context and read-only
// elsewhere (reporter reads it under the status snapshot lock).
type RuntimeState struct {
	MotionState MotionState

	// Position is the current absolute machine position, updated once per
	// segment as the Bezier FD target accumulates.
	Position Vector

	// PositionComp is the running Kahan compensation term per axis for the
	// segment-length accumulation into Position (spec.md §3, §4.8 step 5;
	// the core correctness property of the Bezier segmenter per spec.md
	// §8's position-conservation test).
	PositionComp Vector

	// Unit is the unit vector of the block currently running.
	Unit Vector

	// Waypoints are the pre-computed end-of-section target positions
	// (head/body/tail), snapped to exactly on the last segment of each
	// section to prevent long-run float drift (spec.md §4.8 step 5).
	Waypoints [3]Vector

	// Running is the Block currently under execution; nil when idle.
	Running *Block

	BlockSubState BlockSubState
	Section       Section
	SectionState  SectionSubState

	// SegmentCount/TotalSegments track progress through the current
	// section (head/body/tail) for status reporting and step correction.
	SegmentCount  int32
	TotalSegments int32

	// SegmentTime is the per-segment duration (seconds) within the current
	// section; EntryVelocity is the velocity this block's head started
	// from (fixed for the life of the block, unlike Velocity below).
	SegmentTime   float64
	EntryVelocity Velocity

	// Velocity is the instantaneous velocity at the current segment
	// boundary, the value the Bezier FD coefficients were seeded from.
	Velocity Velocity

	// PreviousSteps is the per-motor absolute step count as of the end of
	// the previous segment, so the executor can hand the DDA prep buffer a
	// delta rather than an absolute target (spec.md §4.8 step 5).
	PreviousSteps [Axes]float64
}

// PlannerState ("mp" in g2core) is the shared queue plus the scalars the
// back/forward planning passes need across calls: the running sum of
// plannable time, and the previous block's terminal unit vector used for
// junction velocity computation at the next aline() ingest.
type PlannerState struct {
	Queue []*Block

	// Position is the planner's notion of machine position: the end of the
	// last queued move, advanced in main-loop context as each aline()
	// commits. Distinct from RuntimeState.Position (end of last executed
	// segment); the two re-synchronize at idle and at queue flush.
	Position Vector

	// Run/Write indices into Queue, following g2core's mb.r / mb.w
	// buffer-pool pointers reimagined as slice indices.
	RunIndex   int
	WriteIndex int

	// PlannableTimeMS is the running-sum estimate used by the back
	// planner's throttle check (bf->plannable_time_ms accumulation).
	PlannableTimeMS float64

	// PreviousUnit is the terminal unit vector of the most recently queued
	// Aline block, used to compute the next block's junction velocity.
	PreviousUnit Vector

	// PreviousExitVelocity seeds EntryVmax continuity for the next queued
	// block before a full back-plan pass has run.
	PreviousExitVelocity Velocity
}

// GCodeState ("gm"/gmx in g2core) is the canonical machine's modal state:
// the accumulated effect of G/M words across lines, carried forward because
// G-code is stateful (a G1 with no X holds the previous X).
type GCodeState struct {
	// MotionMode is the active group-1 modal word (G0, G1, G2, G3, G80...).
	MotionMode int

	// InchMode selects millimetres (G21) or inches (G20); config and report
	// both consult this to decide a read/write unit conversion.
	InchMode bool

	// Absolute selects absolute (G90) vs incremental (G91) distance mode.
	Absolute bool

	// Plane selects the active arc plane (G17/G18/G19): 0=XY, 1=XZ, 2=YZ.
	Plane int

	// Position is the current programmed (modal) position in machine
	// units, independent of RuntimeState.Position which trails it during
	// motion.
	Position Vector

	// FeedRate is the active F word, already converted to Velocity.
	FeedRate Velocity

	// InverseTimeMode distinguishes units-per-minute (G94, default) from
	// inverse-time (G93) feed rate interpretation.
	InverseTimeMode bool

	// SpindleSpeed/SpindleOn/ToolNumber are carried for completeness of
	// the canonical machine contract even though this firmware core does
	// not drive a spindle directly; M-codes referencing them are queued
	// as CommandPayload blocks for the host application to service.
	SpindleSpeed float64
	SpindleOn    bool
	ToolNumber   int

	// LineNumber is the N-word of the G-code line this state was produced
	// from (0 if the line carried none), echoed back in status reports.
	LineNumber int32

	// CoordSystem is the active work coordinate system index (G54=0...).
	CoordSystem int

	// PathControl distinguishes exact-stop (G61) from continuous (G64)
	// path mode; an exact-stop move's exit_vmax is forced to zero at the
	// next junction, per plan_line.cpp's _plan_block().
	PathControl PathControlMode
}

// PathControlMode selects how aggressively adjacent moves blend at a corner.
type PathControlMode int

const (
	PathContinuous PathControlMode = iota
	PathExactStop
)
