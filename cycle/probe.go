package cycle

import (
	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/devices/encoder"
	"github.com/pathwright/motioncore/devices/kinematics"
	"github.com/pathwright/motioncore/motion"
)

// ProbeResult is the outcome of one probing move, handed to the report
// package for the wire's {"prb":...} response object (spec.md §4.11).
type ProbeResult struct {
	// Triggered is false if the probing move ran to completion without the
	// input ever asserting (the workpiece was missed).
	Triggered bool
	Position  motion.Vector
}

// Probe implements the probing cycle: a queued move runs as ordinary motion
// while Poll watches an input pin for an edge, and on trigger captures the
// machine position from the motor encoders (not the commanded planner
// position, which would read the point the probe move was heading toward,
// not where contact actually happened) via the kinematics transform's
// Forward half, then cuts the remaining motion short with a discard-type
// feedhold.
type Probe struct {
	Pin       gpio.PinIn
	Transform kinematics.Transform
	Encoder   encoder.Source
	Feedhold  *Feedhold

	active        bool
	result        ProbeResult
	resultPending bool
}

// NewProbe wires a Probe against the input pin it watches and the
// collaborators it needs to resolve a trigger into a machine position and
// an abrupt stop.
func NewProbe(pin gpio.PinIn, xform kinematics.Transform, enc encoder.Source, hold *Feedhold) *Probe {
	return &Probe{Pin: pin, Transform: xform, Encoder: enc, Feedhold: hold}
}

// Start arms the probe ahead of a probing move already queued as an ALine
// by the caller (the probe cycle itself does not compute the move — it only
// watches for contact during one). edge selects which transition counts as
// a trigger (Rising for a normally-low switch, Falling for normally-high).
func (p *Probe) Start(edge gpio.Edge) error {
	if err := p.Pin.In(gpio.Float, edge); err != nil {
		return err
	}
	p.active = true
	p.result = ProbeResult{}
	return nil
}

// Poll is called once per dispatch loop pass while a probe move is running
// (spec.md §4.2's probe callback / §4.11's probe cycle). It checks the
// input without blocking the loop (a zero-timeout WaitForEdge) and, on
// trigger, snapshots the encoder-derived position and requests an immediate
// discard-type feedhold so the remainder of the probing move is cut short.
func (p *Probe) Poll() motion.Status {
	if !p.active {
		return motion.StatusNoop
	}
	if !p.Pin.WaitForEdge(0) {
		// Armed but untripped: waiting on the input, not making progress,
		// so the rest of the dispatch pass proceeds.
		return motion.StatusNoop
	}
	p.snapshot()
	p.Feedhold.Request(HoldDiscard)
	p.active = false
	return motion.StatusOK
}

// snapshot reads every motor's encoder position and turns it into a machine
// position via the kinematics transform's Forward half. A motor with no
// fresh encoder reading contributes a zero step count rather than stalling
// the whole snapshot, consistent with encoder.Source's "ok=false leaves the
// previous estimate" contract elsewhere in this module.
func (p *Probe) snapshot() {
	var steps [motion.Axes]float64
	if p.Encoder != nil {
		for axis := 0; axis < motion.Axes; axis++ {
			if v, ok := p.Encoder.Position(axis); ok {
				steps[axis] = float64(v)
			}
		}
	}
	p.result = ProbeResult{Triggered: true, Position: p.Transform.Forward(steps)}
	p.resultPending = true
}

// Finish concludes an armed probe cycle whose motion ran to completion
// without the input ever tripping (a G38.3 miss): records the final
// position, disarms, and leaves a pending result so the {"prb":...} record
// is still emitted with e:0 (spec.md §8's probe-miss scenario).
func (p *Probe) Finish(pos motion.Vector) {
	if !p.active {
		return
	}
	p.active = false
	p.result = ProbeResult{Triggered: false, Position: pos}
	p.resultPending = true
}

// Result returns the outcome of the most recently completed probe move.
func (p *Probe) Result() ProbeResult { return p.result }

// TakeResult returns the most recent outcome exactly once per completed
// cycle, for the reporter's {"prb":...} record.
func (p *Probe) TakeResult() (ProbeResult, bool) {
	if !p.resultPending {
		return ProbeResult{}, false
	}
	p.resultPending = false
	return p.result, true
}
