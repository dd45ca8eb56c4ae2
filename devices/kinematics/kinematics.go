// Package kinematics implements the pluggable inverse_kinematics(cartesian)
// -> motor_steps transform spec.md §1 declares an external collaborator:
// the segment executor calls a Transform once per segment and never knows
// the concrete machine geometry behind it.
package kinematics

import "github.com/pathwright/motioncore/motion"

// Transform converts a target position in machine coordinates (plus the
// position it is moving from, for transforms whose Jacobian depends on
// direction) into per-motor step counts. Implementations are expected to be
// cheap: seg.Executor calls Inverse once per segment, inside the exec
// priority budget (spec.md §5).
type Transform interface {
	// Inverse returns the absolute step count each motor should be at once
	// the tool reaches target, given it is currently at position.
	Inverse(target, position motion.Vector) (steps [motion.Axes]float64)

	// Forward is the inverse transform's inverse: used by the probing cycle
	// (spec.md §4.11) to turn a motor encoder snapshot back into a machine
	// position.
	Forward(steps [motion.Axes]float64) (position motion.Vector)
}

// Cartesian is the identity/"direct drive" transform: motor i tracks axis i
// directly, scaled by StepsPerUnit. This is the default every example in
// SPEC_FULL.md's test suite runs against; a CoreXY or delta transform would
// implement the same Transform interface without the planner or executor
// changing at all.
type Cartesian struct {
	// StepsPerUnit is the microstep count per machine unit (mm, or degree
	// for a rotary axis), one entry per axis.
	StepsPerUnit motion.Vector
}

// Inverse implements Transform.
func (c Cartesian) Inverse(target, _ motion.Vector) (steps [motion.Axes]float64) {
	for axis := 0; axis < motion.Axes; axis++ {
		steps[axis] = target[axis] * c.StepsPerUnit[axis]
	}
	return steps
}

// Forward implements Transform.
func (c Cartesian) Forward(steps [motion.Axes]float64) (position motion.Vector) {
	for axis := 0; axis < motion.Axes; axis++ {
		spu := c.StepsPerUnit[axis]
		if spu == 0 {
			continue
		}
		position[axis] = steps[axis] / spu
	}
	return position
}

// CoreXY implements the belt-coupled X/Y transform common on 3D-printer
// gantries: the two motors drive sum/difference of the X and Y motion
// rather than tracking each axis independently. Z and the rotary axes pass
// through as in Cartesian. Grounded on the spec's "pluggable
// inverse_kinematics" contract — included to demonstrate the Transform
// interface is not a one-implementation abstraction.
type CoreXY struct {
	StepsPerUnit motion.Vector
}

// Inverse implements Transform.
func (c CoreXY) Inverse(target, _ motion.Vector) (steps [motion.Axes]float64) {
	x := target[0] * c.StepsPerUnit[0]
	y := target[1] * c.StepsPerUnit[1]
	steps[0] = x + y
	steps[1] = x - y
	for axis := 2; axis < motion.Axes; axis++ {
		steps[axis] = target[axis] * c.StepsPerUnit[axis]
	}
	return steps
}

// Forward implements Transform.
func (c CoreXY) Forward(steps [motion.Axes]float64) (position motion.Vector) {
	if c.StepsPerUnit[0] != 0 {
		position[0] = (steps[0] + steps[1]) / (2 * c.StepsPerUnit[0])
	}
	if c.StepsPerUnit[1] != 0 {
		position[1] = (steps[0] - steps[1]) / (2 * c.StepsPerUnit[1])
	}
	for axis := 2; axis < motion.Axes; axis++ {
		if c.StepsPerUnit[axis] != 0 {
			position[axis] = steps[axis] / c.StepsPerUnit[axis]
		}
	}
	return position
}
