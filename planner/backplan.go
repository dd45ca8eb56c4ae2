package planner

import (
	"math"

	"github.com/pathwright/motioncore/motion"
)

// junctionEpsilon is the delta-below-which an axis is treated as
// not participating in the corner, matching g2core's EPSILON guard in
// _calculate_junction_vmax().
const junctionEpsilon = 1e-4

// junctionUnitHoldoffMM is the "very short near-collinear moves" window
// (spec.md §4.6.2): a run of moves shorter than this retains the junction
// unit vector from further back so a highly segmented arc still corners
// correctly.
const junctionUnitHoldoffMM = 0.5

// calculateJunctionVmax computes the corner velocity cap between a and the
// next block nx (nil for "no next block yet", i.e. the last queued move),
// following plan_line.cpp's _calculate_junction_vmax() Giseburt's-Algorithm
// formula: V[i] = max_junction_accel * jerk[i] / |delta_unit[i]|.
func (q *Queue) calculateJunctionVmax(a, nx *motion.Block) {
	if nx == nil {
		v := motion.MM(a.AbsoluteVmax)
		for axis := 0; axis < motion.Axes; axis++ {
			d := a.Unit[axis]
			if d > junctionEpsilon {
				cap := q.Axes[axis].MaxJunctionAccel * q.Axes[axis].JerkMax / d
				if cap < v {
					v = cap
				}
			}
		}
		a.JunctionVelocity = motion.VelocityFromMM(v)
		return
	}

	v := math.Min(motion.MM(a.AbsoluteVmax), motion.MM(nx.AbsoluteVmax))

	sinceLen := motion.LenMM(a.Length)
	usingJunctionUnit := sinceLen < junctionUnitHoldoffMM
	for axis := 0; axis < motion.Axes; axis++ {
		d := math.Abs(a.Unit[axis] - nx.Unit[axis])
		if usingJunctionUnit {
			alt := math.Abs(a.JunctionUnit[axis] - nx.Unit[axis])
			if alt > d {
				d = alt
			}
			nx.JunctionUnit[axis] = a.JunctionUnit[axis]
		} else {
			nx.JunctionUnit[axis] = a.Unit[axis]
		}
		if d > junctionEpsilon {
			cap := q.Axes[axis].MaxJunctionAccel * q.Axes[axis].JerkMax / d
			if cap < v {
				v = cap
			}
		}
	}
	a.JunctionVelocity = motion.VelocityFromMM(v)
}

// BackPlan walks the queue from the planning cursor toward the newest
// block, establishing exit_vmax at each junction and then propagating a
// braking velocity backward from the newest toward the running block. It
// mirrors _plan_block()'s two phases (stitching/priming, then backward
// planning), collapsed into one pass per call since Go's slice ring makes
// repeated re-entry unnecessary.
func (q *Queue) BackPlan() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stitchJunctions()
	q.propagateBraking()
}

// stitchJunctions computes exit_vmax for every plannable block by chaining
// junction velocity between adjacent blocks, matching the PRIMING phase.
func (q *Queue) stitchJunctions() {
	i := q.run
	for {
		bf := q.blockAt(i)
		if bf.State == motion.BlockStateEmpty {
			break
		}
		nxI := q.next[i]
		var nx *motion.Block
		if q.blockAt(nxI).State != motion.BlockStateEmpty {
			nx = q.blockAt(nxI)
		}
		if bf.Kind == motion.BlockAline {
			q.calculateJunctionVmax(bf, nx)
			if bf.Plannable {
				if bf.GCode.PathControl == motion.PathExactStop {
					bf.ExitVmax = 0
				} else {
					bf.ExitVmax = motion.Velocity(minV(bf.JunctionVelocity, bf.AbsoluteVmax))
					if nx != nil {
						bf.ExitVmax = motion.Velocity(minV(bf.ExitVmax, nx.AbsoluteVmax))
					}
				}
			}
		}
		if nx == nil {
			break
		}
		i = nxI
	}
}

func minV(a, b motion.Velocity) motion.Velocity {
	if a < b {
		return a
	}
	return b
}

// propagateBraking walks from the newest block backward to the running
// block, setting exit_velocity to the braking velocity computed from the
// next block's entry requirement, and tags each block's Hint. Grounded on
// plan_line.cpp's backward-planning for-loop.
func (q *Queue) propagateBraking() {
	// find newest committed block (the one just before q.write)
	size := len(q.buf)
	newest := (q.write - 1 + size) % size
	if q.blockAt(newest).State == motion.BlockStateEmpty {
		return
	}

	braking := motion.Velocity(0)
	optimal := false

	i := newest
	for {
		bf := q.blockAt(i)
		if !(bf.Plannable || braking < bf.ExitVelocity) {
			break
		}
		bf.Plannable = bf.Plannable && !optimal

		if braking > bf.ExitVmax {
			braking = bf.ExitVmax
		}

		if bf.CruiseVelocity < braking {
			bf.CruiseVelocity = braking
		}
		bf.ExitVelocity = braking

		testDecelOrBump := false
		prevI := q.prev[i]
		pv := q.blockAt(prevI)
		havePrev := pv.State != motion.BlockStateEmpty

		switch {
		case bf.Kind == motion.BlockCommand || bf.Kind == motion.BlockDwell:
			optimal = true
			bf.ExitVelocity = 0
			braking = 0
			bf.Plannable = false
			bf.Hint = motion.HintCommandBlock

		case havePrev && velocityEq(bf.ExitVelocity, bf.CruiseVmax) && velocityEq(pv.ExitVmax, bf.CruiseVmax):
			bf.CruiseVelocity = minV(bf.CruiseVmax, bf.ExitVmax)
			bf.ExitVelocity = bf.CruiseVelocity
			braking = bf.ExitVelocity
			bf.Hint = motion.HintPerfectCruise
			optimal = true

		case havePrev && pv.ExitVmax < bf.ExitVelocity:
			testDecelOrBump = true

		default:
			bv := motion.VelocityFromMM(targetVelocity(motion.MM(bf.ExitVelocity), motion.LenMM(bf.Length), motion.JerkMM(bf.Jerk)))
			if havePrev && pv.ExitVmax > bv {
				bf.CruiseVelocity = bv
				bf.Hint = motion.HintPerfectDeceleration
				braking = bv
			} else {
				testDecelOrBump = true
			}
		}

		if testDecelOrBump {
			if havePrev {
				braking = pv.ExitVmax
			} else {
				braking = 0
			}
			if bf.CruiseVmax > braking {
				bf.CruiseVelocity = bf.CruiseVmax
				bf.Hint = motion.HintAsymmetricBump
			} else {
				bf.CruiseVelocity = braking
				bf.Hint = motion.HintMixedDeceleration
			}
			optimal = true
		}

		if bf.State < motion.BlockStateBackPlanned {
			bf.State = motion.BlockStateBackPlanned
		}

		if i == q.run || !havePrev {
			break
		}
		i = prevI
	}
}

func velocityEq(a, b motion.Velocity) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return float64(d) < float64(motion.VelocityFromMM(1e-3))
}
