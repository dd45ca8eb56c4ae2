package planner

import (
	"math"

	"github.com/pathwright/motioncore/motion"
)

// qConst is g2core's "q" constant: sqrt(10)/3^(1/4), used to build the
// q_recip_2_sqrt_j cache consumed throughout the zoid solver's closed-form
// length/velocity formulas.
const qConst = 2.40281141413

// ALine is the motion ingest entry point (spec.md §4.5): it transforms the
// target into the rotated work frame, rejects sub-minimum moves, computes
// jerk and velocity limits, commits the block, and schedules a replan.
// rotation is the 3x3 rotation matrix plus Z offset applied ahead of the
// length/jerk computation (identity for an unrotated machine).
func (q *Queue) ALine(gm motion.GCodeState, rotation [3][3]float64, zOffset float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	target := rotateTarget(gm.Position, rotation, zOffset)

	_, bf := q.getWriteBuffer()
	if bf == nil {
		return ErrQueueFull
	}
	if !q.fillAline(bf, gm, q.state.Position, target) {
		bf.Reset()
		q.available++
		return ErrMinLengthMove
	}

	// Commit ordering: position must advance before the write buffer commits,
	// mirroring mp_aline()'s comment to the letter.
	q.state.Position = target
	q.state.PreviousUnit = bf.Unit
	q.commitWriteBuffer(motion.BlockAline)
	return nil
}

// RequeueFront re-inserts a move ahead of everything already queued, moving
// from the given machine-frame position (the runtime's stopped position) to
// the machine-frame target. It exists for the resume side of a hold-type
// feedhold: the residual of the held move must run before the blocks that
// were queued behind it, so it cannot go through the ordinary write-cursor
// path. The planner's end-of-queue position is unchanged — the residual's
// target is where the queue's remaining blocks already start from.
func (q *Queue) RequeueFront(gm motion.GCodeState, from, target motion.Vector) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot := q.prev[q.run]
	if q.buf[slot].State != motion.BlockStateEmpty {
		return ErrQueueFull
	}
	bf := &q.buf[slot]
	bf.Reset()
	bf.State = motion.BlockStateInitializing
	bf.BufferNumber = uint32(slot)
	q.available--

	if !q.fillAline(bf, gm, from, target) {
		bf.Reset()
		q.available++
		return ErrMinLengthMove
	}

	bf.Kind = motion.BlockAline
	bf.State = motion.BlockStateNotPlanned
	bf.Plannable = true
	q.run = slot
	if q.onCommit != nil {
		q.onCommit(+1)
	}
	return nil
}

// fillAline populates bf's geometry, jerk, and velocity limits for a move
// from the given position to the (already rotated) target. Returns false
// for a sub-minimum-length move, leaving bf untouched apart from zeroed
// fields. Caller must hold q.mu.
func (q *Queue) fillAline(bf *motion.Block, gm motion.GCodeState, from, target motion.Vector) bool {
	var axisLen, axisSq motion.Vector
	lengthSq := 0.0
	var flags [motion.Axes]bool
	for axis := 0; axis < motion.Axes; axis++ {
		d := target[axis] - from[axis]
		if math.Abs(d) > 1e-9 {
			flags[axis] = true
			axisLen[axis] = d
			axisSq[axis] = d * d
			lengthSq += axisSq[axis]
		}
	}
	length := motion.LenFromMM(math.Sqrt(lengthSq))
	if length < MinLength {
		return false
	}

	bf.Kind = motion.BlockAline
	bf.LineNumber = gm.LineNumber
	bf.GCode = gm
	bf.Length = length
	bf.Target = target
	for axis := 0; axis < motion.Axes; axis++ {
		if flags[axis] {
			bf.Unit[axis] = axisLen[axis] / motion.LenMM(length)
		}
	}

	q.calculateJerk(bf, flags)
	q.calculateVmaxes(bf, gm, axisLen, axisSq, flags)
	return true
}

// rotateTarget applies the work-offset rotation matrix to a pre-rotation
// target: rotary axes (A/B/C, and U/V/W if present) pass through unchanged,
// matching mp_aline()'s target_rotated computation.
func rotateTarget(target motion.Vector, m [3][3]float64, zOffset float64) motion.Vector {
	out := target
	out[0] = target[0]*m[0][0] + target[1]*m[0][1] + target[2]*m[0][2]
	out[1] = target[0]*m[1][0] + target[1]*m[1][1] + target[2]*m[1][2]
	out[2] = target[0]*m[2][0] + target[1]*m[2][1] + target[2]*m[2][2] + zOffset
	return out
}

// calculateJerk computes bf.Jerk as the minimum, over participating axes, of
// (axis jerk cap / |unit component|), scaled by JerkMultiplier, then caches
// the derived terms the zoid solver's closed-form formulas need repeatedly.
// Grounded on plan_line.cpp's _calculate_jerk().
func (q *Queue) calculateJerk(bf *motion.Block, flags [motion.Axes]bool) {
	jerk := math.Inf(1)
	for axis := 0; axis < motion.Axes; axis++ {
		if !flags[axis] {
			continue
		}
		u := math.Abs(bf.Unit[axis])
		if u <= 0 {
			continue
		}
		axisJerk := q.Axes[axis].JerkMax / u
		if axisJerk < jerk {
			jerk = axisJerk
		}
	}
	jerk *= JerkMultiplier
	bf.Jerk = motion.JerkFromMM(jerk)

	bf.RecipJerk = 1 / jerk
	bf.SqrtJerk = math.Sqrt(jerk)
	bf.QRecip2SqrtJ = qConst / (2.0 * bf.SqrtJerk)
}

// calculateVmaxes computes cruise_vset/cruise_vmax/absolute_vmax per the
// NIST feed-rate interpretation rules of spec.md §4.6.1. Grounded on
// plan_line.cpp's _calculate_vmaxes().
func (q *Queue) calculateVmaxes(bf *motion.Block, gm motion.GCodeState, axisLen, axisSq motion.Vector, flags [motion.Axes]bool) {
	traverse := gm.MotionMode == 0 // G0

	feedTime := 0.0
	if !traverse {
		if gm.InverseTimeMode {
			feedTime = 1.0 / math.Max(motion.MM(gm.FeedRate), 1e-9)
		} else {
			linearSq := axisSq[0] + axisSq[1] + axisSq[2]
			feedTime = math.Sqrt(linearSq) / math.Max(motion.MM(gm.FeedRate), 1e-9)
			if feedTime == 0 {
				rotSq := axisSq[3] + axisSq[4] + axisSq[5]
				feedTime = math.Sqrt(rotSq) / math.Max(motion.MM(gm.FeedRate), 1e-9)
			}
		}
	}

	maxTime := 0.0
	for axis := 0; axis < motion.Axes; axis++ {
		if !flags[axis] {
			continue
		}
		limit := q.Axes[axis].VelocityMax
		if traverse {
			limit = q.Axes[axis].TraverseMax
		}
		if limit <= 0 {
			continue
		}
		t := math.Abs(axisLen[axis]) / limit
		if t > maxTime {
			maxTime = t
		}
	}

	blockTime := math.Max(maxTime, MinBlockTime)
	lengthMM := motion.LenMM(bf.Length)
	bf.AbsoluteVmax = motion.VelocityFromMM(lengthMM / blockTime)

	blockTime = math.Max(blockTime, feedTime)
	bf.CruiseVset = motion.VelocityFromMM(lengthMM / blockTime)
	bf.CruiseVmax = bf.AbsoluteVmax
	bf.CruiseVelocity = bf.CruiseVset
	bf.ExitVelocity = 0
}
