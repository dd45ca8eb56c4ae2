package planner

import (
	"math"

	"github.com/pathwright/motioncore/motion"
)

// Ramp is the forward-planner's solved velocity profile for one block:
// head/body/tail lengths and times plus the cruise/exit velocities the
// zoid solver actually landed on. It is the Go analogue of g2core's
// mpBlockRuntimeBuf_t (motion.Block carries the bf-side constants; Ramp
// carries the "block" working values mp_calculate_ramps mutates).
type Ramp struct {
	HeadLength, BodyLength, TailLength float64 // mm
	HeadTime, BodyTime, TailTime       float64 // seconds
	CruiseVelocity, ExitVelocity       float64 // mm/s
}

// targetLength computes the accel/decel length needed to go from v0 to v1
// at the block's jerk: L = (q/(2*sqrt(j))) * sqrt(|v1-v0|) * (v0+v1).
// Grounded verbatim on plan_zoid.cpp's mp_get_target_length().
func targetLength(v0, v1, qRecip2SqrtJ float64) float64 {
	return qRecip2SqrtJ * math.Sqrt(math.Abs(v1-v0)) * (v1 + v0)
}

// targetVelocity finds the velocity reached by accelerating from v0 over
// length L at jerk jerkMM (mm/s³). Grounded verbatim on plan_zoid.cpp's
// mp_get_target_velocity(), the monotonic closed-form cubic solve.
func targetVelocity(v0, L, jerkMM float64) float64 {
	return targetVelocityJ(v0, L, jerkMM)
}

func targetVelocityJ(v0, L, j float64) float64 {
	if L == 0 {
		return 0
	}
	const a80 = 7.698003589195
	const a2 = 0.00925925925926

	v0sq := v0 * v0
	v0cb := v0sq * v0
	Lsq := L * L

	bPart1 := 9 * j * Lsq
	bPart2 := a80 * v0cb

	bCubed := a2 * (3*L*math.Sqrt(j*(2*bPart2+bPart1)) + bPart2 + bPart1)
	b := math.Cbrt(bCubed)

	const const1a = 0.8292422988276
	const const2a = 4.823680612597
	const const3 = 0.333333333333333

	v1 := const3 * ((const1a*v0sq)/b + b*const2a - v0)
	return math.Abs(v1)
}

// decelVelocity finds the velocity reached by decelerating from v0 over
// length L at jerk j, via the root-finder in plan_zoid.cpp's
// mp_get_decel_velocity(): seeded at 0, restarting from just under v0 if
// the first probe overshoots.
func decelVelocity(v0, L, qRecip2SqrtJ float64) float64 {
	v1 := 0.0
	firstPass := true
	for i := 0; i < 10; i++ {
		sqrtDelta := math.Sqrt(math.Max(v0-v1, 0))
		lt := qRecip2SqrtJ*(sqrtDelta*(v1+v0)) - L
		if math.Abs(lt) < 0.00001 {
			break
		}
		if firstPass && lt > 0 {
			v1 = v0 - 0.001
			firstPass = false
			continue
		}
		firstPass = false
		v1x3 := 3 * v1
		recipLt := (2 * sqrtDelta) / ((v0 - v1x3) * qRecip2SqrtJ)
		v1 = v1 - lt*recipLt
	}
	return v1
}

// meetVelocity finds the velocity V* such that accelerating from v0 to V*
// and decelerating from V* to v2 together consume exactly length L, via
// the 30-iteration Newton solve in plan_zoid.cpp's _get_meet_velocity().
// Returns the meet velocity plus the head/body/tail lengths it implies.
func meetVelocity(v0, v2, L, qRecip2SqrtJ, jerk float64) (v1, head, body, tail float64) {
	minV1 := math.Max(v0, v2)
	v1 = targetVelocityJ(math.Max(v0, v2), L/2.0, jerk)

	if math.Abs(v0-v2) < 1e-6 {
		head = L / 2.0
		tail = L - head
		return v1, head, 0, tail
	}

	for i := 0; i < 30; i++ {
		if v1 < minV1 {
			v1 = minV1
			if v0 < v2 {
				head = targetLength(v0, v2, qRecip2SqrtJ)
				if head > L {
					head = L
					body = 0
					v1 = targetVelocityJ(v0, L, jerk)
				} else {
					body = L - head
				}
				tail = 0
			} else {
				tail = targetLength(v2, v0, qRecip2SqrtJ)
				if tail > L {
					tail = L
					body = 0
					v1 = targetVelocityJ(v2, L, jerk)
				} else {
					body = L - tail
				}
				head = 0
			}
			return v1, head, body, tail
		}

		sqrtDv0 := math.Sqrt(math.Abs(v1 - v0))
		sqrtDv2 := math.Sqrt(math.Abs(v1 - v2))

		lh := qRecip2SqrtJ * (sqrtDv0 * (v1 + v0))
		lt := qRecip2SqrtJ * (sqrtDv2 * (v1 + v2))
		lc := (lh + lt) - L

		head, tail, body = lh, lt, 0

		if lc < 0.00001 && lc > -1.0 {
			if lc < 0.0 {
				body = -lc
			} else {
				tail = L - head
			}
			return v1, head, body, tail
		}

		v1x3 := 3 * v1
		recipLd := (2 * sqrtDv0 * sqrtDv2) /
			((sqrtDv0*(v1x3-v2) - (v0-v1x3)*sqrtDv2) * qRecip2SqrtJ)
		v1 = v1 - lc*recipLd
	}
	return v1, head, body, tail
}

// DecelVelocity returns the velocity bf would be at after decelerating
// from v0 over the given remaining length, at bf's jerk. Exported for the
// feedhold state machine, which needs to know how much of the running
// block's remaining length a decel-to-zero will consume.
func DecelVelocity(bf *motion.Block, v0, length float64) float64 {
	return decelVelocity(v0, length, bf.QRecip2SqrtJ)
}

// BrakingLength returns the distance bf needs to decelerate from v0 to a
// full stop at bf's jerk. Exported for the feedhold state machine's sync
// step (spec.md §4.11): it compares this against the run block's remaining
// length to decide between decel_to_zero (fits) and decel_continue
// (rate-limited, exits above zero and invalidates the rest of the queue).
func BrakingLength(bf *motion.Block, v0 float64) float64 {
	return targetLength(v0, 0, bf.QRecip2SqrtJ)
}

// velEq is a tolerant float comparison; the zoid solver treats quantities
// within 1e-3 mm/s as equal, matching fp_EQ()'s usage throughout
// plan_zoid.cpp.
func velEq(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

// CalculateRamps resolves bf's head/body/tail lengths, times and final
// cruise/exit velocities given the velocity the previous block actually
// exits at. It is the forward-planner's last word on a block's shape: the
// back-planner's Hint only narrows which case this function needs to
// check first. Grounded on plan_zoid.cpp's mp_calculate_ramps(), case
// labels (1c/2d/1d/1a/2a/2c/3c) kept as comments for cross-reference.
func (q *Queue) CalculateRamps(bf *motion.Block, entryVelocity float64) Ramp {
	if bf.Kind == motion.BlockCommand {
		bf.Hint = motion.HintCommandBlock
		return Ramp{}
	}

	length := motion.LenMM(bf.Length)
	qr2sj := bf.QRecip2SqrtJ
	jerk := motion.JerkMM(bf.Jerk)

	var r Ramp
	r.CruiseVelocity = math.Min(motion.MM(bf.CruiseVelocity), motion.MM(bf.CruiseVmax))
	r.ExitVelocity = math.Min(motion.MM(bf.ExitVelocity), motion.MM(bf.ExitVmax))

	// 1c: PERFECT_CRUISE, re-verified against the actual entry velocity.
	if bf.Hint == motion.HintPerfectCruise {
		if !q.entryChanged && velEq(entryVelocity, motion.MM(bf.CruiseVmax)) {
			r.ExitVelocity = entryVelocity
			r.CruiseVelocity = entryVelocity
			r.BodyLength = length
			r.BodyTime = r.BodyLength / r.CruiseVelocity
			return r
		}
		bf.Hint = motion.HintMixedAcceleration
	}

	if entryVelocity > r.ExitVelocity {
		// Decelerating.
		switch {
		case q.entryChanged:
			bf.Hint = motion.HintAsymmetricBump

		case bf.Hint == motion.HintMixedDeceleration:
			// 2d: two-segment body+tail deceleration.
			r.TailLength = targetLength(r.ExitVelocity, r.CruiseVelocity, qr2sj)
			r.BodyLength = length - r.TailLength
			r.BodyTime = r.BodyLength / r.CruiseVelocity
			r.TailTime = r.TailLength * 2 / (r.ExitVelocity + r.CruiseVelocity)
			return r

		case bf.Hint == motion.HintPerfectDeceleration:
			// 1d: single tail segment.
			r.TailLength = length
			r.CruiseVelocity = entryVelocity
			r.TailTime = r.TailLength * 2 / (r.ExitVelocity + r.CruiseVelocity)
			return r
		}
		q.entryChanged = false
	} else {
		accelVelocity := targetVelocity(entryVelocity, length, jerk)

		if accelVelocity < r.ExitVelocity {
			// 1a: PERFECT_ACCELERATION, single head segment.
			q.entryChanged = true
			r.ExitVelocity = accelVelocity
			r.CruiseVelocity = accelVelocity
			bf.Hint = motion.HintPerfectAcceleration

			r.HeadLength = length
			r.HeadTime = (r.HeadLength * 2.0) / (entryVelocity + r.CruiseVelocity)
			return r
		}

		q.entryChanged = false
		r.CruiseVelocity = motion.MM(bf.CruiseVmax)

		if r.CruiseVelocity > r.ExitVelocity {
			bf.Hint = motion.HintAsymmetricBump
		} else {
			// 2a: MIXED_ACCELERATION, two-segment head+body.
			r.ExitVelocity = motion.MM(bf.CruiseVmax)
			bf.Hint = motion.HintMixedAcceleration

			r.HeadLength = targetLength(entryVelocity, r.CruiseVelocity, qr2sj)
			r.BodyLength = length - r.HeadLength
			r.TailLength = 0
			r.HeadTime = (r.HeadLength * 2.0) / (entryVelocity + r.CruiseVelocity)
			r.BodyTime = r.BodyLength / r.CruiseVelocity
			return r
		}
	}

	// Only ASYMMETRIC_BUMP (requested-fit or rate-limited) remains.
	r.HeadLength = targetLength(entryVelocity, r.CruiseVelocity, qr2sj)
	r.TailLength = targetLength(r.ExitVelocity, r.CruiseVelocity, qr2sj)

	if (length - 0.0001) > (r.HeadLength + r.TailLength) {
		// 2c: three-segment head+body+tail, requested fit.
		r.BodyLength = length - (r.HeadLength + r.TailLength)
		r.HeadTime = (r.HeadLength * 2.0) / (entryVelocity + r.CruiseVelocity)
		r.BodyTime = r.BodyLength / r.CruiseVelocity
		r.TailTime = (r.TailLength * 2.0) / (r.ExitVelocity + r.CruiseVelocity)
		bf.Hint = motion.HintAsymmetricBump
		return r
	}

	// 3c: rate-limited, the head/tail overlap: resolve the true meet velocity.
	var head, body, tail float64
	r.CruiseVelocity, head, body, tail = meetVelocity(entryVelocity, r.ExitVelocity, length, qr2sj, jerk)
	r.HeadLength, r.BodyLength, r.TailLength = head, body, tail
	bf.Hint = motion.HintAsymmetricBump

	if r.HeadLength != 0 {
		r.HeadTime = (r.HeadLength * 2.0) / (entryVelocity + r.CruiseVelocity)
	}
	if r.BodyLength != 0 {
		r.BodyTime = r.BodyLength / r.CruiseVelocity
	}
	if r.TailLength != 0 {
		r.TailTime = (r.TailLength * 2.0) / (r.ExitVelocity + r.CruiseVelocity)
	}
	return r
}
