package planner

import "github.com/pathwright/motioncore/motion"

// ForwardPlan performs the just-in-time forward planning pass: it looks at
// the run buffer and the buffers immediately ahead of it, skips past any
// contiguous run of COMMAND or DWELL blocks (marking each Prepped), and calls
// the ramp solver on the next back-planned ALINE block so it is ready for
// the segment executor. Unlike BackPlan, a buffer is only forward planned
// once. Returns true if it planned or skipped something (the executor
// should be poked), false if there was nothing to do.
//
// Grounded on plan_exec.cpp's mp_forward_plan()/_plan_aline(); the case
// labels in comments below (1a, 1f, 2d, ...) refer to that function's case
// table.
func (q *Queue) ForwardPlan() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	bf := q.blockAt(q.run)
	if bf.State == motion.BlockStateEmpty {
		return false // case 0a
	}
	if bf.State < motion.BlockStateBackPlanned {
		return false // case 0b
	}

	i := q.run
	var entryVelocity float64
	if bf.State == motion.BlockStateRunning {
		i = q.next[i]
		bf = q.blockAt(i)
		entryVelocity = motion.MM(q.blockAt(q.run).ExitVelocity) // Note 1
	} else {
		entryVelocity = q.entryVelocity // Note 2
	}

	plannedSomething := false

	if bf.Kind != motion.BlockAline {
		for bf.Kind == motion.BlockCommand || bf.Kind == motion.BlockDwell {
			if bf.State == motion.BlockStateBackPlanned {
				bf.State = motion.BlockStatePrepped
				bf.Plannable = false
				plannedSomething = true
			}
			i = q.next[i]
			bf = q.blockAt(i)
			if bf.State == motion.BlockStateEmpty {
				return plannedSomething
			}
		}
		if bf.Kind == motion.BlockAline && bf.State > motion.BlockStateBackPlanned {
			entryVelocity = motion.MM(q.blockAt(q.run).ExitVelocity) // Note 1a
		}
	}

	if bf.Kind == motion.BlockAline && bf.State == motion.BlockStateBackPlanned {
		q.planAline(bf, entryVelocity)
		plannedSomething = true
	}

	return plannedSomething
}

// planAline resolves bf's ramp via CalculateRamps and writes the result
// back onto the block, transitioning it to Prepped. Mirrors _plan_aline().
func (q *Queue) planAline(bf *motion.Block, entryVelocity float64) {
	r := q.CalculateRamps(bf, entryVelocity)

	bf.HeadLength = motion.LenFromMM(r.HeadLength)
	bf.BodyLength = motion.LenFromMM(r.BodyLength)
	bf.TailLength = motion.LenFromMM(r.TailLength)
	bf.HeadTime = r.HeadTime
	bf.BodyTime = r.BodyTime
	bf.TailTime = r.TailTime
	bf.CruiseVelocity = motion.VelocityFromMM(r.CruiseVelocity)
	bf.ExitVelocity = motion.VelocityFromMM(r.ExitVelocity)
	bf.EntryVelocity = motion.VelocityFromMM(entryVelocity)

	bf.State = motion.BlockStatePrepped
	bf.Plannable = false
}
