package planner

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pathwright/motioncore/motion"
)

// queueSquare commits the four sides of a 10mm square at the given feed,
// the canonical corner-velocity scenario: each junction is a 90° turn.
func queueSquare(t *testing.T, q *Queue, feed motion.Velocity) {
	t.Helper()
	corners := [][2]float64{{10, 0}, {10, 10}, {0, 10}, {0, 0}}
	for i, c := range corners {
		gm := motion.GCodeState{
			MotionMode: 1,
			Position:   motion.Vector{c[0], c[1], 0, 0, 0, 0},
			FeedRate:   feed,
			LineNumber: int32(i + 1),
		}
		if err := q.ALine(gm, identityRotation, 0); err != nil {
			t.Fatalf("ALine corner %d: %v", i, err)
		}
	}
}

func TestBackPlanVelocityInvariants(t *testing.T) {
	Convey("Given a four-sided square program back-planned end to end", t, func() {
		q := newTestQueue(t)
		queueSquare(t, q, motion.VelocityFromMMPerMin(600))
		q.BackPlan()

		blocks := make([]*motion.Block, 0, 4)
		i := q.run
		for {
			bf := q.blockAt(i)
			if bf.State == motion.BlockStateEmpty {
				break
			}
			blocks = append(blocks, bf)
			i = q.next[i]
			if i == q.run {
				break
			}
		}
		So(len(blocks), ShouldEqual, 4)

		Convey("every block satisfies exit <= cruise <= cruise_vmax <= absolute_vmax", func() {
			for _, bf := range blocks {
				So(bf.ExitVelocity, ShouldBeLessThanOrEqualTo, bf.CruiseVelocity)
				So(bf.CruiseVelocity, ShouldBeLessThanOrEqualTo, bf.CruiseVmax)
				So(bf.CruiseVmax, ShouldBeLessThanOrEqualTo, bf.AbsoluteVmax)
				So(bf.ExitVelocity, ShouldBeGreaterThanOrEqualTo, 0)
			}
		})

		Convey("every corner's exit cap respects the junction velocity", func() {
			for _, bf := range blocks {
				So(bf.ExitVmax, ShouldBeLessThanOrEqualTo, bf.JunctionVelocity)
			}
		})

		Convey("the final block brakes to a standstill", func() {
			So(blocks[len(blocks)-1].ExitVelocity, ShouldEqual, 0)
		})

		Convey("every block left the not-planned state", func() {
			for _, bf := range blocks {
				So(bf.State, ShouldBeGreaterThanOrEqualTo, motion.BlockStateBackPlanned)
			}
		})
	})
}

func TestJunctionVmaxCapsAtNeighborAbsolutes(t *testing.T) {
	Convey("Given two orthogonal moves", t, func() {
		q := newTestQueue(t)
		fast := motion.VelocityFromMMPerMin(60000)
		queueSquare(t, q, fast)
		q.BackPlan()

		first := q.blockAt(q.run)
		second := q.blockAt(q.next[q.run])

		Convey("the corner cap never exceeds either block's absolute vmax", func() {
			So(first.JunctionVelocity, ShouldBeLessThanOrEqualTo, first.AbsoluteVmax)
			So(first.JunctionVelocity, ShouldBeLessThanOrEqualTo, second.AbsoluteVmax)
		})
	})
}

func TestForwardPlanLengthClosureAcrossSquare(t *testing.T) {
	Convey("Given the square program planned just-in-time block by block", t, func() {
		q := newTestQueue(t)
		queueSquare(t, q, motion.VelocityFromMMPerMin(600))
		q.BackPlan()
		So(q.ForwardPlan(), ShouldBeTrue)

		bf := q.blockAt(q.run)
		So(bf.State, ShouldEqual, motion.BlockStatePrepped)

		Convey("head+body+tail close to the block's length within 1e-5mm", func() {
			sum := motion.LenMM(bf.HeadLength) + motion.LenMM(bf.BodyLength) + motion.LenMM(bf.TailLength)
			So(sum, ShouldAlmostEqual, motion.LenMM(bf.Length), 1e-5)
		})

		Convey("no nonzero section has a zero or negative time", func() {
			if motion.LenMM(bf.HeadLength) > 0 {
				So(bf.HeadTime, ShouldBeGreaterThan, 0)
			}
			if motion.LenMM(bf.BodyLength) > 0 {
				So(bf.BodyTime, ShouldBeGreaterThan, 0)
			}
			if motion.LenMM(bf.TailLength) > 0 {
				So(bf.TailTime, ShouldBeGreaterThan, 0)
			}
		})
	})
}

func TestQueueReportCounterLaw(t *testing.T) {
	Convey("Given a queue with the report hook installed", t, func() {
		q := newTestQueue(t)
		depth := 0
		q.SetQueueReportHook(func(delta int) { depth += delta })

		queueSquare(t, q, motion.VelocityFromMMPerMin(600))
		So(depth, ShouldEqual, 4)

		q.FreeRunBuffer()
		q.FreeRunBuffer()
		So(depth, ShouldEqual, 2)

		Convey("the running sum tracks the queue's own occupancy", func() {
			So(depth, ShouldEqual, len(q.buf)-q.Available())
		})

		Convey("a flush drains the counter back to zero", func() {
			q.Flush()
			So(depth, ShouldEqual, 0)
		})
	})
}
