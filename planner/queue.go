// Package planner implements the look-ahead motion planner: the block
// queue, back-planning (braking-velocity propagation from newest block
// toward the running block), and the just-in-time forward planner that
// hands finished ramps to the segment executor. See motion.Block for the
// queue element and zoid.go for the ramp solver.
package planner

import (
	"errors"
	"sync"

	"github.com/pathwright/motioncore/motion"
)

// Headroom is the number of free blocks the dispatcher must see before it
// will read another data (G-code) line, per spec.md §4.2's PLANNER_HEADROOM.
const Headroom = 4

// MinBlockTime is the floor block_time used when sizing cruise/absolute
// vmax (spec.md §4.6.1), expressed in seconds.
const MinBlockTime = 0.0002 // 200us

// MinLength is the minimum move length accepted by ALine; shorter moves are
// rejected without advancing the queue or planner position (spec.md §4.5).
// 0.0001mm == 100nm in physic.Distance's nanometre fixed point.
var MinLength = motion.LenFromMM(0.0001)

// JerkMultiplier is g2core's JERK_MULTIPLIER "goose it" factor applied to
// the per-axis jerk cap once projected onto the move's unit vector.
const JerkMultiplier = 1.0

// BlockTimeoutMS is the block-commit timeout window (spec.md §4.6). No code
// reads it: BackPlan and ForwardPlan plan whatever is queued each time they
// are called and never wait for the queue to fill, so there is no wait for
// a timeout to cut short.
const BlockTimeoutMS = 50.0

// ErrQueueFull is returned by ALine when no write buffer is available; the
// dispatcher is expected to have already checked Headroom before calling in.
var ErrQueueFull = errors.New("planner: queue full")

// ErrMinLengthMove is returned (not an error the dispatcher reports, merely
// a status) when a move is too short to queue. Aliased from motion so the
// gcode arc generator can recognize it without importing this package.
var ErrMinLengthMove = motion.ErrMinLengthMove

// AxisLimits is the subset of per-axis configuration the planner consults.
// Populated from the config package's axis table.
type AxisLimits struct {
	VelocityMax     float64 // mm/s, feed-mode velocity cap
	TraverseMax     float64 // mm/s, traverse (G0) velocity cap
	JerkMax         float64 // mm/s^3
	MaxJunctionAccel float64
}

// Queue is the planner's ring of blocks plus the cursors and scalar state
// the back/forward planning passes share (motion.PlannerState's Go home).
type Queue struct {
	mu sync.Mutex

	buf   []motion.Block
	next  []int
	prev  []int

	run   int // mb.r
	write int // mb.w
	plan  int // mp.p -- next block to back-plan

	available int

	state      motion.PlannerState
	cyclestate motion.CycleState

	Axes [motion.Axes]AxisLimits

	entryChanged bool

	// entryVelocity mirrors mr->entry_velocity: the velocity the segment
	// executor will enter its next block at. Read by ForwardPlan when the
	// run buffer is a command (Note 2 in mp_forward_plan()'s case table);
	// written by the segment executor as each block finishes.
	entryVelocity float64

	onCommit func(delta int) // queue-report hook; +1 on commit, -1 on free
}

// SetEntryVelocity records the velocity the executor will carry into the
// next planned block. Called by the segment executor at block boundaries.
func (q *Queue) SetEntryVelocity(v float64) {
	q.mu.Lock()
	q.entryVelocity = v
	q.mu.Unlock()
}

// NewQueue allocates a ring of size blocks, wired as a doubly linked cycle
// exactly as g2core's mp_init_buffers() links mb.bf[i].nx/pv.
func NewQueue(size int) *Queue {
	if size < 3 {
		size = 3
	}
	q := &Queue{
		buf:       make([]motion.Block, size),
		next:      make([]int, size),
		prev:      make([]int, size),
		available: size,
	}
	for i := range q.buf {
		q.buf[i].Reset()
		q.next[i] = (i + 1) % size
		q.prev[i] = (i - 1 + size) % size
	}
	return q
}

// SetQueueReportHook installs the callback invoked on every commit (+1) and
// every free (-1), satisfying the queue-report counter law of spec.md §8.
func (q *Queue) SetQueueReportHook(f func(delta int)) { q.onCommit = f }

// Available returns the number of free (empty) blocks.
func (q *Queue) Available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.available
}

// Full reports the dispatcher's backpressure condition: fewer than Headroom
// blocks free. JSON-buffer headroom is tracked separately by the dispatcher.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.available < Headroom
}

// getWriteBuffer returns the write slot, cleared, transitioning it to
// Initializing; mirrors mp_get_write_buffer(). Caller must hold q.mu.
func (q *Queue) getWriteBuffer() (int, *motion.Block) {
	w := q.write
	if q.buf[w].State != motion.BlockStateEmpty {
		return -1, nil
	}
	q.buf[w].Reset()
	q.buf[w].State = motion.BlockStateInitializing
	q.buf[w].BufferNumber = uint32(w)
	q.available--
	return w, &q.buf[w]
}

// commitWriteBuffer advances the write cursor and marks the new block
// plannable, mirroring mp_commit_write_buffer(). Caller must hold q.mu.
func (q *Queue) commitWriteBuffer(kind motion.BlockKind) {
	w := q.write
	q.buf[w].Kind = kind
	q.buf[w].State = motion.BlockStateNotPlanned
	q.buf[w].Plannable = true
	q.write = q.next[w]
	if q.onCommit != nil {
		q.onCommit(+1)
	}
}

// RunBlock returns the current run block, or nil if the queue is empty.
func (q *Queue) RunBlock() *motion.Block {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf[q.run].State == motion.BlockStateEmpty {
		return nil
	}
	return &q.buf[q.run]
}

// FreeRunBuffer releases the run block back to the pool and advances the
// run cursor, mirroring mp_free_run_buffer(). Returns true if the queue is
// now empty (write caught up to run).
func (q *Queue) FreeRunBuffer() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := q.run
	q.buf[r].Reset()
	q.run = q.next[r]
	q.available++
	if q.onCommit != nil {
		q.onCommit(-1)
	}
	return q.write == q.run
}

// Flush discards every block currently queued, resetting the ring to empty
// and zeroing the planner's carried entry velocity. Legal only once motion
// is fully stopped (spec.md §4.11's flush cycle); callers are expected to
// have already confirmed motion_stopped via the feedhold state machine
// before calling in, mirroring mp_flush_planner()'s precondition.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	freed := 0
	for i := range q.buf {
		if q.buf[i].State != motion.BlockStateEmpty {
			freed++
		}
		q.buf[i].Reset()
	}
	q.run = 0
	q.write = 0
	q.plan = 0
	q.available = len(q.buf)
	q.entryVelocity = 0
	q.entryChanged = false
	if q.onCommit != nil && freed > 0 {
		q.onCommit(-freed)
	}
}

// PlannableSeconds estimates the buffered motion time currently queued:
// the planner's slack ("phat city time"). The reporter consults it to
// throttle automatic status reports when the queue is running time-tight
// (spec.md §4.12); blocks not yet through the zoid solver are estimated
// from length over cruise velocity.
func (q *Queue) PlannableSeconds() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0.0
	i := q.run
	for {
		bf := &q.buf[i]
		if bf.State == motion.BlockStateEmpty {
			break
		}
		switch bf.Kind {
		case motion.BlockDwell:
			total += bf.Dwell.Seconds
		case motion.BlockAline:
			if t := bf.HeadTime + bf.BodyTime + bf.TailTime; t > 0 {
				total += t
			} else if bf.CruiseVelocity > 0 {
				total += motion.LenMM(bf.Length) / motion.MM(bf.CruiseVelocity)
			}
		}
		i = q.next[i]
		if i == q.run {
			break
		}
	}
	return total
}

// Position returns the planner's end-of-queue position (mp.position).
func (q *Queue) Position() motion.Vector {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Position
}

// SetPosition re-seats the planner's position. Called by the flush cycle
// to re-synchronize mp.position with the runtime's stopped position, so
// the next queued move plans from where the machine actually is.
func (q *Queue) SetPosition(p motion.Vector) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state.Position = p
}

// blockAt is a small helper for readability in back/forward planning.
func (q *Queue) blockAt(i int) *motion.Block { return &q.buf[i] }
