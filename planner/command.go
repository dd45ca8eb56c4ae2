package planner

import "github.com/pathwright/motioncore/motion"

// Dwell queues a pure time delay (G4), committed as a BlockDwell entry.
// Mirrors planner.cpp's mp_dwell(): a dwell goes through the same queue,
// back-plan and forward-plan passes as a motion block so feedhold/flush
// interact with it identically, but carries no head/body/tail ramp.
func (q *Queue) Dwell(seconds float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, bf := q.getWriteBuffer()
	if bf == nil {
		return ErrQueueFull
	}
	bf.Dwell.Seconds = seconds
	q.commitWriteBuffer(motion.BlockDwell)
	return nil
}

// QueueCommand queues a synchronous, non-motion action (an M-code side
// effect, a tool change, a feedhold-adjacent control action) that must
// execute in program order relative to surrounding motion. Mirrors
// planner.cpp's mp_queue_command(): the callback runs once the segment
// executor reaches this slot as the run buffer, not when QueueCommand is
// called.
func (q *Queue) QueueCommand(name string, fn func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, bf := q.getWriteBuffer()
	if bf == nil {
		return ErrQueueFull
	}
	bf.Command.Name = name
	bf.Command.Func = fn
	q.commitWriteBuffer(motion.BlockCommand)
	return nil
}
