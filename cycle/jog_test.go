package cycle

import (
	"testing"

	"github.com/pathwright/motioncore/motion"
)

func TestJogQueuesIncrementsWhileActive(t *testing.T) {
	q := newTestQueue()
	j := NewJog(q)

	j.Start(motion.Vector{}, motion.Vector{1, 0, 0, 0, 0, 0}, motion.VelocityFromMM(20))
	if !j.Active() {
		t.Fatalf("jog not active after Start")
	}

	before := q.Available()
	if _, err := j.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if q.Available() != before-1 {
		t.Fatalf("Sync did not queue an increment: %d free, was %d", q.Available(), before)
	}
}

func TestJogStopsQueuingAfterStop(t *testing.T) {
	q := newTestQueue()
	j := NewJog(q)
	j.Start(motion.Vector{}, motion.Vector{0, 1, 0, 0, 0, 0}, motion.VelocityFromMM(20))
	if _, err := j.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	j.Stop()
	if j.Active() {
		t.Fatalf("jog still active after Stop")
	}
	before := q.Available()
	status, err := j.Sync()
	if err != nil {
		t.Fatalf("Sync after Stop: %v", err)
	}
	if status != motion.StatusNoop {
		t.Fatalf("Sync after Stop = %v, want StatusNoop", status)
	}
	if q.Available() != before {
		t.Fatalf("Sync after Stop queued a move")
	}
}

func TestJogBacksOffWhenQueueIsFull(t *testing.T) {
	q := newTestQueue()
	j := NewJog(q)
	j.Start(motion.Vector{}, motion.Vector{1, 0, 0, 0, 0, 0}, motion.VelocityFromMM(20))

	// Run Sync until the queue's headroom gate trips; it must report
	// StatusNoop and stop committing rather than erroring or spinning.
	for i := 0; i < 100 && !q.Full(); i++ {
		if _, err := j.Sync(); err != nil {
			t.Fatalf("Sync[%d]: %v", i, err)
		}
	}
	if !q.Full() {
		t.Fatalf("queue never reached backpressure")
	}
	before := q.Available()
	status, err := j.Sync()
	if err != nil {
		t.Fatalf("Sync at full queue: %v", err)
	}
	if status != motion.StatusNoop {
		t.Fatalf("Sync at full queue = %v, want StatusNoop (waiting on drain)", status)
	}
	if q.Available() != before {
		t.Fatalf("Sync at full queue still committed a move")
	}
}
