package cycle

import (
	"errors"

	"github.com/pathwright/motioncore/planner"
)

// ErrDeferredRingFull is returned by DeferredCommands.Submit when the small
// ring spec.md §4.10 describes ("a small ring of deferred JSON commands")
// has no room left: the caller is expected to back off and retry once the
// queue has drained a slot via a completed command block, the same
// backpressure shape as planner.Queue.Full.
var ErrDeferredRingFull = errors.New("cycle: deferred command ring full")

// DeferredRingSize bounds the number of JSON-sourced M-code/side-effect
// commands that may be in flight (queued but not yet run) at once. Small
// because each entry only exists to preserve program order against
// surrounding motion, not to buffer arbitrary host work.
const DeferredRingSize = 8

// DeferredCommands implements the half of spec.md §4.10 the segment
// executor's own dwell handling does not cover: a small ring of JSON
// control-channel commands (M-codes, tool changes, and other host side
// effects arriving as {"gc":"M8"}-style control lines rather than as plain
// G-code text) that must execute in queue order interleaved with motion,
// exactly like a G4 dwell block but carrying an arbitrary callback instead
// of a downcount. Each entry is queued into planner.Queue as an ordinary
// BlockCommand the instant there is room, so from the segment executor's
// point of view a deferred command and a G-code M-code side effect are the
// same queue slot kind; this type only exists to apply the ring's
// backpressure before QueueCommand is called.
type DeferredCommands struct {
	Queue *planner.Queue

	pending int // commands committed to the planner queue but not yet run
}

// NewDeferredCommands wires a DeferredCommands ring against the queue it
// feeds.
func NewDeferredCommands(q *planner.Queue) *DeferredCommands {
	return &DeferredCommands{Queue: q}
}

// Submit enqueues name/fn as a synchronous command in program order,
// subject to the ring's depth limit. fn runs on the exec priority context
// once this slot becomes the run buffer (see planner.Queue.QueueCommand);
// Submit itself never blocks or calls fn.
func (d *DeferredCommands) Submit(name string, fn func() error) error {
	if d.pending >= DeferredRingSize {
		return ErrDeferredRingFull
	}
	wrapped := func() error {
		err := fn()
		d.pending--
		return err
	}
	if err := d.Queue.QueueCommand(name, wrapped); err != nil {
		return err
	}
	d.pending++
	return nil
}

// Pending returns the number of deferred commands currently committed to
// the planner queue and not yet run, for the ring's own backpressure check
// and for diagnostics.
func (d *DeferredCommands) Pending() int { return d.pending }
