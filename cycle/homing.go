package cycle

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
)

// ErrUnexpectedLimit is returned when an axis limit switch other than the
// one currently being searched for asserts mid-homing: most likely a
// mis-wired switch or a crash, never a legitimate part of the sequence.
var ErrUnexpectedLimit = errors.New("cycle: unexpected limit switch asserted during homing")

// AxisHome is one axis's homing recipe: the limit switch it searches for
// and the two-speed search/latch sequence spec.md §4.11 describes (a fast
// search to first contact, a backoff, then a slow re-approach for
// repeatable latch accuracy).
type AxisHome struct {
	Axis     int
	LimitPin gpio.PinIn

	// SearchVelocity/LatchVelocity are signed (direction folded into sign)
	// feed rates for the coarse search and the precision latch pass.
	SearchVelocity motion.Velocity
	LatchVelocity  motion.Velocity

	// LatchBackoff is the distance (mm, signed the same as the search
	// direction; the backoff move travels -LatchBackoff) backed off before
	// the latch pass, clearing the switch's hysteresis band before
	// re-approaching it slowly.
	LatchBackoff float64

	// ZeroOffset is the machine-coordinate value this axis is set to once
	// the latch pass completes (commonly 0, or a negative value when the
	// switch sits off the working envelope).
	ZeroOffset float64
}

type homingPhase int

const (
	phaseSearch homingPhase = iota
	phaseBackoff
	phaseLatch
	phaseSetZero
	phaseDone
)

// Homing sequences AxisHome entries one axis at a time (spec.md §4.11):
// each axis completes its full search/backoff/latch/zero sequence before
// the next begins, since they typically share limited travel and power
// budget on a controller board.
type Homing struct {
	Queue    *planner.Queue
	Feedhold *Feedhold

	Axes []AxisHome

	index  int
	phase  homingPhase
	active bool

	moveIssued bool
}

// NewHoming wires a Homing cycle against the axis sequence and the
// collaborators it shares with the rest of the cycle package.
func NewHoming(q *planner.Queue, hold *Feedhold, axes []AxisHome) *Homing {
	return &Homing{Queue: q, Feedhold: hold, Axes: axes}
}

// Start begins the sequence at the first configured axis.
func (h *Homing) Start() {
	h.index = 0
	h.phase = phaseSearch
	h.active = len(h.Axes) > 0
	h.moveIssued = false
}

// Active reports whether a homing sequence is in progress.
func (h *Homing) Active() bool { return h.active }

// Sync advances the homing sequence by one dispatch-loop pass. gm is the
// canonical machine's current modal state; Sync mutates its Position and
// FeedRate and queues the resulting move itself via Queue.ALine, the same
// entry point ordinary G-code motion uses, so a homing move is planned and
// executed exactly like any other.
//
// Under the dispatcher's abort-on-eagain rule, Sync reports StatusOK when
// it committed a move, StatusEAgain when it advanced a phase (re-enter the
// loop promptly), and StatusNoop while polling a switch that has not
// tripped yet — the queued move's planning and execution are what make the
// next transition possible, so waiting must not abort the pass.
func (h *Homing) Sync(gm *motion.GCodeState) (motion.Status, error) {
	if !h.active {
		return motion.StatusNoop, nil
	}
	if h.index >= len(h.Axes) {
		h.active = false
		return motion.StatusOK, nil
	}

	if triggered, err := h.pollOtherLimits(context.Background()); err != nil {
		return motion.StatusNoop, err
	} else if triggered {
		h.active = false
		return motion.StatusEAgain, ErrUnexpectedLimit
	}

	axis := h.Axes[h.index]

	switch h.phase {
	case phaseSearch:
		if !h.moveIssued {
			if err := h.queueStep(gm, axis.Axis, motion.MM(axis.SearchVelocity)*searchTravelSeconds, axis.SearchVelocity); err != nil {
				return motion.StatusNoop, err
			}
			h.moveIssued = true
			return motion.StatusOK, nil
		}
		if axis.LimitPin != nil && axis.LimitPin.WaitForEdge(0) {
			h.phase = phaseBackoff
			h.moveIssued = false
			return motion.StatusEAgain, nil
		}
		return motion.StatusNoop, nil

	case phaseBackoff:
		if !h.moveIssued {
			if err := h.queueStep(gm, axis.Axis, -axis.LatchBackoff, axis.LatchVelocity); err != nil {
				return motion.StatusNoop, err
			}
			h.moveIssued = true
			return motion.StatusOK, nil
		}
		h.phase = phaseLatch
		h.moveIssued = false
		return motion.StatusEAgain, nil

	case phaseLatch:
		if !h.moveIssued {
			if err := h.queueStep(gm, axis.Axis, motion.MM(axis.LatchVelocity)*searchTravelSeconds, axis.LatchVelocity); err != nil {
				return motion.StatusNoop, err
			}
			h.moveIssued = true
			return motion.StatusOK, nil
		}
		if axis.LimitPin != nil && axis.LimitPin.WaitForEdge(0) {
			h.phase = phaseSetZero
			return motion.StatusEAgain, nil
		}
		return motion.StatusNoop, nil

	case phaseSetZero:
		gm.Position[axis.Axis] = axis.ZeroOffset
		h.index++
		h.phase = phaseSearch
		h.moveIssued = false
		return motion.StatusEAgain, nil
	}

	return motion.StatusNoop, nil
}

// queueStep commands a single incremental move on one axis at the given
// feed velocity, via the ordinary ALine ingest path.
func (h *Homing) queueStep(gm *motion.GCodeState, axis int, deltaMM float64, feed motion.Velocity) error {
	gm.Position[axis] += deltaMM
	gm.FeedRate = feed
	gm.MotionMode = 1
	gm.InverseTimeMode = false
	return h.Queue.ALine(*gm, identityRotation, 0)
}

// searchTravelSeconds bounds how far a single search/latch pass commands
// the axis to move before checking for contact again; a real deployment
// sizes this from the axis's configured travel limit, but a fixed nominal
// window keeps this cycle's sequencing self-contained.
const searchTravelSeconds = 0.25

// pollOtherLimits concurrently polls every configured axis's limit switch
// except the one currently being searched — the one place this package
// fans work out across goroutines, since an unexpected trigger on another
// axis (a mis-wired switch, or the machine crashing into something) is a
// safety condition worth catching without waiting for that axis's own turn
// in the sequence.
func (h *Homing) pollOtherLimits(ctx context.Context) (bool, error) {
	g, _ := errgroup.WithContext(ctx)
	triggered := make([]bool, len(h.Axes))
	for i := range h.Axes {
		if i == h.index {
			continue
		}
		i := i
		g.Go(func() error {
			if h.Axes[i].LimitPin == nil {
				return nil
			}
			triggered[i] = h.Axes[i].LimitPin.WaitForEdge(0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, t := range triggered {
		if t {
			return true, nil
		}
	}
	return false, nil
}
