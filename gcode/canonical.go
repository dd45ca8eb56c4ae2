// Package gcode turns RS274NGC text into calls against a canonical-machine
// collaborator. Grounded on spec.md §4.3's interface contract: the parser
// does not own planner state, it only accumulates modal state and calls
// ALine/Dwell/QueueCommand once per block, same as g2core's cm_* canonical
// machine layer calling into mp_aline()/mp_dwell()/mp_queue_command().
package gcode

import "github.com/pathwright/motioncore/motion"

// Canonical is the collaborator the Parser and ArcGenerator drive: one call
// per motion block, dwell, or synchronous command, in program order.
// planner.Queue satisfies this interface directly, with no adapter needed.
type Canonical interface {
	// ALine ingests one jerk-limited line move (spec.md §4.5).
	ALine(gm motion.GCodeState, rotation [3][3]float64, zOffset float64) error
	// Dwell queues a pure time delay (G4).
	Dwell(seconds float64) error
	// QueueCommand queues a synchronous, non-motion action that must
	// execute in program order relative to surrounding motion.
	QueueCommand(name string, fn func() error) error
}
