package motion

import (
	"errors"
	"fmt"
)

// ErrMinLengthMove reports a move too short to queue (spec.md §4.5): the
// block is rejected without advancing the planner position. Not a fault —
// callers that generate chains of tiny segments (the arc generator) skip
// the segment and continue.
var ErrMinLengthMove = errors.New("motion: minimum length move")

// AlarmLevel distinguishes the three escalating motion-exception severities
// of spec.md §7: an alarm preserves state and is clearable, a shutdown
// additionally de-energizes motors, and a panic refuses all further motion
// until a hard reset.
type AlarmLevel int

const (
	// AlarmNone means no exception is active.
	AlarmNone AlarmLevel = iota
	// AlarmLevelAlarm: enter alarm, flush the planner, preserve coordinate
	// state, require an explicit clear.
	AlarmLevelAlarm
	// AlarmLevelShutdown: alarm plus de-energize motors; requires reset.
	AlarmLevelShutdown
	// AlarmLevelPanic: shutdown plus refuse all further motion until a hard
	// reset; the wire protocol must still be able to report the condition.
	AlarmLevelPanic
)

func (l AlarmLevel) String() string {
	switch l {
	case AlarmNone:
		return "none"
	case AlarmLevelAlarm:
		return "alarm"
	case AlarmLevelShutdown:
		return "shutdown"
	case AlarmLevelPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Alarm is the typed error every layer above a motion exception's detection
// point returns, per spec.md §7's "no exceptions, every layer returns a
// status" propagation policy. The dispatcher is the only place that renders
// one into a wire {"er":...} response and a controller state transition.
type Alarm struct {
	Level  AlarmLevel
	Reason string
}

func (a *Alarm) Error() string {
	return fmt.Sprintf("%s: %s", a.Level, a.Reason)
}

// NewAlarm builds an Alarm-level exception.
func NewAlarm(reason string) *Alarm { return &Alarm{Level: AlarmLevelAlarm, Reason: reason} }

// NewShutdown builds a Shutdown-level exception.
func NewShutdown(reason string) *Alarm { return &Alarm{Level: AlarmLevelShutdown, Reason: reason} }

// NewPanic builds a Panic-level exception.
func NewPanic(reason string) *Alarm { return &Alarm{Level: AlarmLevelPanic, Reason: reason} }

// StatCode is the wire-visible "stat" value of spec.md §6: the controller's
// top-level exit/alarm/cycle state, independent of (but correlated with)
// MotionState and CycleState (runtime.go).
type StatCode int

const (
	StatInitializing StatCode = iota
	StatReady
	StatAlarm
	StatProgramStop
	StatProgramEnd
	StatCycle
	StatHold
	StatProbe
	StatRun
	StatShutdown
	StatPanic
)

func (s StatCode) String() string {
	switch s {
	case StatInitializing:
		return "initializing"
	case StatReady:
		return "ready"
	case StatAlarm:
		return "alarm"
	case StatProgramStop:
		return "program-stop"
	case StatProgramEnd:
		return "program-end"
	case StatCycle:
		return "cycle"
	case StatHold:
		return "hold"
	case StatProbe:
		return "probe"
	case StatRun:
		return "run"
	case StatShutdown:
		return "shutdown"
	case StatPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the StatCode as its wire string, since report.go's
// status reports echo "stat" as text, not an integer.
func (s StatCode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
