// Package motion holds the planner's data model: the Block queue element,
// the runtime and planner state structures, and the fixed-point units used
// throughout the trajectory pipeline.
//
// Velocity reuses periph's conn/physic.Speed (int64 nanometre-per-second)
// rather than inventing a parallel type: the ramp solver mixes length and
// velocity in the same expressions, on the same integer nano scale, and
// physic.Speed already carries the String/constant set that style needs.
// Jerk has no equivalent in physic, so it is added here following the exact
// same nano-fixed-point pattern.
package motion

import (
	"fmt"

	"github.com/pathwright/motioncore/conn/physic"
)

// Velocity is a speed along a toolpath. It is an alias of physic.Speed so
// that callers can mix it freely with distances measured in physic.Distance
// without a conversion step at every call site.
type Velocity = physic.Speed

// Re-exported so planner and seg code can write motion.MilliMetrePerSecond
// alongside motion.Length and motion.Jerk without importing conn/physic
// directly.
const (
	NanoMetrePerSecond  = physic.NanoMetrePerSecond
	MicroMetrePerSecond = physic.MicroMetrePerSecond
	MilliMetrePerSecond = physic.MilliMetrePerSecond
	MetrePerSecond      = physic.MetrePerSecond
)

// VelocityFromMMPerMin builds a Velocity from a G-code F word, which is
// conventionally expressed in millimetres per minute.
func VelocityFromMMPerMin(f float64) Velocity {
	return Velocity(f / 60 * float64(MilliMetrePerSecond))
}

// MMPerMin converts v to the millimetre-per-minute units G-code feed rates
// and status reports use.
func MMPerMin(v Velocity) float64 {
	return float64(v) / float64(MilliMetrePerSecond) * 60
}

// VelocityFromMM builds a Velocity from a plain millimetre-per-second value.
func VelocityFromMM(v float64) Velocity {
	return Velocity(v * float64(MilliMetrePerSecond))
}

// MM returns v in millimetres per second as a float64, the unit the zoid
// solver's floating point math is expressed in.
func MM(v Velocity) float64 {
	return float64(v) / float64(MilliMetrePerSecond)
}

// Jerk is the third derivative of position: the rate of change of
// acceleration, expressed in nanometres per second cubed. It bounds how
// abruptly the planner may change the slope of the velocity profile at a
// corner or at the ends of a ramp.
type Jerk int64

// String implements fmt.Stringer.
func (j Jerk) String() string {
	return fmt.Sprintf("%.1fmm/s³", JerkMM(j))
}

// Jerk scales, following physic.Speed's naming convention.
const (
	NanoMetrePerSecondCubed  Jerk = 1
	MicroMetrePerSecondCubed Jerk = 1000 * NanoMetrePerSecondCubed
	MilliMetrePerSecondCubed Jerk = 1000 * MicroMetrePerSecondCubed
	MetrePerSecondCubed      Jerk = 1000 * MilliMetrePerSecondCubed
)

// JerkFromMM builds a Jerk from a millimetres-per-second-cubed value,
// typically sourced from axis configuration (e.g. config token "xjm").
// Axis jerk settings are traditionally specified in mm/min³ in the
// originating firmware; callers at the config boundary are responsible for
// any such unit-family conversion before calling this constructor.
func JerkFromMM(j float64) Jerk {
	return Jerk(j * float64(MilliMetrePerSecondCubed))
}

// JerkMM returns j in millimetres per second cubed as a float64.
func JerkMM(j Jerk) float64 {
	return float64(j) / float64(MilliMetrePerSecondCubed)
}

// Length is re-exported from physic so callers of the motion package do not
// need a second import for the distance type the Block and RuntimeState
// fields are expressed in.
type Length = physic.Distance

// LenFromMM builds a Length from a millimetre value.
func LenFromMM(v float64) Length {
	return Length(v * float64(physic.MilliMetre))
}

// LenMM returns l as a plain millimetre float64, the unit the zoid solver
// and Bezier coefficient math use internally.
func LenMM(l Length) float64 {
	return float64(l) / float64(physic.MilliMetre)
}
