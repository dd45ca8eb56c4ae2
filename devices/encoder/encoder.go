// Package encoder reads per-motor following error off a quadrature encoder
// register for the segment executor's step-correction nudge (spec.md
// §4.8.1). Encoders here are read-only telemetry: spec.md §1 explicitly
// excludes closed-loop servo control, so this package never writes a
// setpoint back to the bus.
package encoder

import (
	"encoding/binary"

	"github.com/pathwright/motioncore/conn/i2c"
)

// Source is consulted once per motor per segment by seg.Executor. It
// returns the motor's running step count as read back from hardware; the
// executor itself computes following error as encoder-reading minus
// commanded steps (spec.md §4.8.1's table), so Source stays a thin register
// reader with no notion of "commanded".
type Source interface {
	// Position returns the latest step count known for motor, and whether a
	// fresh reading was available (false leaves the executor's previous
	// following-error estimate in force rather than injecting a spurious
	// correction from stale data).
	Position(motor int) (steps int32, ok bool)
}

// Quadrature reads a multi-channel quadrature-count register block over
// I²C, one 32-bit signed counter per motor starting at BaseReg. Grounded on
// conn/i2c.DevReg8's register-read helpers (conn/i2c/i2c.go) — the same
// pattern the teacher's device packages (bmxx80, ds248x) use for their own
// register reads, narrowed here to the one following-error telemetry need
// spec.md §1 keeps in scope.
type Quadrature struct {
	Dev     i2c.DevReg8
	BaseReg uint8
	Motors  int
}

// NewQuadrature wraps dev as a Source reading Motors consecutive 32-bit
// counters starting at baseReg.
func NewQuadrature(dev i2c.Dev, baseReg uint8, motors int) *Quadrature {
	return &Quadrature{
		Dev:     i2c.DevReg8{Dev: dev, Order: binary.LittleEndian},
		BaseReg: baseReg,
		Motors:  motors,
	}
}

// Position implements Source.
func (q *Quadrature) Position(motor int) (int32, bool) {
	if motor < 0 || motor >= q.Motors {
		return 0, false
	}
	reg := q.BaseReg + uint8(motor*4)
	v, err := q.Dev.ReadRegUint32(reg)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// Static is a fixed-value Source for tests and for motors with no encoder
// attached at all (Position reports ok=false for any motor missing from
// Values, and for a nil Values map, so the executor never injects a
// correction for those motors).
type Static struct {
	Values map[int]int32
}

// Position implements Source.
func (s Static) Position(motor int) (int32, bool) {
	if s.Values == nil {
		return 0, false
	}
	v, ok := s.Values[motor]
	return v, ok
}
