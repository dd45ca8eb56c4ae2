// Package thermal backs the dispatcher's temperature callback (spec.md
// §4.2): a minimal I²C temperature sensor reader, the one environmental
// reading this firmware core's dispatch loop actually consumes. It
// implements devices.Environmental rather than carrying the teacher's full
// Bosch BMx80 calibration-polynomial driver, which spec.md has no consumer
// for beyond a scalar heater/bed temperature.
package thermal

import (
	"encoding/binary"

	"github.com/pathwright/motioncore/conn/i2c"
	"github.com/pathwright/motioncore/devices"
)

// tempReg is the register a 16-bit signed raw temperature reading is read
// from, matching the teacher's devices/bmxx80 register layout style at the
// single register this package actually needs.
const tempReg = 0xFA

// Sensor reads a 16-bit signed raw temperature from an I²C device and
// converts it with a linear scale and offset (degrees-per-count and a zero
// offset), the common case for a thermocouple amplifier or thermistor ADC
// front-end on a controller board.
type Sensor struct {
	dev   i2c.DevReg8
	scale float64 // °C per raw count
	zero  float64 // °C at raw == 0
}

// New wraps dev as a Sensor. scale/zero calibrate the board's analog front
// end; both are configuration-token values (spec.md §6) in the assembled
// firmware.
func New(dev i2c.Dev, scale, zero float64) *Sensor {
	return &Sensor{
		dev:   i2c.DevReg8{Dev: dev, Order: binary.BigEndian},
		scale: scale,
		zero:  zero,
	}
}

// Sense implements devices.Environmental.
func (s *Sensor) Sense(env *devices.Environment) error {
	raw, err := s.dev.ReadRegUint16(tempReg)
	if err != nil {
		return err
	}
	c := s.zero + float64(int16(raw))*s.scale
	env.Temperature = devices.Celsius(c * 1000)
	return nil
}

var _ devices.Environmental = (*Sensor)(nil)
