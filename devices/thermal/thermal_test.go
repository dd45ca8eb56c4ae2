package thermal

import (
	"testing"

	"github.com/pathwright/motioncore/conn/i2c"
	"github.com/pathwright/motioncore/conn/i2c/i2ctest"
	"github.com/pathwright/motioncore/devices"
)

func TestSenseConvertsRawCounts(t *testing.T) {
	// raw = 2000, scale = 0.1 -> 200.0 + zero(20) = 220.0 C
	playback := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x44, Write: []byte{tempReg}, Read: []byte{0x07, 0xD0}},
	}}
	s := New(i2c.Dev{Bus: playback, Addr: 0x44}, 0.1, 20)

	var env devices.Environment
	if err := s.Sense(&env); err != nil {
		t.Fatalf("Sense: %v", err)
	}
	if got, want := env.Temperature.Float64(), 220.0; got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSenseNegativeRaw(t *testing.T) {
	// raw = -100 (0xFF9C), scale = 1.0, zero = 0 -> -100 C
	playback := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x44, Write: []byte{tempReg}, Read: []byte{0xFF, 0x9C}},
	}}
	s := New(i2c.Dev{Bus: playback, Addr: 0x44}, 1.0, 0)

	var env devices.Environment
	if err := s.Sense(&env); err != nil {
		t.Fatalf("Sense: %v", err)
	}
	if got, want := env.Temperature.Float64(), -100.0; got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
