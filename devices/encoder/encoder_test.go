package encoder

import (
	"testing"

	"github.com/pathwright/motioncore/conn/i2c"
	"github.com/pathwright/motioncore/conn/i2c/i2ctest"
)

func TestQuadraturePosition(t *testing.T) {
	playback := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x42, Write: []byte{0x10}, Read: []byte{0x05, 0x00, 0x00, 0x00}},
	}}
	dev := i2c.Dev{Bus: playback, Addr: 0x42}
	q := NewQuadrature(dev, 0x10, 1)

	steps, ok := q.Position(0)
	if !ok || steps != 5 {
		t.Fatalf("got (%d, %v), want (5, true)", steps, ok)
	}
}

func TestQuadratureOutOfRange(t *testing.T) {
	q := NewQuadrature(i2c.Dev{}, 0x10, 1)
	if _, ok := q.Position(5); ok {
		t.Fatalf("expected ok=false for out-of-range motor")
	}
}

func TestStaticSource(t *testing.T) {
	s := Static{Values: map[int]int32{0: 42}}
	if v, ok := s.Position(0); !ok || v != 42 {
		t.Fatalf("got (%d, %v), want (42, true)", v, ok)
	}
	if _, ok := s.Position(1); ok {
		t.Fatalf("expected ok=false for unset motor")
	}
	var zero Static
	if _, ok := zero.Position(0); ok {
		t.Fatalf("expected ok=false for nil map")
	}
}
