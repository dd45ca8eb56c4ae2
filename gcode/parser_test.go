package gcode

import (
	"testing"

	"github.com/pathwright/motioncore/motion"
)

type fakeCanonical struct {
	alines   []motion.GCodeState
	dwells   []float64
	commands []string
}

func (f *fakeCanonical) ALine(gm motion.GCodeState, rotation [3][3]float64, zOffset float64) error {
	f.alines = append(f.alines, gm)
	return nil
}

func (f *fakeCanonical) Dwell(seconds float64) error {
	f.dwells = append(f.dwells, seconds)
	return nil
}

func (f *fakeCanonical) QueueCommand(name string, fn func() error) error {
	f.commands = append(f.commands, name)
	return fn()
}

func TestParserLinearMove(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	if err := p.Parse("G90 G21 F600 G1 X10 Y5"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fc.alines) != 1 {
		t.Fatalf("got %d alines, want 1", len(fc.alines))
	}
	gm := fc.alines[0]
	if gm.Position[0] != 10 || gm.Position[1] != 5 {
		t.Fatalf("position = %v, want (10,5,...)", gm.Position)
	}
	if motion.MMPerMin(gm.FeedRate) < 599 || motion.MMPerMin(gm.FeedRate) > 601 {
		t.Fatalf("feed rate = %v mm/min, want ~600", motion.MMPerMin(gm.FeedRate))
	}
}

func TestParserIncrementalMove(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	if err := p.Parse("G90 G1 X10 F100"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := p.Parse("G91 G1 X5"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fc.alines[1].Position[0] != 15 {
		t.Fatalf("incremental X = %v, want 15", fc.alines[1].Position[0])
	}
}

func TestParserInchMode(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	if err := p.Parse("G20 G90 G1 X1 F10"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := fc.alines[0].Position[0]; got < 25.39 || got > 25.41 {
		t.Fatalf("X in mm = %v, want ~25.4", got)
	}
}

func TestParserDwell(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	if err := p.Parse("G4 P1.5"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fc.dwells) != 1 || fc.dwells[0] != 1.5 {
		t.Fatalf("dwells = %v, want [1.5]", fc.dwells)
	}
}

func TestParserMCodeQueuesCommand(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	if err := p.Parse("M3"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fc.commands) != 1 || fc.commands[0] != "M3" {
		t.Fatalf("commands = %v, want [M3]", fc.commands)
	}
}

func TestParserChecksumMismatch(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	if err := p.Parse("N1 G1 X1 F1*99"); err != ErrChecksum {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
}

func TestParserChecksumOK(t *testing.T) {
	fc := &fakeCanonical{}
	p := NewParser(fc)

	line := "N1 G1 X1 F1"
	var sum byte
	for i := 0; i < len(line); i++ {
		sum ^= line[i]
	}
	full := line
	full += "*" + itoa(int(sum))
	if err := p.Parse(full); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fc.alines) != 1 {
		t.Fatalf("got %d alines, want 1", len(fc.alines))
	}
}

func TestParserArcStartsPendingArc(t *testing.T) {
	fc2 := &fakeCanonical{}
	p2 := NewParser(fc2)
	p2.gm.Position = motion.Vector{10, 0, 0, 0, 0, 0}
	if err := p2.Parse("G17 G2 X0 Y0 I-5 J0 F1200"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p2.Arc() == nil {
		t.Fatalf("expected a pending arc")
	}

	segments := 0
	for {
		status, err := p2.StepArc()
		if err != nil {
			t.Fatalf("StepArc: %v", err)
		}
		if status == motion.StatusNoop {
			t.Fatalf("arc drained before completion")
		}
		segments++
		if status == motion.StatusOK {
			break
		}
		if segments > 100000 {
			t.Fatalf("arc did not complete within a bounded number of segments")
		}
	}
	// A 180-degree, radius-5mm arc at ct=0.01mm chord tolerance should be
	// decomposed into many small segments, not emitted as one line.
	if segments < 30 {
		t.Fatalf("got %d segments for a tiny-arc chord test, want a multi-segment decomposition", segments)
	}
	if len(fc2.alines) != segments {
		t.Fatalf("got %d ALine calls, want %d", len(fc2.alines), segments)
	}
	last := fc2.alines[len(fc2.alines)-1].Position
	if last[0] > 1e-6 || last[1] > 1e-6 {
		t.Fatalf("final arc segment = %v, want ~(0,0)", last)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
