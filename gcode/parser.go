package gcode

import (
	"fmt"

	"github.com/pathwright/motioncore/motion"
)

// Parser holds the canonical machine's modal state across lines (a G1 with
// no X holds the previous X) and turns each incoming line into calls
// against a Canonical collaborator. It implements only the modal groups
// this core exercises: motion (G0/G1/G2/G3/G4/G80), plane selection
// (G17/G18/G19), units (G20/G21), distance mode (G90/G91), feed mode
// (G93/G94), path control (G61/G64), and work offsets (G54-G59) as a coord
// system index only. Tool tables, canned cycles, and cutter compensation
// are out of scope (spec.md Non-goals) but M-codes are still accepted and
// forwarded as named commands so a host can service spindle/tool/IO side
// effects in program order with motion, per spec.md §4.10.
type Parser struct {
	Canonical Canonical

	// Rotation and ZOffset are applied to every target ahead of ALine;
	// identity/zero for an unrotated machine. These come from the active
	// work-offset/rotation config, not from G-code words.
	Rotation [3][3]float64
	ZOffset  float64

	// ChordTolerance is ε_chord for arc segmentation (spec.md §4.4); zero
	// selects the 0.01mm default.
	ChordTolerance float64

	gm         motion.GCodeState
	lineNumber int32
	pendingArc *ArcGenerator
}

// NewParser returns a Parser in RS274NGC's conventional default modal
// state: G21 (mm), G90 (absolute), G94 (units/min feed), G17 (XY plane),
// G64 (continuous path).
func NewParser(c Canonical) *Parser {
	p := &Parser{Canonical: c}
	p.Rotation = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	p.gm.Absolute = true
	p.gm.PathControl = motion.PathContinuous
	return p
}

// Arc reports the in-progress arc generator, if any, so the dispatch
// package's arc callback (spec.md §4.2) can poll it without re-parsing.
func (p *Parser) Arc() *ArcGenerator { return p.pendingArc }

// GM returns a copy of the parser's current modal state, for cycles
// (homing, jog) that need to queue their own moves through the same
// Canonical collaborator using the parser's current unit/coordinate
// context rather than constructing a GCodeState from scratch.
func (p *Parser) GM() motion.GCodeState { return p.gm }

// StepArc advances the in-progress arc by one segment. It returns
// motion.StatusNoop if there is no arc pending, mirroring the other staged
// dispatcher callbacks' contract.
func (p *Parser) StepArc() (motion.Status, error) {
	if p.pendingArc == nil {
		return motion.StatusNoop, nil
	}
	status, err := p.pendingArc.Step()
	if status == motion.StatusOK {
		p.pendingArc = nil
	}
	return status, err
}

// Parse consumes one line (without its trailing newline), updates modal
// state, and dispatches motion/dwell/command calls against p.Canonical. A
// line that starts a G2/G3 arc returns immediately after constructing the
// ArcGenerator; callers must drain it via StepArc before parsing another
// motion line, since the arc is still consuming the previous target.
func (p *Parser) Parse(line string) error {
	line = stripComment(line)
	if line == "" {
		return nil
	}
	body, ok := verifyChecksum(line)
	if !ok {
		return ErrChecksum
	}
	ws, err := words(body)
	if err != nil {
		return err
	}
	if len(ws) == 0 {
		return nil
	}

	target := p.gm.Position
	var offset0, offset1, radius float64
	var hasOffset, hasRadius bool
	rotations := 0.0
	fullCircle := false
	motionWord := -1
	dwellSeconds := 0.0
	haveDwell := false

	for _, w := range ws {
		switch w.Letter {
		case 'N':
			p.lineNumber = int32(w.Value)
		case 'G':
			switch int(w.Value) {
			case 0, 1, 2, 3:
				motionWord = int(w.Value)
			case 4:
				motionWord = 4
			case 17:
				p.gm.Plane = 0
			case 18:
				p.gm.Plane = 1
			case 19:
				p.gm.Plane = 2
			case 20:
				p.gm.InchMode = true
			case 21:
				p.gm.InchMode = false
			case 61:
				p.gm.PathControl = motion.PathExactStop
			case 64:
				p.gm.PathControl = motion.PathContinuous
			case 80:
				motionWord = -1
			case 90:
				p.gm.Absolute = true
			case 91:
				p.gm.Absolute = false
			case 93:
				p.gm.InverseTimeMode = true
			case 94:
				p.gm.InverseTimeMode = false
			case 54, 55, 56, 57, 58, 59:
				p.gm.CoordSystem = int(w.Value) - 54
			}
		case 'M':
			code := int(w.Value)
			name := fmt.Sprintf("M%d", code)
			if err := p.Canonical.QueueCommand(name, func() error { return nil }); err != nil {
				return err
			}
		case 'F':
			f := w.Value
			if p.gm.InchMode {
				f *= 25.4
			}
			if p.gm.InverseTimeMode {
				p.gm.FeedRate = motion.VelocityFromMM(f)
			} else {
				p.gm.FeedRate = motion.VelocityFromMMPerMin(f)
			}
		case 'X', 'Y', 'Z', 'A', 'B', 'C':
			axis := axisIndex(w.Letter)
			v := p.toMM(w.Value)
			if p.gm.Absolute {
				target[axis] = v
			} else {
				target[axis] = p.gm.Position[axis] + v
			}
		case 'I':
			offset0 = p.toMM(w.Value)
			hasOffset = true
		case 'J':
			offset1 = p.toMM(w.Value)
			hasOffset = true
		case 'K':
			// Only meaningful for the G18/G19 planes' second offset
			// component; XY-plane (G17) arcs never read K.
			offset1 = p.toMM(w.Value)
			hasOffset = true
		case 'R':
			radius = p.toMM(w.Value)
			hasRadius = true
		case 'P':
			dwellSeconds = w.Value
			haveDwell = true
			if w.Value >= 1 {
				rotations = w.Value
				fullCircle = target == p.gm.Position
			}
		}
	}

	p.gm.LineNumber = p.lineNumber

	switch motionWord {
	case 0, 1:
		p.gm.MotionMode = motionWord
		p.gm.Position = target
		return p.Canonical.ALine(p.gm, p.Rotation, p.ZOffset)
	case 2, 3:
		p.gm.MotionMode = motionWord
		start := p.gm.Position
		arc, err := NewArc(p.Canonical, ArcParams{
			GM:             p.gm,
			Rotation:       p.Rotation,
			ZOffset:        p.ZOffset,
			Start:          start,
			Target:         target,
			Plane:          p.gm.Plane,
			Offset0:        offset0,
			Offset1:        offset1,
			HasOffset:      hasOffset,
			Radius:         radius,
			HasRadius:      hasRadius,
			Clockwise:      motionWord == 2,
			Rotations:      rotations,
			FullCircle:     fullCircle,
			ChordTolerance: p.ChordTolerance,
		})
		if err != nil {
			return err
		}
		p.gm.Position = target
		p.pendingArc = arc
		return nil
	case 4:
		if !haveDwell || dwellSeconds < 0 {
			dwellSeconds = 0
		}
		return p.Canonical.Dwell(dwellSeconds)
	}
	return nil
}

// toMM converts a raw word value to millimetres per the active units mode.
func (p *Parser) toMM(v float64) float64 {
	if p.gm.InchMode {
		return v * 25.4
	}
	return v
}

func axisIndex(letter byte) int {
	switch letter {
	case 'X':
		return 0
	case 'Y':
		return 1
	case 'Z':
		return 2
	case 'A':
		return 3
	case 'B':
		return 4
	case 'C':
		return 5
	}
	return 0
}
